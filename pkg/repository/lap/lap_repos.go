//nolint:whitespace // can't make both editor and linter happy
package lap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/repository"
)

// Entry is an archived lap result
type Entry struct {
	ID          int64
	RecordStamp time.Time
	Result      model.LapResult
}

// Create stores a lap result and returns the id of the new row
func Create(
	ctx context.Context,
	conn repository.Querier,
	res *model.LapResult,
) (id int64, err error) {
	row := conn.QueryRow(ctx, `
	insert into lap (
		lap, track_name, driver_name, enriched, indicators, race_context
	) values ($1,$2,$3,$4,$5,$6)
	returning id
	`,
		res.EnrichedTelemetry.Lap,
		res.RaceContext.RaceInfo.TrackName,
		res.RaceContext.DriverState.DriverName,
		res.EnrichedTelemetry,
		res.Indicators,
		res.RaceContext,
	)
	if err = row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// LoadLatest returns up to limit entries of a track, newest first
func LoadLatest(
	ctx context.Context,
	conn repository.Querier,
	track string,
	limit int,
) ([]*Entry, error) {
	rows, err := conn.Query(ctx,
		selector+" where track_name=$1 order by id desc limit $2", track, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Entry, error) {
		var e Entry
		if err := scan(&e, row); err != nil {
			return nil, err
		}
		return &e, nil
	})
}

// DeleteByTrack deletes all entries of a track, returns number of rows deleted.
func DeleteByTrack(ctx context.Context, conn repository.Querier, track string) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from lap where track_name=$1", track)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

const selector = `select id, record_stamp, enriched, indicators, race_context from lap`

func scan(e *Entry, row pgx.Row) error {
	return row.Scan(&e.ID, &e.RecordStamp,
		&e.Result.EnrichedTelemetry, &e.Result.Indicators, &e.Result.RaceContext)
}
