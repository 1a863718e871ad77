//nolint:whitespace // can't make both editor and linter happy
package command

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/repository"
)

type Entry struct {
	ID          int64
	SessionID   string
	RecordStamp time.Time
	Lap         int
	Command     model.ControlCommand
	Strategy    *model.Strategy
}

func Create(ctx context.Context, conn repository.Querier, e *Entry) (id int64, err error) {
	row := conn.QueryRow(ctx, `
	insert into control_command (
		session_id, lap, brake_bias, differential_slip, rationale, strategy
	) values ($1,$2,$3,$4,$5,$6)
	returning id
	`,
		e.SessionID, e.Lap,
		e.Command.BrakeBias, e.Command.DifferentialSlip, e.Command.Rationale,
		e.Strategy,
	)
	if err = row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// LoadBySession returns the commands of a session ordered by lap
func LoadBySession(
	ctx context.Context,
	conn repository.Querier,
	sessionID string,
) ([]*Entry, error) {
	rows, err := conn.Query(ctx, `
	select id, session_id, record_stamp, lap, brake_bias, differential_slip, rationale, strategy
	from control_command where session_id=$1 order by lap asc, id asc
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Entry, error) {
		var e Entry
		if err := row.Scan(&e.ID, &e.SessionID, &e.RecordStamp, &e.Lap,
			&e.Command.BrakeBias, &e.Command.DifferentialSlip, &e.Command.Rationale,
			&e.Strategy); err != nil {
			return nil, err
		}
		return &e, nil
	})
}

func DeleteBySession(ctx context.Context, conn repository.Querier, sessionID string) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from control_command where session_id=$1", sessionID)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}
