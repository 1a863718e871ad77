// Package archive persists lap results and issued control commands.
package archive

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/repository/command"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/repository/lap"
)

type Archive interface {
	StoreLap(ctx context.Context, res *model.LapResult) error
	RecordCommand(
		ctx context.Context,
		sessionID string,
		lap int,
		cmd model.ControlCommand,
		top *model.Strategy,
	) error
}

var (
	_ Archive = (*Postgres)(nil)
	_ Archive = Noop{}
)

// Noop is used when no database is configured
type Noop struct{}

func (Noop) StoreLap(context.Context, *model.LapResult) error { return nil }

//nolint:whitespace // can't make both editor and linter happy
func (Noop) RecordCommand(
	context.Context, string, int, model.ControlCommand, *model.Strategy,
) error {
	return nil
}

type Postgres struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, logger: log.Default().Named("archive")}
}

func (p *Postgres) StoreLap(ctx context.Context, res *model.LapResult) error {
	id, err := lap.Create(ctx, p.pool, res)
	if err != nil {
		return err
	}
	p.logger.Debug("lap archived", log.Int64("id", id), log.Int("lap", res.EnrichedTelemetry.Lap))
	return nil
}

//nolint:whitespace // can't make both editor and linter happy
func (p *Postgres) RecordCommand(
	ctx context.Context,
	sessionID string,
	lapNo int,
	cmd model.ControlCommand,
	top *model.Strategy,
) error {
	_, err := command.Create(ctx, p.pool, &command.Entry{
		SessionID: sessionID,
		Lap:       lapNo,
		Command:   cmd,
		Strategy:  top,
	})
	return err
}
