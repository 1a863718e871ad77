package migrate

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/config"
	dbmigrate "github.com/mpapenbr/iracelog-strategy-service-go/pkg/db/migrate"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/utils"
)

var errNoDB = errors.New("no database configured (--db)")

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration of the archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMigration(cmd.Context())
		},
	}
	return cmd
}

func startMigration(ctx context.Context) error {
	if config.DB == "" {
		return errNoDB
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// wait for database
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	if postgresAddr := utils.ExtractFromDBURL(config.DB); postgresAddr != "" {
		if err = utils.WaitForTCP(ctx, postgresAddr, timeout); err != nil {
			log.Error("database not ready", log.ErrorField(err))
			return err
		}
	}

	log.Info("Migrating database")
	if err := dbmigrate.MigrateDB(config.DB); err != nil {
		log.Error("Migration failed", log.ErrorField(err))
		return err
	}
	log.Info("Database is up to date")
	return nil
}
