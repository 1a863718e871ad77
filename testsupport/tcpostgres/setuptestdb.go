//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/db/migrate"
	database "github.com/mpapenbr/iracelog-strategy-service-go/pkg/db/postgres"
)

// SetupTestDB creates a pg connection pool for the archive test database.
// If TESTDB_URL is set that database is used instead of a container.
func SetupTestDB() *pgxpool.Pool {
	dbURL := os.Getenv("TESTDB_URL")
	if dbURL == "" {
		dbURL = startContainer()
	}
	if err := migrate.MigrateDB(dbURL); err != nil {
		log.Fatal(err)
	}
	pool, err := database.InitWithURL(context.Background(), dbURL)
	if err != nil {
		log.Fatal(err)
	}
	return pool
}

func startContainer() string {
	ctx := context.Background()
	port, err := nat.NewPort("tcp", "5432")
	if err != nil {
		log.Fatal(err)
	}
	container, err := SetupPostgres(ctx,
		WithPort(port.Port()),
		WithInitialDatabase("postgres", "password", "postgres"),
		WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
		WithName("iracelog-strategy-service-test"),
	)
	if err != nil {
		log.Fatal(err)
	}
	containerPort, _ := container.MappedPort(ctx, port)
	host, _ := container.Host(ctx)
	return fmt.Sprintf("postgresql://postgres:password@%s:%s/postgres",
		host, containerPort.Port())
}

func ClearLapTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from lap")
}

func ClearCommandTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from control_command")
}

func ClearAllTables(pool *pgxpool.Pool) {
	ClearCommandTable(pool)
	ClearLapTable(pool)
}
