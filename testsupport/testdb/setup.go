package testdb

import (
	"github.com/jackc/pgx/v5/pgxpool"

	tcpg "github.com/mpapenbr/iracelog-strategy-service-go/testsupport/tcpostgres"
)

// InitTestDB returns a pool to a migrated database with empty tables
func InitTestDB() *pgxpool.Pool {
	pool := tcpg.SetupTestDB()
	tcpg.ClearAllTables(pool)
	return pool
}
