package config

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

// IsPostgres reports whether the driver speaks the Postgres dialect.
func (d Database) IsPostgres() bool {
	return d.Driver == DriverPostgres || d.Driver == DriverPgx
}

// OpenDB opens the configured database. Every SQLite connection in the pool
// gets WAL and a short busy timeout so that writer contention surfaces as a
// lock error the repository can retry.
func OpenDB(cfg Database) (*sql.DB, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverPgx:
		return sql.Open(cfg.Driver, cfg.DSN)
	case DriverSQLite:
		return sql.Open("sqlite", sqliteDSN(cfg))
	default:
		return nil, fmt.Errorf("config: unsupported database driver %q", cfg.Driver)
	}
}

// sqliteDSN appends the pragmas as DSN parameters; the driver runs them on
// each new connection.
func sqliteDSN(cfg Database) string {
	pragmas := []string{
		"journal_mode(WAL)",
		fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout),
		"synchronous(NORMAL)",
		"temp_store(MEMORY)",
	}
	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}

	sep := "?"
	if strings.Contains(cfg.DSN, "?") {
		sep = "&"
	}
	return cfg.DSN + sep + strings.Join(params, "&")
}
