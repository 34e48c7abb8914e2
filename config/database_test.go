package config

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDB_SQLitePragmasOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDB(Database{
		Driver:      DriverSQLite,
		DSN:         filepath.Join(t.TempDir(), "chat.db"),
		BusyTimeout: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	first, err := db.Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := db.Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	for i, conn := range []interface {
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	}{first, second} {
		var timeout int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 5000, timeout, "connection %d", i)

		var mode string
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", mode, "connection %d", i)
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN(Database{DSN: "file:chat.db?cache=shared", BusyTimeout: 250})
	assert.Equal(t, "file:chat.db?cache=shared&_pragma=journal_mode(WAL)&_pragma=busy_timeout(250)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)", dsn)
}
