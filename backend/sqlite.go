package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	_ "modernc.org/sqlite" // register sqlite driver
)

var sqliteDialect = dialect{engine: EngineSQLite, numericType: "REAL"}

// sqlitePragmas are applied to every persistent connection.
var sqlitePragmas = []string{"busy_timeout(5000)", "journal_mode(WAL)", "foreign_keys(1)"}

// SQLiteDSN returns the modernc.org/sqlite DSN for a database file.
func SQLiteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	q.Set("_time_format", "sqlite")
	return "file:" + path + "?" + q.Encode()
}

// OpenSQLite opens the persistent disk-backed backend.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLBackend, error) {
	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return newSQLBackend(db, KindPersistent, sqliteDialect, logger), nil
}

// OpenSQLiteMemory opens a volatile in-memory SQLite backend. The pool is
// pinned to one connection because each :memory: connection is its own
// database.
func OpenSQLiteMemory(ctx context.Context, logger *slog.Logger) (*SQLBackend, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite memory: %w", err)
	}
	d := sqliteDialect
	d.engine = EngineSQLiteMemory
	return newSQLBackend(db, KindVolatile, d, logger), nil
}
