//go:build cgo

package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/marcboeker/go-duckdb/v2" // register duckdb driver
)

// OpenDuckDB opens a volatile in-memory DuckDB backend.
func OpenDuckDB(ctx context.Context, logger *slog.Logger) (*SQLBackend, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("%w: open duckdb: %w", ErrEngineUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping duckdb: %w", ErrEngineUnavailable, err)
	}
	// DuckDB REAL is 32-bit; DOUBLE keeps float64 precision.
	d := dialect{engine: EngineDuckDB, numericType: "DOUBLE", abortsTx: true}
	return newSQLBackend(db, KindVolatile, d, logger), nil
}
