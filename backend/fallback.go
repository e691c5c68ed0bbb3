package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/fallback"
	"github.com/nao1215/tabquery/observability"
)

// Fallback adapts the in-process interpreter to Backend.
type Fallback struct {
	db     *fallback.DB
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFallback returns an empty fallback backend.
func NewFallback(logger *slog.Logger) *Fallback {
	return &Fallback{
		db:     fallback.New(),
		logger: observability.OrDiscard(logger).With(slog.String("engine", EngineFallback)),
	}
}

// Kind returns KindFallback.
func (f *Fallback) Kind() Kind { return KindFallback }

// Engine returns EngineFallback.
func (f *Fallback) Engine() string { return EngineFallback }

// Materialize creates the table and inserts records one statement at a time.
func (f *Fallback) Materialize(ctx context.Context, spec TableSpec, records []model.Record) (LoadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res := LoadResult{Attempted: len(records)}
	table := spec.Name.String()
	if _, err := f.db.Exec(ctx, spec.createSQL("REAL")); err != nil {
		return res, &MaterializationError{Table: table, Attempted: res.Attempted, Err: fmt.Errorf("create table: %w", err)}
	}

	insert := spec.insertSQL()
	for i, rec := range records {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				_ = f.db.Drop(table)
				return res, &MaterializationError{Table: table, Attempted: res.Attempted, Inserted: res.Inserted, Err: err}
			}
		}
		args, coerced := spec.bind(rec)
		if _, err := f.db.Exec(ctx, insert, args...); err != nil {
			f.logger.Warn("skipping row that failed to insert", "table", table, "row", i+1, "error", err)
			res.Skipped++
			continue
		}
		res.Inserted++
		res.Coerced += coerced
	}

	if res.Inserted == 0 && res.Attempted > 0 {
		_ = f.db.Drop(table)
		return res, &MaterializationError{Table: table, Attempted: res.Attempted, Err: errNoRowsInserted}
	}
	return res, nil
}

// Query runs a SELECT through the interpreter.
func (f *Fallback) Query(ctx context.Context, sql string, maxRows int) (*model.ResultSet, bool, error) {
	rs, err := f.db.Query(ctx, sql)
	if err != nil {
		return nil, false, err
	}
	if maxRows > 0 && len(rs.Rows) > maxRows {
		rs.Rows = rs.Rows[:maxRows]
		return rs, true, nil
	}
	return rs, false, nil
}

// DropTable drops a table. Dropping a missing table is not an error.
func (f *Fallback) DropTable(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	_ = f.db.Drop(name)
	return nil
}

// Close releases the tables.
func (f *Fallback) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.db = fallback.New()
	return nil
}
