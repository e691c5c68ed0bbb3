package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/observability"
)

// checkEvery is how many records are inserted between context checks.
const checkEvery = 1024

var errTxAborted = errors.New("transaction aborted")

// dialect holds what differs between database/sql engines.
type dialect struct {
	engine      string
	numericType string
	// abortsTx is true for engines where a failed statement aborts the
	// enclosing transaction. A load that hits a bad row is then redone with
	// autocommit statements so the row can be skipped.
	abortsTx bool
}

// SQLBackend is a Backend over a database/sql handle.
type SQLBackend struct {
	db      *sql.DB
	kind    Kind
	dialect dialect
	logger  *slog.Logger
	// mu serializes writers; readers go through the pool.
	mu sync.Mutex
}

func newSQLBackend(db *sql.DB, kind Kind, d dialect, logger *slog.Logger) *SQLBackend {
	return &SQLBackend{
		db:      db,
		kind:    kind,
		dialect: d,
		logger:  observability.OrDiscard(logger).With(slog.String("engine", d.engine)),
	}
}

// Kind returns the backend kind
func (b *SQLBackend) Kind() Kind { return b.kind }

// Engine returns the engine name
func (b *SQLBackend) Engine() string { return b.dialect.engine }

// DB returns the underlying handle.
func (b *SQLBackend) DB() *sql.DB { return b.db }

// Materialize creates the table and inserts every record with a prepared
// statement. Rows that fail to insert are logged and skipped.
func (b *SQLBackend) Materialize(ctx context.Context, spec TableSpec, records []model.Record) (LoadResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res := LoadResult{Attempted: len(records)}
	table := spec.Name.String()
	if _, err := b.db.ExecContext(ctx, spec.createSQL(b.dialect.numericType)); err != nil {
		return res, &MaterializationError{Table: table, Attempted: res.Attempted, Err: fmt.Errorf("create table: %w", err)}
	}

	res, err := b.insertTx(ctx, spec, records)
	if errors.Is(err, errTxAborted) {
		b.logger.Warn("transaction aborted by a bad row, reloading row by row", "table", table)
		res, err = b.insertEach(ctx, spec, records)
	}
	if err == nil && res.Inserted == 0 && res.Attempted > 0 {
		err = errNoRowsInserted
	}
	if err != nil {
		if _, dropErr := b.db.ExecContext(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+spec.Name.Quoted()); dropErr != nil {
			b.logger.Error("failed to drop partially materialized table", "table", table, "error", dropErr)
		}
		return res, &MaterializationError{Table: table, Attempted: res.Attempted, Inserted: res.Inserted, Err: err}
	}
	return res, nil
}

// insertTx loads all records in one transaction.
func (b *SQLBackend) insertTx(ctx context.Context, spec TableSpec, records []model.Record) (res LoadResult, err error) {
	res.Attempted = len(records)
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
			res.Inserted = 0
		}
	}()

	stmt, err := tx.PrepareContext(ctx, spec.insertSQL())
	if err != nil {
		return res, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	if err := b.insertRows(ctx, stmt, spec, records, &res, b.dialect.abortsTx); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// insertEach loads records with autocommit statements.
func (b *SQLBackend) insertEach(ctx context.Context, spec TableSpec, records []model.Record) (LoadResult, error) {
	res := LoadResult{Attempted: len(records)}
	stmt, err := b.db.PrepareContext(ctx, spec.insertSQL())
	if err != nil {
		return res, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	err = b.insertRows(ctx, stmt, spec, records, &res, false)
	return res, err
}

// insertRows executes stmt once per record. With stopOnError the first
// failing row ends the load with errTxAborted instead of being skipped.
func (b *SQLBackend) insertRows(ctx context.Context, stmt *sql.Stmt, spec TableSpec, records []model.Record, res *LoadResult, stopOnError bool) error {
	for i, rec := range records {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		args, coerced := spec.bind(rec)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if stopOnError {
				return fmt.Errorf("%w: row %d: %w", errTxAborted, i+1, err)
			}
			b.logger.Warn("skipping row that failed to insert", "table", spec.Name.String(), "row", i+1, "error", err)
			res.Skipped++
			continue
		}
		res.Inserted++
		res.Coerced += coerced
	}
	return nil
}

// Query runs sql and scans at most maxRows rows.
func (b *SQLBackend) Query(ctx context.Context, query string, maxRows int) (*model.ResultSet, bool, error) {
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("query columns: %w", err)
	}
	names := model.UniqueColumnNames(columns)

	rs := &model.ResultSet{Columns: names, Rows: make([]model.Row, 0)}
	truncated := false
	for rows.Next() {
		if maxRows > 0 && len(rs.Rows) >= maxRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, false, fmt.Errorf("scan row: %w", err)
		}
		row := make(model.Row, len(names))
		for i, name := range names {
			row[name] = normalizeValue(values[i])
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return rs, truncated, nil
}

// DropTable drops a dataset table. Dropping a missing table is not an error.
func (b *SQLBackend) DropTable(ctx context.Context, name string) error {
	if !model.IsSafeIdentifier(name) {
		return fmt.Errorf("backend: invalid table name %q", name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+model.QuoteIdent(name)); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	return nil
}

// Close closes the database handle.
func (b *SQLBackend) Close() error {
	return b.db.Close()
}

// normalizeValue maps driver values onto string, float64, int64, bool or nil.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil, string, float64, int64, bool:
		return x
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x) //nolint:gosec // counts and ids stay far below the overflow range
	case float32:
		return float64(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case interface{ Float64() float64 }:
		return x.Float64()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
