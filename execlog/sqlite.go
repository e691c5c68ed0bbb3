package execlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/observability"
)

// writeTimeout bounds a record write that outlives its caller's context.
const writeTimeout = 5 * time.Second

// SQLite writes records to the catalog's query_executions table.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLite returns a log over a migrated catalog database.
func NewSQLite(db *sql.DB, logger *slog.Logger) *SQLite {
	return &SQLite{db: db, logger: observability.OrDiscard(logger), now: time.Now}
}

// Record inserts an entry. The write runs even if ctx is already done,
// since timed-out attempts must be recorded too.
func (s *SQLite) Record(ctx context.Context, e Entry) {
	r := toRecord(0, e, s.now().UTC())
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_executions
		 (requested_id, dataset_id, caller, query, duration_ns, status, error_class, error_message, created_at)
		 VALUES (?, (SELECT id FROM datasets WHERE id = ?), ?, ?, ?, ?, ?, ?, ?)`,
		r.DatasetID, r.DatasetID, r.Caller, r.Query, r.Duration.Nanoseconds(), string(r.Status), r.ErrorClass, r.ErrorMessage, r.CreatedAt,
	)
	if err != nil {
		recordFailure(s.logger, e, err)
	}
}

// History returns the newest records first.
func (s *SQLite) History(ctx context.Context, datasetID string, limit int) ([]model.QueryExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, requested_id, caller, query, duration_ns, status, error_class, error_message, created_at
		 FROM query_executions
		 WHERE requested_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		datasetID, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []model.QueryExecutionRecord
	for rows.Next() {
		var (
			r      model.QueryExecutionRecord
			nanos  int64
			status string
		)
		if err := rows.Scan(&r.ID, &r.DatasetID, &r.Caller, &r.Query, &nanos, &status, &r.ErrorClass, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		r.Duration = time.Duration(nanos)
		r.Status = model.Status(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return out, nil
}
