// Package catalog stores dataset metadata in the persistent database.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/observability"
)

// ErrNotFound is returned when no dataset has the requested id.
var ErrNotFound = errors.New("catalog: dataset not found")

// DefaultListLimit and MaxListLimit bound List page sizes.
const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// ListOptions filters and pages List.
type ListOptions struct {
	// Search matches name or filename, case-insensitively.
	Search string
	Limit  int
	Offset int
}

// Store reads and writes the datasets table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New returns a store over an already migrated database.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: observability.OrDiscard(logger)}
}

// Open migrates db and returns a store over it.
func Open(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return New(db, logger), nil
}

const datasetColumns = `id, name, filename, file_size, columns_json, row_count, table_name, file_path, caller, created_at`

// Insert stores a new dataset.
func (s *Store) Insert(ctx context.Context, d *model.Dataset) error {
	cols, err := json.Marshal(d.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO datasets (`+datasetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Filename, d.FileSize, string(cols), d.RowCount, d.TableName, d.FilePath, d.Caller, d.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dataset: %w", err)
	}
	s.logger.Debug("dataset stored", slog.String("id", d.ID), slog.String("table", d.TableName))
	return nil
}

// Get returns one dataset.
func (s *Store) Get(ctx context.Context, id string) (*model.Dataset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id = ?`, id)
	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return d, nil
}

// List returns datasets newest first and the total number matching the
// search.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*model.Dataset, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset := max(opts.Offset, 0)

	where := ""
	var args []any
	if search := strings.TrimSpace(opts.Search); search != "" {
		where = ` WHERE name LIKE ? ESCAPE '\' OR filename LIKE ? ESCAPE '\'`
		pattern := "%" + escapeLike(search) + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count datasets: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var out []*model.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan dataset: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list datasets: %w", err)
	}
	return out, total, nil
}

// Delete removes a dataset. Its execution records go with it.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(sc scanner) (*model.Dataset, error) {
	var (
		d    model.Dataset
		cols string
	)
	if err := sc.Scan(&d.ID, &d.Name, &d.Filename, &d.FileSize, &cols, &d.RowCount, &d.TableName, &d.FilePath, &d.Caller, &d.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cols), &d.Columns); err != nil {
		return nil, fmt.Errorf("failed to decode columns of %s: %w", d.ID, err)
	}
	return &d, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
