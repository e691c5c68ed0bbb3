// Package fallback is a minimal in-memory relational interpreter used when
// the native in-memory engine cannot start. It supports CREATE TABLE,
// INSERT INTO ... VALUES and single-table SELECT with filtering, ordering,
// whole-table aggregates and LIMIT/OFFSET.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/sqlparse"
)

// ErrUnsupported is returned for statements outside the interpreter's subset.
var ErrUnsupported = errors.New("fallback: unsupported statement")

// scanCheckEvery is how many rows are scanned between context checks.
const scanCheckEvery = 256

type column struct {
	name string
	typ  model.ColumnType
}

type table struct {
	name string
	cols []column
	rows [][]any
}

func (t *table) colIndex(name string) int {
	for i, c := range t.cols {
		if strings.EqualFold(c.name, name) {
			return i
		}
	}
	return -1
}

// DB holds tables in memory. It is safe for concurrent use; writes are
// serialized and reads share a lock.
type DB struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// New returns an empty database.
func New() *DB {
	return &DB{tables: make(map[string]*table)}
}

// Exec runs CREATE TABLE or INSERT and returns the number of affected rows.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stmt, err := sqlparse.Parse(sql)
	if err != nil {
		return 0, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	switch s := stmt.(type) {
	case *sqlparse.CreateTable:
		return 0, db.create(s)
	case *sqlparse.Insert:
		return db.insert(s, normalizeArgs(args))
	default:
		return 0, fmt.Errorf("%w: use Query for SELECT", ErrUnsupported)
	}
}

// Query runs a SELECT.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (*model.ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stmt, err := sqlparse.Parse(sql)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*sqlparse.Select)
	if !ok {
		return nil, fmt.Errorf("%w: Query only runs SELECT", ErrUnsupported)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.selectRows(ctx, sel, normalizeArgs(args))
}

// Drop removes a table. Dropping a missing table is an error.
func (db *DB) Drop(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := strings.ToLower(name)
	if _, ok := db.tables[key]; !ok {
		return fmt.Errorf("no such table: %s", name)
	}
	delete(db.tables, key)
	return nil
}

// rowCount returns the number of rows in a table.
func (db *DB) rowCount(name string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, ok := db.tables[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("no such table: %s", name)
	}
	return len(t.rows), nil
}

func (db *DB) create(s *sqlparse.CreateTable) error {
	key := strings.ToLower(s.Name)
	if _, exists := db.tables[key]; exists {
		if s.IfNotExists {
			return nil
		}
		return fmt.Errorf("table %s already exists", s.Name)
	}

	t := &table{name: s.Name}
	for _, def := range s.Columns {
		if t.colIndex(def.Name) >= 0 {
			return fmt.Errorf("duplicate column name: %s", def.Name)
		}
		t.cols = append(t.cols, column{name: def.Name, typ: model.ParseColumnType(def.Type)})
	}
	db.tables[key] = t
	return nil
}

func (db *DB) insert(s *sqlparse.Insert, args []any) (int64, error) {
	t, ok := db.tables[strings.ToLower(s.Table)]
	if !ok {
		return 0, fmt.Errorf("no such table: %s", s.Table)
	}

	targets := make([]int, 0, len(t.cols))
	if len(s.Columns) == 0 {
		for i := range t.cols {
			targets = append(targets, i)
		}
	} else {
		for _, name := range s.Columns {
			i := t.colIndex(name)
			if i < 0 {
				return 0, fmt.Errorf("table %s has no column named %s", t.name, name)
			}
			targets = append(targets, i)
		}
	}

	// rows are evaluated before any is appended so a bad row inserts nothing
	pending := make([][]any, 0, len(s.Rows))
	for _, exprs := range s.Rows {
		if len(exprs) != len(targets) {
			return 0, fmt.Errorf("table %s has %d columns but %d values were supplied", t.name, len(targets), len(exprs))
		}
		row := make([]any, len(t.cols))
		for j, e := range exprs {
			v, err := evalConst(e, args)
			if err != nil {
				return 0, err
			}
			row[targets[j]] = applyAffinity(v, t.cols[targets[j]].typ)
		}
		pending = append(pending, row)
	}
	t.rows = append(t.rows, pending...)
	return int64(len(pending)), nil
}

func normalizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = normalize(a)
	}
	return out
}
