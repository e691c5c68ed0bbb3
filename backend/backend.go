// Package backend materializes decoded datasets into relational tables and
// runs validated queries against them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/tabquery/domain/model"
)

// Kind classifies a backend by lifetime.
type Kind string

const (
	// KindPersistent is disk-backed and shared across calls.
	KindPersistent Kind = "persistent"
	// KindVolatile lives in memory for one session call.
	KindVolatile Kind = "volatile"
	// KindFallback is the in-process interpreter used when no volatile
	// engine can start.
	KindFallback Kind = "fallback"
)

// Engine names reported by Backend.Engine.
const (
	EngineSQLite       = "sqlite"
	EngineSQLiteMemory = "sqlite-memory"
	EngineDuckDB       = "duckdb"
	EngineFallback     = "fallback"
)

// ErrEngineUnavailable is returned by openers whose engine cannot start in
// this build or environment.
var ErrEngineUnavailable = errors.New("backend: engine unavailable")

// Backend is a relational store that datasets are materialized into.
type Backend interface {
	Kind() Kind
	Engine() string
	// Materialize creates spec's table and loads records into it.
	Materialize(ctx context.Context, spec TableSpec, records []model.Record) (LoadResult, error)
	// Query runs sql and returns at most maxRows rows. truncated reports
	// whether more rows were available. maxRows <= 0 means no cap.
	Query(ctx context.Context, sql string, maxRows int) (rs *model.ResultSet, truncated bool, err error)
	DropTable(ctx context.Context, name string) error
	Close() error
}

// TableSpec describes the table to create for a dataset.
type TableSpec struct {
	Name    model.TableName
	Columns []model.Column
}

// createSQL renders the CREATE TABLE statement. numericType is the engine's
// 64-bit floating point type name.
func (s TableSpec) createSQL(numericType string) string {
	defs := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		typ := c.Type.SQLType()
		if c.Type == model.ColumnTypeNumeric {
			typ = numericType
		}
		defs[i] = model.QuoteIdent(c.Name) + " " + typ
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", s.Name.Quoted(), strings.Join(defs, ", "))
}

func (s TableSpec) insertSQL() string {
	names := make([]string, len(s.Columns))
	marks := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = model.QuoteIdent(c.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.Name.Quoted(), strings.Join(names, ", "), strings.Join(marks, ", "))
}

// bind converts one decoded record into statement arguments. Numeric cells
// become float64 or NULL; coerced counts non-empty cells that did not parse.
func (s TableSpec) bind(rec model.Record) (args []any, coerced int) {
	args = make([]any, len(s.Columns))
	for i, c := range s.Columns {
		var cell string
		if i < len(rec) {
			cell = rec[i]
		}
		if c.Type != model.ColumnTypeNumeric {
			args[i] = cell
			continue
		}
		if strings.TrimSpace(cell) == "" {
			args[i] = nil
			continue
		}
		f, ok := model.ParseNumeric(cell)
		if !ok {
			args[i] = nil
			coerced++
			continue
		}
		args[i] = f
	}
	return args, coerced
}

// LoadResult counts what happened to the records of one materialization.
type LoadResult struct {
	Attempted int `json:"attempted"`
	Inserted  int `json:"inserted"`
	Skipped   int `json:"skipped"`
	Coerced   int `json:"coerced"`
}

// MaterializationError reports a table that could not be created or that
// received no rows.
type MaterializationError struct {
	Table     string
	Attempted int
	Inserted  int
	Err       error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialization of %s failed (%d of %d rows inserted): %v", e.Table, e.Inserted, e.Attempted, e.Err)
}

func (e *MaterializationError) Unwrap() error {
	return e.Err
}

// errNoRowsInserted is the cause when every record was rejected.
var errNoRowsInserted = errors.New("no rows inserted")
