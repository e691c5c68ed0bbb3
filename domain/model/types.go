// Package model provides domain model for tabquery
package model

import (
	"strconv"
	"strings"
	"time"
)

// Header is the ordered list of column names of a decoded file.
type Header []string

// NewHeader create new Header.
func NewHeader(h []string) Header {
	return Header(h)
}

// Equal compare Header.
func (h Header) Equal(h2 Header) bool {
	if len(h) != len(h2) {
		return false
	}
	for i, v := range h {
		if v != h2[i] {
			return false
		}
	}
	return true
}

// Record is one decoded row, aligned with a Header.
type Record []string

// NewRecord create new Record.
func NewRecord(r []string) Record {
	return Record(r)
}

// Equal compare Record.
func (r Record) Equal(r2 Record) bool {
	if len(r) != len(r2) {
		return false
	}
	for i, v := range r {
		if v != r2[i] {
			return false
		}
	}
	return true
}

// IsBlank reports whether every cell is empty after trimming.
func (r Record) IsBlank() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Align returns a copy of the record padded with "" or truncated to width.
func (r Record) Align(width int) Record {
	out := make(Record, width)
	copy(out, r)
	return out
}

// ColumnType is the coarse type assigned to a column by schema inference.
type ColumnType int

const (
	// ColumnTypeText represents a text column
	ColumnTypeText ColumnType = iota
	// ColumnTypeNumeric represents a numeric column
	ColumnTypeNumeric
)

const (
	sqlTypeText = "TEXT"
	sqlTypeReal = "REAL"
)

// String returns the display name of the column type
func (ct ColumnType) String() string {
	switch ct {
	case ColumnTypeNumeric:
		return "NUMERIC"
	default:
		return sqlTypeText
	}
}

// SQLType returns the column type used in generated DDL
func (ct ColumnType) SQLType() string {
	switch ct {
	case ColumnTypeNumeric:
		return sqlTypeReal
	default:
		return sqlTypeText
	}
}

// ParseColumnType parses the String form of a ColumnType.
func ParseColumnType(s string) ColumnType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NUMERIC", sqlTypeReal, "DOUBLE", "FLOAT", "INTEGER", "INT", "BIGINT":
		return ColumnTypeNumeric
	default:
		return ColumnTypeText
	}
}

// MarshalText implements encoding.TextMarshaler.
func (ct ColumnType) MarshalText() ([]byte, error) {
	return []byte(ct.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ct *ColumnType) UnmarshalText(b []byte) error {
	*ct = ParseColumnType(string(b))
	return nil
}

// Column is one column of a materialized dataset.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Row is one result row keyed by column name. Values are string, float64,
// int64, bool or nil.
type Row map[string]any

// ResultSet is the row-record shape every engine returns.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// UniqueColumnNames suffixes repeated result column names with _2, _3, ...
// so every column has its own key in a Row.
func UniqueColumnNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	for i, name := range names {
		seen[name]++
		out[i] = name
		for n := seen[name]; n > 1; n++ {
			candidate := name + "_" + strconv.Itoa(n)
			if _, taken := seen[candidate]; !taken {
				seen[candidate] = 1
				out[i] = candidate
				break
			}
		}
	}
	return out
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Dataset is one materialized table derived from an uploaded file.
type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Filename  string    `json:"filename"`
	FileSize  int64     `json:"file_size"`
	Columns   []Column  `json:"columns"`
	RowCount  int64     `json:"row_count"`
	TableName string    `json:"table_name"`
	FilePath  string    `json:"file_path,omitempty"`
	Caller    string    `json:"caller,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ColumnNames returns the dataset column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Status is the outcome of one query attempt.
type Status string

const (
	// StatusSuccess marks a query that returned rows
	StatusSuccess Status = "success"
	// StatusError marks a rejected or failed query
	StatusError Status = "error"
)

// QueryExecutionRecord is one logged attempt to run a query against a dataset.
type QueryExecutionRecord struct {
	ID           int64         `json:"id"`
	DatasetID    string        `json:"dataset_id"`
	Caller       string        `json:"caller,omitempty"`
	Query        string        `json:"query"`
	Duration     time.Duration `json:"duration"`
	Status       Status        `json:"status"`
	ErrorClass   string        `json:"error_class,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
