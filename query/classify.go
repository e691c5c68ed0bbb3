package query

import (
	"context"
	"errors"
	"strings"
)

// Class is the stable taxonomy of backend failures.
type Class string

const (
	ClassTableMissing  Class = "table_missing"
	ClassColumnMissing Class = "column_missing"
	ClassSyntax        Class = "syntax"
	ClassTimeout       Class = "timeout"
	ClassOther         Class = "other"
)

// Message returns the caller-facing message for the class.
func (c Class) Message() string {
	switch c {
	case ClassTableMissing:
		return "Dataset table not found. Please re-upload the dataset."
	case ClassColumnMissing:
		return "Column not found in dataset. Please check column names."
	case ClassSyntax:
		return "SQL syntax error. Please check your query."
	case ClassTimeout:
		return "Query timed out. Please simplify your query or add filters."
	default:
		return "Query execution failed. Please check your query."
	}
}

// BackendError is a runtime failure of an accepted query, translated into
// the stable taxonomy. The raw backend error is kept for logs only.
type BackendError struct {
	Class   Class
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	return e.Message
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Classify translates a raw backend error. It recognises SQLite, DuckDB and
// the in-memory engine's messages.
func Classify(err error) *BackendError {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}
	class := classOf(err)
	return &BackendError{Class: class, Message: class.Message(), Err: err}
}

func classOf(err error) Class {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "interrupted"):
		return ClassTimeout
	case strings.Contains(msg, "no such table"),
		strings.Contains(msg, "table with name") && strings.Contains(msg, "does not exist"):
		return ClassTableMissing
	case strings.Contains(msg, "no such column"),
		strings.Contains(msg, "referenced column") && strings.Contains(msg, "not found"):
		return ClassColumnMissing
	case strings.Contains(msg, "syntax error"),
		strings.Contains(msg, "incomplete input"),
		strings.Contains(msg, "unrecognized token"),
		strings.Contains(msg, "parser error"):
		return ClassSyntax
	default:
		return ClassOther
	}
}
