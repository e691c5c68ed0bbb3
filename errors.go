package tabquery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/tabquery/backend"
	"github.com/nao1215/tabquery/decoder"
	"github.com/nao1215/tabquery/query"
)

var (
	// ErrEmptyDataset indicates that decoding produced no rows. Errors
	// carrying it also match decoder.ErrEmptyDataset.
	ErrEmptyDataset = errors.New("tabquery: dataset has no rows")

	// ErrDatasetNotFound indicates an unknown dataset id
	ErrDatasetNotFound = errors.New("tabquery: dataset not found")

	// ErrFileTooLarge indicates an upload above ingest.max_file_bytes
	ErrFileTooLarge = errors.New("tabquery: file exceeds the upload size limit")

	// ErrInvalidName indicates an empty or unusable dataset name
	ErrInvalidName = errors.New("tabquery: invalid dataset name")

	// ErrClosed indicates use of a closed pipeline
	ErrClosed = errors.New("tabquery: pipeline closed")
)

type (
	// DecodeError is returned when an uploaded file cannot be decoded.
	DecodeError = decoder.DecodeError
	// RejectedError is returned when a query fails static validation.
	RejectedError = query.RejectedError
	// MaterializationError is returned when a table cannot be created or loaded.
	MaterializationError = backend.MaterializationError
	// BackendError is a classified runtime failure of an accepted query.
	BackendError = query.BackendError
)

// ErrorContext provides context for where an error occurred
type ErrorContext struct {
	Operation string
	DatasetID string
	Filename  string
	TableName string
	Details   string
}

// NewErrorContext creates a new error context
func NewErrorContext(operation string) *ErrorContext {
	return &ErrorContext{Operation: operation}
}

// WithDataset adds the dataset id to the error context
func (ec *ErrorContext) WithDataset(id string) *ErrorContext {
	ec.DatasetID = id
	return ec
}

// WithFile adds the uploaded file name to the error context
func (ec *ErrorContext) WithFile(filename string) *ErrorContext {
	ec.Filename = filename
	return ec
}

// WithTable adds table context to the error
func (ec *ErrorContext) WithTable(tableName string) *ErrorContext {
	ec.TableName = tableName
	return ec
}

// WithDetails adds details to the error context
func (ec *ErrorContext) WithDetails(details string) *ErrorContext {
	ec.Details = details
	return ec
}

// Error wraps baseErr with the context. errors.Is and errors.As still see
// baseErr.
func (ec *ErrorContext) Error(baseErr error) error {
	parts := []string{fmt.Sprintf("tabquery: %s failed", ec.Operation)}
	if ec.DatasetID != "" {
		parts = append(parts, "dataset: "+ec.DatasetID)
	}
	if ec.Filename != "" {
		parts = append(parts, "file: "+ec.Filename)
	}
	if ec.TableName != "" {
		parts = append(parts, "table: "+ec.TableName)
	}
	if ec.Details != "" {
		parts = append(parts, "details: "+ec.Details)
	}
	return fmt.Errorf("%s: %w", strings.Join(parts, ", "), baseErr)
}

// errorClass is the execution log class of a failed attempt.
func errorClass(err error) string {
	var rejected *RejectedError
	var be *BackendError
	switch {
	case errors.As(err, &rejected):
		return "rejected"
	case errors.As(err, &be):
		return string(be.Class)
	case errors.Is(err, ErrDatasetNotFound):
		return "not_found"
	case errors.Is(err, ErrEmptyDataset), errors.Is(err, decoder.ErrEmptyDataset):
		return "empty_dataset"
	}
	var de *DecodeError
	var me *MaterializationError
	switch {
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &me):
		return "materialization"
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	}
	return string(query.ClassOther)
}

// emptyDataset marks err with ErrEmptyDataset when it is the decoder's
// empty-dataset error.
func emptyDataset(err error) error {
	if errors.Is(err, decoder.ErrEmptyDataset) {
		return fmt.Errorf("%w: %w", ErrEmptyDataset, err)
	}
	return err
}
