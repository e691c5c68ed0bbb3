package decoder

import (
	"errors"
	"fmt"
)

// Reason names why a file could not be decoded.
type Reason string

const (
	// ReasonEmptyFile means the input had no bytes or only whitespace
	ReasonEmptyFile Reason = "empty file"
	// ReasonNoHeader means no non-empty line or row was found
	ReasonNoHeader Reason = "no header row"
	// ReasonNoSheets means the workbook has no sheets
	ReasonNoSheets Reason = "no sheets"
	// ReasonUnreadableBinary means the bytes are not in the declared format
	ReasonUnreadableBinary Reason = "unreadable binary"
	// ReasonMalformed means delimited text could not be tokenized
	ReasonMalformed Reason = "malformed delimited text"
	// ReasonTooManyRows means the row ceiling was exceeded
	ReasonTooManyRows Reason = "too many rows"
	// ReasonTooLarge means decompressed input exceeded its size limit
	ReasonTooLarge Reason = "decompressed size limit exceeded"
	// ReasonUnsupportedKind means the declared source kind is unknown
	ReasonUnsupportedKind Reason = "unsupported source kind"
)

// ErrEmptyDataset is returned when decoding yields zero rows after filtering.
var ErrEmptyDataset = errors.New("decoder: dataset has no rows")

// DecodeError reports a malformed or empty source file.
type DecodeError struct {
	Reason Reason
	Err    error
}

func newDecodeError(reason Reason, err error) *DecodeError {
	return &DecodeError{Reason: reason, Err: err}
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Reason, e.Err)
	}
	return "decode error: " + string(e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
