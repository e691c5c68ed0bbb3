package model

import (
	"math"
	"strconv"
	"strings"
)

// IsNumeric reports whether value is non-empty and parses as a finite number.
func IsNumeric(value string) bool {
	_, ok := ParseNumeric(value)
	return ok
}

// ParseNumeric parses a trimmed cell as a finite float64.
func ParseNumeric(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// InferColumnType classifies a single sample value.
func InferColumnType(value string) ColumnType {
	if IsNumeric(value) {
		return ColumnTypeNumeric
	}
	return ColumnTypeText
}

// InferColumns assigns a type to every header column by looking at the first
// data row only. A blank or textual first value makes the column Text even
// when later rows are numeric.
func InferColumns(header Header, first Record) []Column {
	if len(header) == 0 {
		return nil
	}

	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i] = Column{Name: name, Type: ColumnTypeText}
		if i < len(first) {
			columns[i].Type = InferColumnType(first[i])
		}
	}
	return columns
}

// InferColumnsFromRecords is InferColumns applied to the first record, if any.
func InferColumnsFromRecords(header Header, records []Record) []Column {
	if len(records) == 0 {
		return InferColumns(header, nil)
	}
	return InferColumns(header, records[0])
}
