package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// TablePrefix is the prefix of every materialized dataset table.
const TablePrefix = "dataset_"

// TableName is the name of a materialized table. It only ever holds ASCII
// letters, digits and underscores so it can be interpolated into SQL.
type TableName struct {
	value string
}

// NewTableName returns a fresh dataset_<32 hex> table name.
func NewTableName() TableName {
	id := uuid.New()
	return TableName{value: TablePrefix + strings.ReplaceAll(id.String(), "-", "")}
}

// ParseTableName sanitizes s into a table name.
func ParseTableName(s string) TableName {
	return TableName{value: sanitizeIdentifier(s)}
}

// String returns the table name
func (tn TableName) String() string {
	return tn.value
}

// Quoted returns the table name as a double-quoted SQL identifier.
func (tn TableName) Quoted() string {
	return QuoteIdent(tn.value)
}

// IsSafeIdentifier reports whether s consists only of ASCII letters, digits
// and underscores and does not start with a digit.
func IsSafeIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// sanitizeIdentifier removes invalid characters from table names
func sanitizeIdentifier(s string) string {
	result := strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(s)

	var sanitized strings.Builder
	for _, r := range result {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			sanitized.WriteRune(r)
		}
	}

	out := sanitized.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "table_" + out
	}
	if out == "" {
		out = "table"
	}
	return out
}

// QuoteIdent quotes an identifier for generated DDL and DML.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// NormalizeCell trims a cell and collapses internal whitespace runs to one space.
func NormalizeCell(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeHeader normalizes header cells and replaces empty or duplicate
// names with Column_<1-based index>. A placeholder that itself collides
// gets a numeric suffix.
func NormalizeHeader(raw []string) Header {
	out := make(Header, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, name := range raw {
		name = NormalizeCell(name)
		if _, dup := seen[strings.ToLower(name)]; name == "" || dup {
			name = placeholderColumn(i, seen)
		}
		seen[strings.ToLower(name)] = struct{}{}
		out[i] = name
	}
	return out
}

func placeholderColumn(index int, seen map[string]struct{}) string {
	base := "Column_" + strconv.Itoa(index+1)
	name := base
	for n := 2; ; n++ {
		if _, taken := seen[strings.ToLower(name)]; !taken {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
}
