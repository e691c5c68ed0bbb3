// Package query guards and prepares untrusted query text: static validation,
// placeholder rewriting and classification of backend failures.
package query

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/tabquery/sqlparse"
)

// DefaultMaxLength is the longest accepted query, in characters.
const DefaultMaxLength = 10000

// DefaultDenylist is matched as a case-insensitive substring of the whole query.
var DefaultDenylist = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "CREATE", "ALTER", "ATTACH", "DETACH",
	"PRAGMA", "VACUUM", "REINDEX", "TRUNCATE", "REPLACE", "MERGE", "UPSERT",
}

// Rule names the validation rule that rejected a query.
type Rule string

const (
	RuleLength         Rule = "length"
	RuleSelectOnly     Rule = "select-only"
	RuleDenylist       Rule = "denylist"
	RuleComment        Rule = "comment"
	RuleMultiStatement Rule = "multiple-statements"
	RuleNulByte        Rule = "nul-byte"
	RuleGrammar        Rule = "grammar"
	RuleTable          Rule = "table"
)

// RejectedError is returned for a query that failed static validation. It
// never reaches a backend.
type RejectedError struct {
	Rule    Rule
	Reason  string
	Keyword string
}

func (e *RejectedError) Error() string {
	return "query rejected: " + e.Reason
}

// Validator statically rejects disallowed SQL.
type Validator struct {
	// MaxLength is the character limit. Zero means DefaultMaxLength.
	MaxLength int
	// Denylist replaces DefaultDenylist when non-nil.
	Denylist []string
	// Strict additionally requires the query to parse as a single SELECT
	// reading only Placeholder.
	Strict bool
	// Placeholder is the only table a strict query may read. Empty means
	// DefaultPlaceholder.
	Placeholder string
}

// NewValidator returns a validator with the default limits.
func NewValidator(strict bool) *Validator {
	return &Validator{Strict: strict}
}

// Validate applies the rules in order: length, SELECT prefix, denylist,
// comments, statement count, NUL bytes and, when strict, the grammar and the
// table read.
func (v *Validator) Validate(sql string) error {
	maxLen := v.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	if n := utf8.RuneCountInString(sql); n > maxLen {
		return &RejectedError{
			Rule:   RuleLength,
			Reason: fmt.Sprintf("query too long: %d characters, maximum is %d", n, maxLen),
		}
	}

	upper := strings.ToUpper(strings.TrimSpace(sql))
	if !strings.HasPrefix(upper, "SELECT") {
		return &RejectedError{Rule: RuleSelectOnly, Reason: "only SELECT queries are allowed"}
	}

	denylist := v.Denylist
	if denylist == nil {
		denylist = DefaultDenylist
	}
	for _, kw := range denylist {
		if strings.Contains(upper, kw) {
			return &RejectedError{
				Rule:    RuleDenylist,
				Reason:  "operation not allowed: " + kw,
				Keyword: kw,
			}
		}
	}

	if strings.Contains(upper, "--") || strings.Contains(upper, "/*") {
		return &RejectedError{Rule: RuleComment, Reason: "comments are not allowed in queries"}
	}

	if i := strings.IndexByte(upper, ';'); i >= 0 && strings.TrimSpace(upper[i+1:]) != "" {
		return &RejectedError{Rule: RuleMultiStatement, Reason: "multiple statements are not allowed"}
	}

	if strings.IndexByte(sql, 0) >= 0 {
		return &RejectedError{Rule: RuleNulByte, Reason: "NUL bytes are not allowed in queries"}
	}

	if v.Strict {
		sel, err := sqlparse.ParseSelect(sql)
		if err != nil {
			return &RejectedError{Rule: RuleGrammar, Reason: "unsupported query: " + err.Error()}
		}
		placeholder := v.Placeholder
		if placeholder == "" {
			placeholder = DefaultPlaceholder
		}
		if sel.From != nil && !strings.EqualFold(sel.From.Name, placeholder) {
			return &RejectedError{
				Rule:   RuleTable,
				Reason: fmt.Sprintf("queries may only read the %q table", placeholder),
			}
		}
	}
	return nil
}
