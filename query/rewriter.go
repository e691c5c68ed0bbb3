package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nao1215/tabquery/domain/model"
)

const (
	// DefaultPlaceholder is the table name queries use to mean "this dataset".
	DefaultPlaceholder = "data"
	// DefaultMaxRows is the LIMIT appended to queries without one.
	DefaultMaxRows = 10000
)

var (
	fromWord  = regexp.MustCompile(`(?i)\bFROM\b`)
	limitWord = regexp.MustCompile(`(?i)\bLIMIT\b`)
)

// Rewriter turns a validated query over the placeholder table into one over
// a concrete table. It is textual and does not parse the query.
type Rewriter struct {
	placeholder *regexp.Regexp
	maxRows     int
}

// NewRewriter returns a rewriter for placeholder that appends LIMIT maxRows
// to queries without a LIMIT. Empty or non-positive arguments take defaults.
func NewRewriter(placeholder string, maxRows int) *Rewriter {
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	q := regexp.QuoteMeta(placeholder)
	return &Rewriter{
		placeholder: regexp.MustCompile(`(?i)\b(DELETE\s+FROM|FROM|UPDATE)\s+(?:"` + q + `"|` + q + `\b)`),
		maxRows:     maxRows,
	}
}

// MaxRows returns the appended LIMIT.
func (r *Rewriter) MaxRows() int {
	return r.maxRows
}

// Rewrite replaces placeholder references after FROM, UPDATE or DELETE FROM
// with the quoted table name, appends FROM when the query has none and
// appends LIMIT when the query has none.
func (r *Rewriter) Rewrite(sql string, table model.TableName) string {
	out := strings.TrimSpace(sql)
	for strings.HasSuffix(out, ";") {
		out = strings.TrimSpace(strings.TrimSuffix(out, ";"))
	}

	quoted := table.Quoted()
	out = r.placeholder.ReplaceAllStringFunc(out, func(m string) string {
		sub := r.placeholder.FindStringSubmatch(m)
		return sub[1] + " " + quoted
	})

	if !fromWord.MatchString(out) {
		out += " FROM " + quoted
	}
	if !limitWord.MatchString(out) {
		out += " LIMIT " + strconv.Itoa(r.maxRows)
	}
	return out
}
