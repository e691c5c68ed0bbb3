package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		query    string
		strict   bool
		wantRule Rule
	}{
		{name: "plain select", query: "SELECT * FROM data"},
		{name: "lower case with whitespace", query: "  select name from data where age > 1  "},
		{name: "one trailing semicolon", query: "SELECT * FROM data;"},
		{name: "trailing semicolon and spaces", query: "SELECT * FROM data ;  \n"},
		{name: "too long", query: "SELECT " + strings.Repeat("a", DefaultMaxLength), wantRule: RuleLength},
		{name: "not select", query: "WITH x AS (SELECT 1) SELECT * FROM x", wantRule: RuleSelectOnly},
		{name: "explain", query: "EXPLAIN SELECT 1", wantRule: RuleSelectOnly},
		{name: "drop after select", query: "SELECT * FROM data; DROP TABLE data;", wantRule: RuleDenylist},
		{name: "benign column containing update", query: "SELECT updated_at FROM data", wantRule: RuleDenylist},
		{name: "replace function", query: "SELECT replace(name, 'a', 'b') FROM data", wantRule: RuleDenylist},
		{name: "lower case denylisted keyword", query: "select * from data where x = 'pragma'", wantRule: RuleDenylist},
		{name: "line comment", query: "SELECT * FROM data -- hidden", wantRule: RuleComment},
		{name: "block comment", query: "SELECT /* x */ 1", wantRule: RuleComment},
		{name: "two statements", query: "SELECT 1; SELECT 2", wantRule: RuleMultiStatement},
		{name: "two semicolons", query: "SELECT 1;;", wantRule: RuleMultiStatement},
		{name: "strict accepts subset", query: "SELECT Name FROM data WHERE Age > 26", strict: true},
		{name: "strict rejects subquery", query: "SELECT * FROM (SELECT 1)", strict: true, wantRule: RuleGrammar},
		{name: "strict rejects join", query: "SELECT * FROM data JOIN x ON 1 = 1", strict: true, wantRule: RuleGrammar},
		{name: "lenient allows subquery", query: "SELECT * FROM (SELECT 1)"},
		{name: "nul byte", query: "SELECT * FROM data\x00 WHERE x", strict: true, wantRule: RuleNulByte},
		{name: "nul byte lenient", query: "SELECT *\x00 junk", wantRule: RuleNulByte},
		{name: "strict quoted placeholder", query: `SELECT * FROM "DATA" WHERE Age > 1`, strict: true},
		{name: "strict without from", query: "SELECT Name WHERE Age > 1", strict: true},
		{name: "strict rejects catalog table", query: "SELECT * FROM datasets", strict: true, wantRule: RuleTable},
		{name: "strict rejects log table", query: "SELECT query, caller FROM query_executions", strict: true, wantRule: RuleTable},
		{name: "strict rejects other dataset", query: "SELECT * FROM dataset_0123456789abcdef0123456789abcdef", strict: true, wantRule: RuleTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := NewValidator(tt.strict).Validate(tt.query)
			if tt.wantRule == "" {
				assert.NoError(t, err)
				return
			}
			var rejected *RejectedError
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, tt.wantRule, rejected.Rule)
			assert.NotEmpty(t, rejected.Reason)
		})
	}
}

func TestValidator_DenylistKeywordReported(t *testing.T) {
	t.Parallel()

	err := NewValidator(false).Validate("SELECT last_updated FROM data")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "UPDATE", rejected.Keyword)
	assert.Equal(t, "query rejected: operation not allowed: UPDATE", err.Error())
}

func TestValidator_LengthCountsCharacters(t *testing.T) {
	t.Parallel()

	v := &Validator{MaxLength: 12}
	assert.NoError(t, v.Validate("SELECT 'ééé'"), "12 characters, more bytes")
	assert.Error(t, v.Validate("SELECT 'éééé'"))
}

func TestValidator_NonSelectRejectedForAllStatementKinds(t *testing.T) {
	t.Parallel()

	for _, q := range []string{"", " ", "INSERT INTO data VALUES (1)", "VALUES (1)", "SHOW TABLES", "(SELECT 1)", "SEL ECT 1"} {
		err := NewValidator(false).Validate(q)
		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected, "query %q", q)
		assert.Equal(t, RuleSelectOnly, rejected.Rule, "query %q", q)
	}
}

func TestValidator_CustomPlaceholder(t *testing.T) {
	t.Parallel()

	v := &Validator{Strict: true, Placeholder: "sheet"}
	assert.NoError(t, v.Validate("SELECT * FROM sheet"))

	var rejected *RejectedError
	require.ErrorAs(t, v.Validate("SELECT * FROM data"), &rejected)
	assert.Equal(t, RuleTable, rejected.Rule)
	assert.Contains(t, rejected.Reason, `"sheet"`)
}
