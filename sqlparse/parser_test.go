package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AcceptsSelectSubset(t *testing.T) {
	t.Parallel()

	queries := []string{
		"SELECT * FROM data",
		"select * from data;",
		"SELECT Name FROM data WHERE Age > 26",
		"SELECT DISTINCT city FROM data ORDER BY city DESC NULLS LAST",
		`SELECT "first name", [last name], ` + "`age`" + ` FROM data`,
		"SELECT d.* FROM data AS d WHERE d.score BETWEEN 1 AND 10",
		"SELECT COUNT(*), AVG(price) AS avg_price, SUM(DISTINCT qty) FROM data",
		"SELECT category, COUNT(*) c FROM data GROUP BY category HAVING COUNT(*) > 1 ORDER BY c DESC LIMIT 5 OFFSET 2",
		"SELECT name FROM data WHERE name LIKE 'A%' AND city NOT IN ('x', 'y') OR note IS NOT NULL",
		"SELECT CASE WHEN age >= 18 THEN 'adult' ELSE 'minor' END AS bracket FROM data",
		"SELECT CAST(age AS INTEGER), upper(name) || '!' FROM data",
		"SELECT -price * 1.5e2 % 7 FROM data LIMIT 10, 20",
		"SELECT 1",
		"SELECT name",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			t.Parallel()
			sel, err := ParseSelect(q)
			require.NoError(t, err)
			assert.NotEmpty(t, sel.Items)
		})
	}
}

func TestParse_RejectsOutsideGrammar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
	}{
		{name: "empty", query: "   "},
		{name: "drop", query: "DROP TABLE data"},
		{name: "update", query: "UPDATE data SET a = 1"},
		{name: "stacked statements", query: "SELECT * FROM data; DROP TABLE data"},
		{name: "two selects", query: "SELECT 1; SELECT 2"},
		{name: "subquery in from", query: "SELECT * FROM (SELECT 1)"},
		{name: "subquery in where", query: "SELECT * FROM data WHERE a IN (SELECT b FROM data)"},
		{name: "scalar subquery", query: "SELECT (SELECT 1) FROM data"},
		{name: "join", query: "SELECT * FROM data JOIN other ON data.id = other.id"},
		{name: "comma join", query: "SELECT * FROM data, other"},
		{name: "union", query: "SELECT a FROM data UNION SELECT b FROM data"},
		{name: "with", query: "WITH x AS (SELECT 1) SELECT * FROM x"},
		{name: "unterminated string", query: "SELECT 'abc FROM data"},
		{name: "dangling operator", query: "SELECT a + FROM data"},
		{name: "missing select list", query: "SELECT FROM data"},
		{name: "illegal character", query: "SELECT a # b FROM data"},
		{name: "embedded nul", query: "SELECT * FROM data\x00 WHERE x"},
		{name: "trailing nul", query: "SELECT *\x00"},
		{name: "create is not select", query: "CREATE TABLE t (a TEXT)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSelect(tt.query)
			require.Error(t, err)
			var synErr *SyntaxError
			assert.ErrorAs(t, err, &synErr)
			assert.Contains(t, err.Error(), "syntax error")
		})
	}
}

func TestParse_SelectShape(t *testing.T) {
	t.Parallel()

	sel, err := ParseSelect("SELECT Name, Age + 1 AS next FROM data d WHERE Age > 26 ORDER BY Age LIMIT 3")
	require.NoError(t, err)

	require.Len(t, sel.Items, 2)
	assert.Equal(t, &ColumnRef{Name: "Name"}, sel.Items[0].Expr)
	assert.Equal(t, "next", sel.Items[1].Alias)
	assert.Equal(t, &TableRef{Name: "data", Alias: "d"}, sel.From)
	assert.Equal(t, &Binary{Op: ">", Left: &ColumnRef{Name: "Age"}, Right: &Literal{Value: int64(26)}}, sel.Where)
	require.Len(t, sel.OrderBy, 1)
	assert.False(t, sel.OrderBy[0].Desc)
	assert.Equal(t, &Literal{Value: int64(3)}, sel.Limit)
	assert.Nil(t, sel.Offset)
}

func TestParse_LimitCommaForm(t *testing.T) {
	t.Parallel()

	sel, err := ParseSelect("SELECT * FROM data LIMIT 5, 10")
	require.NoError(t, err)
	assert.Equal(t, &Literal{Value: int64(10)}, sel.Limit)
	assert.Equal(t, &Literal{Value: int64(5)}, sel.Offset)
}

func TestParse_CreateAndInsert(t *testing.T) {
	t.Parallel()

	stmt, err := Parse(`CREATE TABLE IF NOT EXISTS "dataset_1" ("Name" TEXT, "Age" REAL, note VARCHAR(20), raw)`)
	require.NoError(t, err)
	ct, ok := stmt.(*CreateTable)
	require.True(t, ok)
	assert.True(t, ct.IfNotExists)
	assert.Equal(t, "dataset_1", ct.Name)
	assert.Equal(t, []ColumnDef{
		{Name: "Name", Type: "TEXT"},
		{Name: "Age", Type: "REAL"},
		{Name: "note", Type: "VARCHAR"},
		{Name: "raw", Type: ""},
	}, ct.Columns)

	stmt, err = Parse(`INSERT INTO "dataset_1" VALUES (?, ?, 'it''s', NULL), ('x', -1.5, ?, ?)`)
	require.NoError(t, err)
	ins, ok := stmt.(*Insert)
	require.True(t, ok)
	require.Len(t, ins.Rows, 2)
	assert.Equal(t, &Param{Index: 1}, ins.Rows[0][1])
	assert.Equal(t, &Literal{Value: "it's"}, ins.Rows[0][2])
	assert.Equal(t, &Literal{Value: nil}, ins.Rows[0][3])
	assert.Equal(t, &Unary{Op: "-", X: &Literal{Value: 1.5}}, ins.Rows[1][1])
	assert.Equal(t, &Param{Index: 3}, ins.Rows[1][3])
}

func TestHasAggregate(t *testing.T) {
	t.Parallel()

	sel, err := ParseSelect("SELECT COUNT(*) + 1, max(a, b), upper(name), SUM(x) FROM data")
	require.NoError(t, err)
	assert.True(t, HasAggregate(sel.Items[0].Expr))
	assert.False(t, HasAggregate(sel.Items[1].Expr), "two-argument MAX is scalar")
	assert.False(t, HasAggregate(sel.Items[2].Expr))
	assert.True(t, HasAggregate(sel.Items[3].Expr))
}

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  string
	}{
		{query: "SELECT COUNT(*) FROM data", want: "COUNT(*)"},
		{query: "SELECT avg(price) FROM data", want: "AVG(price)"},
		{query: "SELECT d.name FROM data d", want: "d.name"},
		{query: "SELECT a + 1 FROM data", want: "a + 1"},
		{query: "SELECT 'it''s'", want: "'it''s'"},
		{query: "SELECT x NOT IN (1, 2.5)", want: "x NOT IN (1, 2.5)"},
		{query: "SELECT COUNT(DISTINCT city)", want: "COUNT(DISTINCT city)"},
	}
	for _, tt := range tests {
		sel, err := ParseSelect(tt.query)
		require.NoError(t, err)
		assert.Equal(t, tt.want, Format(sel.Items[0].Expr), "query %q", tt.query)
	}
}
