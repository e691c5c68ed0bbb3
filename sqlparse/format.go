package sqlparse

import (
	"strconv"
	"strings"
)

// Format renders an expression back to SQL text. It is used to name result
// columns that have no alias.
func Format(e Expr) string {
	var sb strings.Builder
	format(&sb, e)
	return sb.String()
}

func format(sb *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		sb.WriteString("NULL")
	case *ColumnRef:
		if n.Table != "" {
			sb.WriteString(n.Table)
			sb.WriteByte('.')
		}
		sb.WriteString(n.Name)
	case *Literal:
		switch v := n.Value.(type) {
		case nil:
			sb.WriteString("NULL")
		case string:
			sb.WriteString("'" + strings.ReplaceAll(v, "'", "''") + "'")
		case int64:
			sb.WriteString(strconv.FormatInt(v, 10))
		case float64:
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		case bool:
			if v {
				sb.WriteString("TRUE")
			} else {
				sb.WriteString("FALSE")
			}
		}
	case *Param:
		sb.WriteByte('?')
	case *Unary:
		sb.WriteString(n.Op)
		if n.Op == "NOT" {
			sb.WriteByte(' ')
		}
		format(sb, n.X)
	case *Binary:
		format(sb, n.Left)
		sb.WriteString(" " + n.Op + " ")
		format(sb, n.Right)
	case *IsNull:
		format(sb, n.X)
		if n.Not {
			sb.WriteString(" IS NOT NULL")
		} else {
			sb.WriteString(" IS NULL")
		}
	case *Like:
		format(sb, n.X)
		sb.WriteString(not(n.Not) + " LIKE ")
		format(sb, n.Pattern)
	case *In:
		format(sb, n.X)
		sb.WriteString(not(n.Not) + " IN (")
		formatList(sb, n.List)
		sb.WriteByte(')')
	case *Between:
		format(sb, n.X)
		sb.WriteString(not(n.Not) + " BETWEEN ")
		format(sb, n.Lo)
		sb.WriteString(" AND ")
		format(sb, n.Hi)
	case *Call:
		sb.WriteString(n.Name + "(")
		switch {
		case n.Star:
			sb.WriteByte('*')
		case n.Distinct:
			sb.WriteString("DISTINCT ")
			formatList(sb, n.Args)
		default:
			formatList(sb, n.Args)
		}
		sb.WriteByte(')')
	case *Cast:
		sb.WriteString("CAST(")
		format(sb, n.X)
		sb.WriteString(" AS " + n.Type + ")")
	case *Case:
		sb.WriteString("CASE")
		if n.Operand != nil {
			sb.WriteByte(' ')
			format(sb, n.Operand)
		}
		for _, w := range n.Whens {
			sb.WriteString(" WHEN ")
			format(sb, w.Cond)
			sb.WriteString(" THEN ")
			format(sb, w.Result)
		}
		if n.Else != nil {
			sb.WriteString(" ELSE ")
			format(sb, n.Else)
		}
		sb.WriteString(" END")
	}
}

func formatList(sb *strings.Builder, list []Expr) {
	for i, x := range list {
		if i > 0 {
			sb.WriteString(", ")
		}
		format(sb, x)
	}
}

func not(b bool) string {
	if b {
		return " NOT"
	}
	return ""
}
