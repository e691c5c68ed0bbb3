package fallback

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/sqlparse"
)

// projection is one output column: either a source column index or an
// expression.
type projection struct {
	name string
	col  int
	expr sqlparse.Expr
}

type outRow struct {
	vals []any
	keys []any
}

func (db *DB) selectRows(ctx context.Context, sel *sqlparse.Select, args []any) (*model.ResultSet, error) {
	if len(sel.GroupBy) > 0 || sel.Having != nil {
		return nil, fmt.Errorf("%w: GROUP BY", ErrUnsupported)
	}

	base := &env{args: args}
	if sel.From != nil {
		t, ok := db.tables[strings.ToLower(sel.From.Name)]
		if !ok {
			return nil, fmt.Errorf("no such table: %s", sel.From.Name)
		}
		base.t, base.alias = t, sel.From.Alias
	}

	projs, err := project(sel, base)
	if err != nil {
		return nil, err
	}

	rows, err := filter(ctx, sel.Where, base)
	if err != nil {
		return nil, err
	}

	aggregate := false
	for _, p := range projs {
		if p.expr != nil && sqlparse.HasAggregate(p.expr) {
			aggregate = true
		}
	}

	var out []outRow
	if aggregate {
		en := &env{t: base.t, alias: base.alias, args: args, group: rows}
		if len(rows) > 0 {
			en.row = rows[0]
		}
		vals, err := evalProjection(projs, en)
		if err != nil {
			return nil, err
		}
		out = []outRow{{vals: vals}}
	} else {
		out = make([]outRow, 0, len(rows))
		for i, row := range rows {
			if i%scanCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			en := &env{t: base.t, alias: base.alias, row: row, args: args}
			vals, err := evalProjection(projs, en)
			if err != nil {
				return nil, err
			}
			keys, err := orderKeys(sel.OrderBy, projs, vals, en)
			if err != nil {
				return nil, err
			}
			out = append(out, outRow{vals: vals, keys: keys})
		}
	}

	if sel.Distinct {
		out = distinct(out)
	}
	if len(sel.OrderBy) > 0 && !aggregate {
		sortRows(out, sel.OrderBy)
	}

	offset, _, err := limitValue(sel.Offset, args)
	if err != nil {
		return nil, err
	}
	limit, hasLimit, err := limitValue(sel.Limit, args)
	if err != nil {
		return nil, err
	}
	if offset >= len(out) {
		out = nil
	} else {
		out = out[offset:]
	}
	if hasLimit && limit < len(out) {
		out = out[:limit]
	}

	names := make([]string, len(projs))
	for i, p := range projs {
		names[i] = p.name
	}
	names = model.UniqueColumnNames(names)

	rs := &model.ResultSet{Columns: names, Rows: make([]model.Row, len(out))}
	for i, r := range out {
		row := make(model.Row, len(names))
		for j, name := range names {
			row[name] = r.vals[j]
		}
		rs.Rows[i] = row
	}
	return rs, nil
}

func project(sel *sqlparse.Select, base *env) ([]projection, error) {
	var projs []projection
	for _, item := range sel.Items {
		if item.Star {
			if base.t == nil {
				return nil, errNoTable
			}
			if item.StarTable != "" && !strings.EqualFold(item.StarTable, base.t.name) && !strings.EqualFold(item.StarTable, base.alias) {
				return nil, fmt.Errorf("no such table: %s", item.StarTable)
			}
			for i, c := range base.t.cols {
				projs = append(projs, projection{name: c.name, col: i})
			}
			continue
		}

		name := item.Alias
		if name == "" {
			if ref, ok := item.Expr.(*sqlparse.ColumnRef); ok {
				name = ref.Name
			} else {
				name = sqlparse.Format(item.Expr)
			}
		}
		projs = append(projs, projection{name: name, col: -1, expr: item.Expr})
	}
	return projs, nil
}

func filter(ctx context.Context, where sqlparse.Expr, base *env) ([][]any, error) {
	if base.t == nil {
		// a SELECT without FROM sees one empty row
		if where == nil {
			return [][]any{{}}, nil
		}
		v, err := eval(where, base)
		if err != nil {
			return nil, err
		}
		if ok, _ := truth(v); !ok {
			return nil, nil
		}
		return [][]any{{}}, nil
	}

	if where == nil {
		return base.t.rows, nil
	}
	rows := make([][]any, 0, len(base.t.rows))
	for i, row := range base.t.rows {
		if i%scanCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v, err := eval(where, &env{t: base.t, alias: base.alias, row: row, args: base.args})
		if err != nil {
			return nil, err
		}
		if ok, _ := truth(v); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func evalProjection(projs []projection, en *env) ([]any, error) {
	vals := make([]any, len(projs))
	for i, p := range projs {
		if p.expr == nil {
			if en.row != nil {
				vals[i] = en.row[p.col]
			}
			continue
		}
		v, err := eval(p.expr, en)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// orderKeys resolves each ORDER BY term to a value. A bare integer is an
// output position and a bare name matching an output alias refers to it.
func orderKeys(order []sqlparse.OrderItem, projs []projection, vals []any, en *env) ([]any, error) {
	if len(order) == 0 {
		return nil, nil
	}
	keys := make([]any, len(order))
	for i, o := range order {
		if lit, ok := o.Expr.(*sqlparse.Literal); ok {
			if pos, ok := lit.Value.(int64); ok {
				if pos < 1 || int(pos) > len(projs) {
					return nil, fmt.Errorf("ORDER BY term out of range - should be between 1 and %d", len(projs))
				}
				keys[i] = vals[pos-1]
				continue
			}
		}
		if ref, ok := o.Expr.(*sqlparse.ColumnRef); ok && ref.Table == "" {
			if j := aliasIndex(projs, ref.Name); j >= 0 {
				keys[i] = vals[j]
				continue
			}
		}
		v, err := eval(o.Expr, en)
		if err != nil {
			return nil, err
		}
		keys[i] = v
	}
	return keys, nil
}

func aliasIndex(projs []projection, name string) int {
	for i, p := range projs {
		if p.expr != nil && strings.EqualFold(p.name, name) {
			return i
		}
	}
	return -1
}

func sortRows(rows []outRow, order []sqlparse.OrderItem) {
	sort.SliceStable(rows, func(a, b int) bool {
		for k, o := range order {
			x, y := rows[a].keys[k], rows[b].keys[k]
			if x == nil || y == nil {
				if x == nil && y == nil {
					continue
				}
				nullsFirst := !o.Desc
				if o.NullsFirst != nil {
					nullsFirst = *o.NullsFirst
				}
				return (x == nil) == nullsFirst
			}
			c := compare(x, y)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func distinct(rows []outRow) []outRow {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		k := distinctKey(r.vals)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
