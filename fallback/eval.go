package fallback

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/tabquery/sqlparse"
)

// env is the evaluation context of one expression.
type env struct {
	t     *table
	alias string
	row   []any
	args  []any
	// group is the set of rows aggregates range over; nil outside
	// aggregate evaluation.
	group [][]any
}

var errNoTable = errors.New("no tables specified")

// evalConst evaluates an expression that may not reference columns.
func evalConst(e sqlparse.Expr, args []any) (any, error) {
	return eval(e, &env{args: args})
}

func eval(e sqlparse.Expr, en *env) (any, error) {
	switch n := e.(type) {
	case *sqlparse.Literal:
		return normalize(n.Value), nil
	case *sqlparse.Param:
		if n.Index >= len(en.args) {
			return nil, nil
		}
		return en.args[n.Index], nil
	case *sqlparse.ColumnRef:
		return en.column(n)
	case *sqlparse.Unary:
		return evalUnary(n, en)
	case *sqlparse.Binary:
		return evalBinary(n, en)
	case *sqlparse.IsNull:
		v, err := eval(n.X, en)
		if err != nil {
			return nil, err
		}
		return boolValue((v == nil) != n.Not), nil
	case *sqlparse.Like:
		x, err := eval(n.X, en)
		if err != nil {
			return nil, err
		}
		pat, err := eval(n.Pattern, en)
		if err != nil || x == nil || pat == nil {
			return nil, err
		}
		return boolValue(likeMatch(toText(x), toText(pat)) != n.Not), nil
	case *sqlparse.In:
		return evalIn(n, en)
	case *sqlparse.Between:
		return evalBetween(n, en)
	case *sqlparse.Call:
		if n.IsAggregate() {
			return evalAggregate(n, en)
		}
		return evalScalar(n, en)
	case *sqlparse.Cast:
		v, err := eval(n.X, en)
		if err != nil {
			return nil, err
		}
		return castValue(v, n.Type)
	case *sqlparse.Case:
		return evalCase(n, en)
	}
	return nil, fmt.Errorf("%w: expression %T", ErrUnsupported, e)
}

func (en *env) column(ref *sqlparse.ColumnRef) (any, error) {
	if en.t == nil {
		return nil, fmt.Errorf("no such column: %s", ref.Name)
	}
	if ref.Table != "" && !strings.EqualFold(ref.Table, en.t.name) && !strings.EqualFold(ref.Table, en.alias) {
		return nil, fmt.Errorf("no such column: %s.%s", ref.Table, ref.Name)
	}
	i := en.t.colIndex(ref.Name)
	if i < 0 {
		return nil, fmt.Errorf("no such column: %s", ref.Name)
	}
	if en.row == nil {
		return nil, nil
	}
	return en.row[i], nil
}

func evalUnary(n *sqlparse.Unary, en *env) (any, error) {
	v, err := eval(n.X, en)
	if err != nil || v == nil {
		return nil, err
	}
	switch n.Op {
	case "NOT":
		b, _ := truth(v)
		return boolValue(!b), nil
	case "-":
		switch x := v.(type) {
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
		f, _ := toNumber(v)
		return -f, nil
	default:
		return v, nil
	}
}

func evalBinary(n *sqlparse.Binary, en *env) (any, error) {
	left, err := eval(n.Left, en)
	if err != nil {
		return nil, err
	}

	// AND and OR use three-valued logic
	switch n.Op {
	case "AND", "OR":
		lb, lknown := truth(left)
		if n.Op == "AND" && lknown && !lb {
			return int64(0), nil
		}
		if n.Op == "OR" && lknown && lb {
			return int64(1), nil
		}
		right, err := eval(n.Right, en)
		if err != nil {
			return nil, err
		}
		rb, rknown := truth(right)
		if n.Op == "AND" {
			if rknown && !rb {
				return int64(0), nil
			}
			if lknown && rknown {
				return int64(1), nil
			}
			return nil, nil
		}
		if rknown && rb {
			return int64(1), nil
		}
		if lknown && rknown {
			return int64(0), nil
		}
		return nil, nil
	}

	right, err := eval(n.Right, en)
	if err != nil {
		return nil, err
	}
	if left == nil || right == nil {
		return nil, nil
	}

	switch n.Op {
	case "=":
		return boolValue(compare(left, right) == 0), nil
	case "!=":
		return boolValue(compare(left, right) != 0), nil
	case "<":
		return boolValue(compare(left, right) < 0), nil
	case "<=":
		return boolValue(compare(left, right) <= 0), nil
	case ">":
		return boolValue(compare(left, right) > 0), nil
	case ">=":
		return boolValue(compare(left, right) >= 0), nil
	case "||":
		return toText(left) + toText(right), nil
	case "+", "-", "*", "/", "%":
		return arith(n.Op, left, right), nil
	}
	return nil, fmt.Errorf("%w: operator %s", ErrUnsupported, n.Op)
}

func arith(op string, a, b any) any {
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		switch op {
		case "+":
			return ai + bi
		case "-":
			return ai - bi
		case "*":
			return ai * bi
		case "/":
			if bi == 0 {
				return nil
			}
			return ai / bi
		case "%":
			if bi == 0 {
				return nil
			}
			return ai % bi
		}
	}

	x, _ := toNumber(a)
	y, _ := toNumber(b)
	switch op {
	case "+":
		return x + y
	case "-":
		return x - y
	case "*":
		return x * y
	case "/":
		if y == 0 {
			return nil
		}
		return x / y
	default:
		if y == 0 {
			return nil
		}
		return math.Mod(x, y)
	}
}

func evalIn(n *sqlparse.In, en *env) (any, error) {
	x, err := eval(n.X, en)
	if err != nil || x == nil {
		return nil, err
	}
	sawNull := false
	for _, item := range n.List {
		v, err := eval(item, en)
		if err != nil {
			return nil, err
		}
		if v == nil {
			sawNull = true
			continue
		}
		if compare(x, v) == 0 {
			return boolValue(!n.Not), nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return boolValue(n.Not), nil
}

func evalBetween(n *sqlparse.Between, en *env) (any, error) {
	x, err := eval(n.X, en)
	if err != nil {
		return nil, err
	}
	lo, err := eval(n.Lo, en)
	if err != nil {
		return nil, err
	}
	hi, err := eval(n.Hi, en)
	if err != nil {
		return nil, err
	}
	if x == nil || lo == nil || hi == nil {
		return nil, nil
	}
	in := compare(x, lo) >= 0 && compare(x, hi) <= 0
	return boolValue(in != n.Not), nil
}

func evalCase(n *sqlparse.Case, en *env) (any, error) {
	var operand any
	if n.Operand != nil {
		v, err := eval(n.Operand, en)
		if err != nil {
			return nil, err
		}
		operand = v
	}
	for _, w := range n.Whens {
		cond, err := eval(w.Cond, en)
		if err != nil {
			return nil, err
		}
		var hit bool
		if n.Operand != nil {
			hit = operand != nil && cond != nil && compare(operand, cond) == 0
		} else {
			hit, _ = truth(cond)
		}
		if hit {
			return eval(w.Result, en)
		}
	}
	if n.Else == nil {
		return nil, nil
	}
	return eval(n.Else, en)
}

func castValue(v any, typ string) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch strings.ToUpper(strings.Fields(typ + " x")[0]) {
	case "INTEGER", "INT", "BIGINT", "SMALLINT":
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		}
		f, _ := toNumber(v)
		return int64(f), nil
	case "REAL", "FLOAT", "DOUBLE", "NUMERIC", "DECIMAL":
		f, _ := toNumber(v)
		return f, nil
	case "TEXT", "VARCHAR", "CHAR", "STRING":
		return toText(v), nil
	}
	return nil, fmt.Errorf("%w: cast to %s", ErrUnsupported, typ)
}

func (en *env) evalArgs(c *sqlparse.Call) ([]any, error) {
	vals := make([]any, len(c.Args))
	for i, a := range c.Args {
		v, err := eval(a, en)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func arity(c *sqlparse.Call, lo, hi int) error {
	if len(c.Args) < lo || len(c.Args) > hi {
		return fmt.Errorf("wrong number of arguments to function %s()", c.Name)
	}
	return nil
}

func evalScalar(c *sqlparse.Call, en *env) (any, error) {
	if c.Star {
		return nil, fmt.Errorf("wrong number of arguments to function %s()", c.Name)
	}
	args, err := en.evalArgs(c)
	if err != nil {
		return nil, err
	}

	switch c.Name {
	case "COALESCE", "IFNULL":
		if err := arity(c, 2, math.MaxInt); err != nil {
			return nil, err
		}
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	case "NULLIF":
		if err := arity(c, 2, 2); err != nil {
			return nil, err
		}
		if args[0] != nil && args[1] != nil && compare(args[0], args[1]) == 0 {
			return nil, nil
		}
		return args[0], nil
	case "MIN", "MAX":
		// multi-argument scalar form
		var best any
		for _, a := range args {
			if a == nil {
				return nil, nil
			}
			if best == nil || (c.Name == "MIN" && compare(a, best) < 0) || (c.Name == "MAX" && compare(a, best) > 0) {
				best = a
			}
		}
		return best, nil
	case "TYPEOF":
		if err := arity(c, 1, 1); err != nil {
			return nil, err
		}
		switch args[0].(type) {
		case nil:
			return "null", nil
		case int64, bool:
			return "integer", nil
		case float64:
			return "real", nil
		}
		return "text", nil
	}

	if err := arity(c, 1, 3); err != nil {
		if _, known := scalarFuncs[c.Name]; known {
			return nil, err
		}
		return nil, fmt.Errorf("no such function: %s", c.Name)
	}
	fn, ok := scalarFuncs[c.Name]
	if !ok {
		return nil, fmt.Errorf("no such function: %s", c.Name)
	}
	if args[0] == nil {
		return nil, nil
	}
	return fn(c, args)
}

var scalarFuncs = map[string]func(*sqlparse.Call, []any) (any, error){
	"UPPER": func(_ *sqlparse.Call, a []any) (any, error) { return strings.ToUpper(toText(a[0])), nil },
	"LOWER": func(_ *sqlparse.Call, a []any) (any, error) { return strings.ToLower(toText(a[0])), nil },
	"LENGTH": func(_ *sqlparse.Call, a []any) (any, error) {
		return int64(utf8.RuneCountInString(toText(a[0]))), nil
	},
	"TRIM":  trimFunc(strings.Trim),
	"LTRIM": trimFunc(strings.TrimLeft),
	"RTRIM": trimFunc(strings.TrimRight),
	"ABS": func(_ *sqlparse.Call, a []any) (any, error) {
		if i, ok := a[0].(int64); ok {
			if i < 0 {
				return -i, nil
			}
			return i, nil
		}
		f, _ := toNumber(a[0])
		return math.Abs(f), nil
	},
	"ROUND": func(c *sqlparse.Call, a []any) (any, error) {
		if err := arity(c, 1, 2); err != nil {
			return nil, err
		}
		f, _ := toNumber(a[0])
		digits := int64(0)
		if len(a) == 2 && a[1] != nil {
			d, _ := toNumber(a[1])
			digits = int64(d)
		}
		p := math.Pow(10, float64(digits))
		return math.Round(f*p) / p, nil
	},
	"SUBSTR":    substr,
	"SUBSTRING": substr,
}

func trimFunc(trim func(string, string) string) func(*sqlparse.Call, []any) (any, error) {
	return func(c *sqlparse.Call, a []any) (any, error) {
		if err := arity(c, 1, 2); err != nil {
			return nil, err
		}
		cut := " "
		if len(a) == 2 && a[1] != nil {
			cut = toText(a[1])
		}
		return trim(toText(a[0]), cut), nil
	}
}

// substr uses 1-based positions; a non-positive start counts from the
// beginning the way SQLite does for start 0.
func substr(c *sqlparse.Call, a []any) (any, error) {
	if err := arity(c, 2, 3); err != nil {
		return nil, err
	}
	r := []rune(toText(a[0]))
	startF, _ := toNumber(a[1])
	start := int(startF)
	if start < 0 {
		start = len(r) + start + 1
	}
	if start < 1 {
		start = 1
	}
	end := len(r) + 1
	if len(a) == 3 && a[2] != nil {
		n, _ := toNumber(a[2])
		if int(n) < 0 {
			return "", nil
		}
		if start+int(n) < end {
			end = start + int(n)
		}
	}
	if start > len(r) || start >= end {
		return "", nil
	}
	return string(r[start-1 : end-1]), nil
}

func evalAggregate(c *sqlparse.Call, en *env) (any, error) {
	if en.group == nil {
		return nil, fmt.Errorf("misuse of aggregate function %s()", c.Name)
	}
	if c.Star {
		if c.Name != "COUNT" {
			return nil, fmt.Errorf("wrong number of arguments to function %s()", c.Name)
		}
		return int64(len(en.group)), nil
	}
	if len(c.Args) == 0 {
		return nil, fmt.Errorf("wrong number of arguments to function %s()", c.Name)
	}

	sep := ","
	if c.Name == "GROUP_CONCAT" && len(c.Args) == 2 {
		v, err := evalConst(c.Args[1], en.args)
		if err != nil {
			return nil, err
		}
		sep = toText(v)
	}

	// arguments are evaluated per row with aggregates disabled
	values := make([]any, 0, len(en.group))
	seen := make(map[string]struct{})
	for _, row := range en.group {
		v, err := eval(c.Args[0], &env{t: en.t, alias: en.alias, row: row, args: en.args})
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if c.Distinct {
			k := distinctKey([]any{v})
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		values = append(values, v)
	}

	switch c.Name {
	case "COUNT":
		return int64(len(values)), nil
	case "MIN", "MAX":
		var best any
		for _, v := range values {
			if best == nil || (c.Name == "MIN" && compare(v, best) < 0) || (c.Name == "MAX" && compare(v, best) > 0) {
				best = v
			}
		}
		return best, nil
	case "SUM", "TOTAL", "AVG":
		if len(values) == 0 {
			if c.Name == "TOTAL" {
				return float64(0), nil
			}
			return nil, nil
		}
		allInt := c.Name == "SUM"
		var isum int64
		var fsum float64
		for _, v := range values {
			if i, ok := v.(int64); ok {
				isum += i
				fsum += float64(i)
				continue
			}
			allInt = false
			f, _ := toNumber(v)
			fsum += f
		}
		switch {
		case c.Name == "AVG":
			return fsum / float64(len(values)), nil
		case allInt:
			return isum, nil
		}
		return fsum, nil
	case "GROUP_CONCAT":
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = toText(v)
		}
		if len(parts) == 0 {
			return nil, nil
		}
		return strings.Join(parts, sep), nil
	}
	return nil, fmt.Errorf("no such function: %s", c.Name)
}

// limitValue evaluates LIMIT or OFFSET. ok is false when no limit applies.
func limitValue(e sqlparse.Expr, args []any) (n int, ok bool, err error) {
	if e == nil {
		return 0, false, nil
	}
	v, err := evalConst(e, args)
	if err != nil {
		return 0, false, err
	}
	switch x := v.(type) {
	case int64:
		if x < 0 {
			return 0, false, nil
		}
		return int(x), true, nil
	case float64:
		if x < 0 {
			return 0, false, nil
		}
		return int(x), true, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err == nil && i >= 0 {
			return int(i), true, nil
		}
	}
	return 0, false, errors.New("datatype mismatch")
}
