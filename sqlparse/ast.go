package sqlparse

// Statement is a parsed SQL statement: *Select, *CreateTable or *Insert.
type Statement interface {
	stmtNode()
}

// Expr is a scalar expression.
type Expr interface {
	exprNode()
}

// Select is a single-table SELECT.
type Select struct {
	Distinct bool
	Items    []SelectItem
	From     *TableRef
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []OrderItem
	Limit    Expr
	Offset   Expr
}

// TableRef is the one table a SELECT reads.
type TableRef struct {
	Name  string
	Alias string
}

// SelectItem is one projection. Star items have a nil Expr.
type SelectItem struct {
	Expr      Expr
	Alias     string
	Star      bool
	StarTable string
}

// OrderItem is one ORDER BY term.
type OrderItem struct {
	Expr       Expr
	Desc       bool
	NullsFirst *bool
}

// CreateTable is CREATE TABLE name (col type, ...).
type CreateTable struct {
	Name        string
	IfNotExists bool
	Columns     []ColumnDef
}

// ColumnDef is one column of a CREATE TABLE.
type ColumnDef struct {
	Name string
	Type string
}

// Insert is INSERT INTO name [(cols)] VALUES (...), ....
type Insert struct {
	Table   string
	Columns []string
	Rows    [][]Expr
}

func (*Select) stmtNode()      {}
func (*CreateTable) stmtNode() {}
func (*Insert) stmtNode()      {}

type (
	// ColumnRef is a possibly qualified column name.
	ColumnRef struct {
		Table string
		Name  string
	}
	// Literal holds nil, int64, float64, string or bool.
	Literal struct {
		Value any
	}
	// Param is a positional ? placeholder, numbered from zero.
	Param struct {
		Index int
	}
	// Unary is -x, +x or NOT x.
	Unary struct {
		Op string
		X  Expr
	}
	// Binary is an arithmetic, comparison, concatenation or logical operator.
	Binary struct {
		Op          string
		Left, Right Expr
	}
	// IsNull is x IS [NOT] NULL.
	IsNull struct {
		X   Expr
		Not bool
	}
	// Like is x [NOT] LIKE pattern.
	Like struct {
		X, Pattern Expr
		Not        bool
	}
	// In is x [NOT] IN (list).
	In struct {
		X    Expr
		List []Expr
		Not  bool
	}
	// Between is x [NOT] BETWEEN lo AND hi.
	Between struct {
		X, Lo, Hi Expr
		Not       bool
	}
	// Call is a function call such as COUNT(*) or upper(name).
	Call struct {
		Name     string
		Args     []Expr
		Star     bool
		Distinct bool
	}
	// Cast is CAST(x AS type).
	Cast struct {
		X    Expr
		Type string
	}
	// Case is CASE [operand] WHEN ... THEN ... [ELSE ...] END.
	Case struct {
		Operand Expr
		Whens   []When
		Else    Expr
	}
)

// When is one WHEN/THEN arm of a Case.
type When struct {
	Cond, Result Expr
}

func (*ColumnRef) exprNode() {}
func (*Literal) exprNode()   {}
func (*Param) exprNode()     {}
func (*Unary) exprNode()     {}
func (*Binary) exprNode()    {}
func (*IsNull) exprNode()    {}
func (*Like) exprNode()      {}
func (*In) exprNode()        {}
func (*Between) exprNode()   {}
func (*Call) exprNode()      {}
func (*Cast) exprNode()      {}
func (*Case) exprNode()      {}

// aggregateFuncs are the functions evaluated over a whole group of rows.
var aggregateFuncs = map[string]struct{}{
	"COUNT": {}, "SUM": {}, "AVG": {}, "MIN": {}, "MAX": {}, "TOTAL": {}, "GROUP_CONCAT": {},
}

// IsAggregate reports whether the call is an aggregate function.
func (c *Call) IsAggregate() bool {
	_, ok := aggregateFuncs[c.Name]
	return ok && (len(c.Args) <= 1 || c.Name == "GROUP_CONCAT")
}

// HasAggregate reports whether e contains an aggregate call.
func HasAggregate(e Expr) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if c, ok := n.(*Call); ok && c.IsAggregate() {
			found = true
			return false
		}
		return !found
	})
	return found
}

// Walk visits e and its children depth first until fn returns false.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Unary:
		Walk(n.X, fn)
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *IsNull:
		Walk(n.X, fn)
	case *Like:
		Walk(n.X, fn)
		Walk(n.Pattern, fn)
	case *In:
		Walk(n.X, fn)
		for _, x := range n.List {
			Walk(x, fn)
		}
	case *Between:
		Walk(n.X, fn)
		Walk(n.Lo, fn)
		Walk(n.Hi, fn)
	case *Call:
		for _, x := range n.Args {
			Walk(x, fn)
		}
	case *Cast:
		Walk(n.X, fn)
	case *Case:
		Walk(n.Operand, fn)
		for _, w := range n.Whens {
			Walk(w.Cond, fn)
			Walk(w.Result, fn)
		}
		Walk(n.Else, fn)
	}
}
