// Package sqlparse parses the small SQL dialect accepted for dataset queries:
// single-table SELECT with expressions, aggregates, GROUP BY, HAVING,
// ORDER BY and LIMIT, plus the CREATE TABLE and INSERT statements the
// in-memory engine needs to load data.
package sqlparse

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError is returned for text outside the supported grammar.
type SyntaxError struct {
	Pos  int
	Near string
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return "syntax error: " + e.Msg
	}
	return fmt.Sprintf("syntax error near %q: %s", e.Near, e.Msg)
}

type parser struct {
	lx   *lexer
	cur  token
	peek token
}

// Parse parses exactly one statement with an optional trailing semicolon.
func Parse(sql string) (Statement, error) {
	p := &parser{lx: newLexer(sql)}
	p.cur = p.lx.nextToken()
	p.peek = p.lx.nextToken()

	var (
		stmt Statement
		err  error
	)
	switch {
	case p.isKeyword("SELECT"):
		stmt, err = p.parseSelect()
	case p.isKeyword("CREATE"):
		stmt, err = p.parseCreate()
	case p.isKeyword("INSERT"):
		stmt, err = p.parseInsert()
	case p.cur.typ == tEOF:
		return nil, p.errf("empty statement")
	default:
		return nil, p.errf("unsupported statement")
	}
	if err != nil {
		return nil, err
	}

	for p.isSymbol(";") {
		p.next()
	}
	if p.cur.typ != tEOF {
		return nil, p.errf("unexpected trailing input")
	}
	return stmt, nil
}

// ParseSelect parses sql and requires it to be a SELECT.
func ParseSelect(sql string) (*Select, error) {
	stmt, err := Parse(sql)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*Select)
	if !ok {
		return nil, &SyntaxError{Msg: "statement is not a SELECT"}
	}
	return sel, nil
}

func (p *parser) next() {
	p.cur = p.peek
	p.peek = p.lx.nextToken()
}

func (p *parser) errf(format string, a ...any) error {
	near := p.cur.val
	if p.cur.typ == tEOF {
		near = ""
	}
	return &SyntaxError{Pos: p.cur.pos, Near: near, Msg: fmt.Sprintf(format, a...)}
}

func (p *parser) isKeyword(kw string) bool {
	return p.cur.typ == tKeyword && p.cur.val == kw
}

func (p *parser) isSymbol(sym string) bool {
	return p.cur.typ == tSymbol && p.cur.val == sym
}

// isWord matches a non-reserved identifier case-insensitively, for
// contextual words such as NULLS FIRST.
func (p *parser) isWord(w string) bool {
	return p.cur.typ == tIdent && strings.EqualFold(p.cur.val, w)
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.next()
		return true
	}
	return false
}

func (p *parser) acceptSymbol(sym string) bool {
	if p.isSymbol(sym) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if p.acceptKeyword(kw) {
		return nil
	}
	return p.errf("expected %s", kw)
}

func (p *parser) expectSymbol(sym string) error {
	if p.acceptSymbol(sym) {
		return nil
	}
	return p.errf("expected %q", sym)
}

func (p *parser) identifier() (string, error) {
	switch p.cur.typ {
	case tIdent, tQuotedIdent:
		name := p.cur.val
		p.next()
		return name, nil
	case tIllegal:
		return "", p.errf("%s", p.cur.val)
	default:
		return "", p.errf("expected identifier")
	}
}

func (p *parser) parseSelect() (*Select, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	sel := &Select{}
	if p.acceptKeyword("DISTINCT") {
		sel.Distinct = true
	} else {
		p.acceptKeyword("ALL")
	}

	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		sel.Items = append(sel.Items, item)
		if !p.acceptSymbol(",") {
			break
		}
	}

	if p.acceptKeyword("FROM") {
		if p.isSymbol("(") {
			return nil, p.errf("subqueries are not supported")
		}
		name, err := p.identifier()
		if err != nil {
			return nil, err
		}
		ref := &TableRef{Name: name}
		if p.acceptKeyword("AS") {
			if ref.Alias, err = p.identifier(); err != nil {
				return nil, err
			}
		} else if p.cur.typ == tIdent || p.cur.typ == tQuotedIdent {
			ref.Alias, _ = p.identifier()
		}
		sel.From = ref
		if p.isSymbol(",") || p.isKeyword("JOIN") || p.isWord("LEFT") || p.isWord("INNER") || p.isWord("CROSS") {
			return nil, p.errf("joins are not supported")
		}
	}

	var err error
	if p.acceptKeyword("WHERE") {
		if sel.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.acceptKeyword("GROUP") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		if sel.GroupBy, err = p.parseExprList(); err != nil {
			return nil, err
		}
	}
	if p.acceptKeyword("HAVING") {
		if sel.Having, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.acceptKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			item, err := p.parseOrderItem()
			if err != nil {
				return nil, err
			}
			sel.OrderBy = append(sel.OrderBy, item)
			if !p.acceptSymbol(",") {
				break
			}
		}
	}
	if p.acceptKeyword("LIMIT") {
		if sel.Limit, err = p.parseExpr(); err != nil {
			return nil, err
		}
		if p.acceptKeyword("OFFSET") {
			if sel.Offset, err = p.parseExpr(); err != nil {
				return nil, err
			}
		} else if p.acceptSymbol(",") {
			// LIMIT offset, count
			sel.Offset = sel.Limit
			if sel.Limit, err = p.parseExpr(); err != nil {
				return nil, err
			}
		}
	}
	if p.isKeyword("UNION") || p.isKeyword("EXCEPT") || p.isKeyword("INTERSECT") {
		return nil, p.errf("compound queries are not supported")
	}
	return sel, nil
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	if p.acceptSymbol("*") {
		return SelectItem{Star: true}, nil
	}
	if (p.cur.typ == tIdent || p.cur.typ == tQuotedIdent) && p.peek.typ == tSymbol && p.peek.val == "." {
		// t.* needs two tokens of lookahead past the dot
		save := *p.lx
		cur, peek := p.cur, p.peek
		table := p.cur.val
		p.next()
		p.next()
		if p.acceptSymbol("*") {
			return SelectItem{Star: true, StarTable: table}, nil
		}
		*p.lx = save
		p.cur, p.peek = cur, peek
	}

	expr, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: expr}
	if p.acceptKeyword("AS") {
		switch p.cur.typ {
		case tIdent, tQuotedIdent, tString:
			item.Alias = p.cur.val
			p.next()
		default:
			return SelectItem{}, p.errf("expected alias")
		}
	} else if p.cur.typ == tIdent || p.cur.typ == tQuotedIdent {
		item.Alias = p.cur.val
		p.next()
	}
	return item, nil
}

func (p *parser) parseOrderItem() (OrderItem, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return OrderItem{}, err
	}
	item := OrderItem{Expr: expr}
	if p.acceptKeyword("DESC") {
		item.Desc = true
	} else {
		p.acceptKeyword("ASC")
	}
	if p.isWord("NULLS") {
		p.next()
		first := p.isWord("FIRST")
		if !first && !p.isWord("LAST") {
			return OrderItem{}, p.errf("expected FIRST or LAST")
		}
		p.next()
		item.NullsFirst = &first
	}
	return item, nil
}

func (p *parser) parseCreate() (Statement, error) {
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	ct := &CreateTable{}
	if p.acceptKeyword("IF") {
		if err := p.expectKeyword("NOT"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("EXISTS"); err != nil {
			return nil, err
		}
		ct.IfNotExists = true
	}
	name, err := p.identifier()
	if err != nil {
		return nil, err
	}
	ct.Name = name
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	for {
		col, err := p.identifier()
		if err != nil {
			return nil, err
		}
		var typ []string
		for p.cur.typ == tIdent {
			typ = append(typ, strings.ToUpper(p.cur.val))
			p.next()
		}
		if p.acceptSymbol("(") {
			// size arguments such as VARCHAR(20) carry no meaning here
			for !p.isSymbol(")") {
				if p.cur.typ == tEOF {
					return nil, p.errf("unterminated type arguments")
				}
				p.next()
			}
			p.next()
		}
		ct.Columns = append(ct.Columns, ColumnDef{Name: col, Type: strings.Join(typ, " ")})
		if !p.acceptSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return ct, nil
}

func (p *parser) parseInsert() (Statement, error) {
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	name, err := p.identifier()
	if err != nil {
		return nil, err
	}
	ins := &Insert{Table: name}
	if p.acceptSymbol("(") {
		for {
			col, err := p.identifier()
			if err != nil {
				return nil, err
			}
			ins.Columns = append(ins.Columns, col)
			if !p.acceptSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	for {
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		row, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		ins.Rows = append(ins.Rows, row)
		if !p.acceptSymbol(",") {
			break
		}
	}
	return ins, nil
}

func (p *parser) parseExprList() ([]Expr, error) {
	var list []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if !p.acceptSymbol(",") {
			return list, nil
		}
	}
}

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.acceptKeyword("NOT") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "NOT", X: x}, nil
	}
	return p.parseCmp()
}

func (p *parser) parseCmp() (Expr, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	for {
		if p.cur.typ == tSymbol {
			switch op := p.cur.val; op {
			case "=", "!=", "<>", "<", "<=", ">", ">=":
				p.next()
				right, err := p.parseAdd()
				if err != nil {
					return nil, err
				}
				if op == "<>" {
					op = "!="
				}
				left = &Binary{Op: op, Left: left, Right: right}
				continue
			}
		}

		if p.acceptKeyword("IS") {
			not := p.acceptKeyword("NOT")
			if err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			left = &IsNull{X: left, Not: not}
			continue
		}

		not := false
		if p.isKeyword("NOT") && p.peek.typ == tKeyword && (p.peek.val == "LIKE" || p.peek.val == "IN" || p.peek.val == "BETWEEN") {
			p.next()
			not = true
		}
		switch {
		case p.acceptKeyword("LIKE"):
			pat, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			left = &Like{X: left, Pattern: pat, Not: not}
		case p.acceptKeyword("IN"):
			if err := p.expectSymbol("("); err != nil {
				return nil, err
			}
			if p.isKeyword("SELECT") {
				return nil, p.errf("subqueries are not supported")
			}
			list, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			left = &In{X: left, List: list, Not: not}
		case p.acceptKeyword("BETWEEN"):
			lo, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("AND"); err != nil {
				return nil, err
			}
			hi, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			left = &Between{X: left, Lo: lo, Hi: hi, Not: not}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseAdd() (Expr, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.isSymbol("+") || p.isSymbol("-") {
		op := p.cur.val
		p.next()
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMul() (Expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for p.isSymbol("*") || p.isSymbol("/") || p.isSymbol("%") {
		op := p.cur.val
		p.next()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseConcat() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.acceptSymbol("||") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.isSymbol("-") || p.isSymbol("+") {
		op := p.cur.val
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.cur
	switch tok.typ {
	case tNumber:
		p.next()
		return numberLiteral(tok.val)
	case tString:
		p.next()
		return &Literal{Value: tok.val}, nil
	case tParam:
		p.next()
		idx, _ := strconv.Atoi(tok.val)
		return &Param{Index: idx}, nil
	case tIllegal:
		return nil, p.errf("%s", tok.val)
	case tEOF:
		return nil, p.errf("unexpected end of input")
	case tKeyword:
		switch tok.val {
		case "NULL":
			p.next()
			return &Literal{Value: nil}, nil
		case "TRUE", "FALSE":
			p.next()
			return &Literal{Value: tok.val == "TRUE"}, nil
		case "CASE":
			return p.parseCase()
		case "CAST":
			return p.parseCast()
		}
		return nil, p.errf("unexpected keyword")
	case tSymbol:
		if tok.val == "(" {
			p.next()
			if p.isKeyword("SELECT") {
				return nil, p.errf("subqueries are not supported")
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
		return nil, p.errf("unexpected symbol")
	}

	// identifier: column, qualified column or function call
	name := tok.val
	p.next()
	if tok.typ == tIdent && p.isSymbol("(") {
		return p.parseCall(name)
	}
	if p.acceptSymbol(".") {
		col, err := p.identifier()
		if err != nil {
			return nil, err
		}
		return &ColumnRef{Table: name, Name: col}, nil
	}
	return &ColumnRef{Name: name}, nil
}

func (p *parser) parseCall(name string) (Expr, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	call := &Call{Name: strings.ToUpper(name)}
	if p.acceptSymbol("*") {
		call.Star = true
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return call, nil
	}
	if p.acceptSymbol(")") {
		return call, nil
	}
	if p.acceptKeyword("DISTINCT") {
		call.Distinct = true
	}
	args, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	call.Args = args
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *parser) parseCast() (Expr, error) {
	p.next()
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
	var typ []string
	for p.cur.typ == tIdent {
		typ = append(typ, strings.ToUpper(p.cur.val))
		p.next()
	}
	if len(typ) == 0 {
		return nil, p.errf("expected type name")
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &Cast{X: x, Type: strings.Join(typ, " ")}, nil
}

func (p *parser) parseCase() (Expr, error) {
	p.next()
	c := &Case{}
	var err error
	if !p.isKeyword("WHEN") {
		if c.Operand, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	for p.acceptKeyword("WHEN") {
		var w When
		if w.Cond, err = p.parseExpr(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		if w.Result, err = p.parseExpr(); err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, w)
	}
	if len(c.Whens) == 0 {
		return nil, p.errf("CASE needs at least one WHEN")
	}
	if p.acceptKeyword("ELSE") {
		if c.Else, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("END"); err != nil {
		return nil, err
	}
	return c, nil
}

func numberLiteral(s string) (Expr, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return &Literal{Value: i}, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &SyntaxError{Near: s, Msg: "invalid number"}
	}
	return &Literal{Value: f}, nil
}
