package sqlparse

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tEOF tokenType = iota
	tIdent
	tQuotedIdent
	tNumber
	tString
	tParam
	tSymbol
	tKeyword
	tIllegal
)

type token struct {
	typ tokenType
	val string
	pos int
}

// keywords are reserved words. Everything else that looks like a word is an
// identifier, including function and type names.
var keywords = map[string]struct{}{
	"SELECT": {}, "DISTINCT": {}, "ALL": {}, "FROM": {}, "WHERE": {}, "GROUP": {}, "BY": {},
	"HAVING": {}, "ORDER": {}, "ASC": {}, "DESC": {}, "LIMIT": {}, "OFFSET": {}, "AS": {},
	"AND": {}, "OR": {}, "NOT": {}, "IS": {}, "NULL": {}, "LIKE": {}, "IN": {}, "BETWEEN": {},
	"CASE": {}, "WHEN": {}, "THEN": {}, "ELSE": {}, "END": {}, "CAST": {}, "TRUE": {}, "FALSE": {},
	"JOIN": {}, "ON": {}, "UNION": {}, "EXCEPT": {}, "INTERSECT": {}, "WITH": {},
	"CREATE": {}, "TABLE": {}, "INSERT": {}, "INTO": {}, "VALUES": {}, "IF": {}, "EXISTS": {},
}

func isKeyword(up string) bool {
	_, ok := keywords[up]
	return ok
}

type lexer struct {
	s      string
	pos    int
	params int
}

func newLexer(s string) *lexer { return &lexer{s: s} }

func (lx *lexer) peek() rune {
	return lx.peekN(0)
}

func (lx *lexer) peekN(n int) rune {
	p := lx.pos
	for range n {
		if p >= len(lx.s) {
			return 0
		}
		_, sz := utf8.DecodeRuneInString(lx.s[p:])
		p += sz
	}
	if p >= len(lx.s) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(lx.s[p:])
	return r
}

func (lx *lexer) next() rune {
	if lx.pos >= len(lx.s) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(lx.s[lx.pos:])
	lx.pos += size
	return r
}

func (lx *lexer) skipWhitespace() {
	for {
		r := lx.peek()
		switch {
		case r == 0:
			return
		case unicode.IsSpace(r):
			lx.next()
		case r == '-' && lx.peekN(1) == '-':
			for r2 := lx.next(); r2 != 0 && r2 != '\n'; r2 = lx.next() {
			}
		case r == '/' && lx.peekN(1) == '*':
			lx.next()
			lx.next()
			for {
				r2 := lx.next()
				if r2 == 0 {
					return
				}
				if r2 == '*' && lx.peek() == '/' {
					lx.next()
					break
				}
			}
		default:
			return
		}
	}
}

func (lx *lexer) nextToken() token {
	lx.skipWhitespace()
	start := lx.pos
	r := lx.peek()

	switch {
	case r == 0 && lx.pos < len(lx.s):
		lx.pos++
		return token{typ: tIllegal, val: "\x00", pos: start}
	case r == 0:
		return token{typ: tEOF, pos: start}

	case r == '\'':
		s, ok := lx.quoted('\'', '\'')
		if !ok {
			return token{typ: tIllegal, val: "unterminated string", pos: start}
		}
		return token{typ: tString, val: s, pos: start}

	case r == '"' || r == '`':
		s, ok := lx.quoted(r, r)
		if !ok {
			return token{typ: tIllegal, val: "unterminated identifier", pos: start}
		}
		return token{typ: tQuotedIdent, val: s, pos: start}

	case r == '[':
		s, ok := lx.quoted('[', ']')
		if !ok {
			return token{typ: tIllegal, val: "unterminated identifier", pos: start}
		}
		return token{typ: tQuotedIdent, val: s, pos: start}

	case unicode.IsDigit(r) || (r == '.' && unicode.IsDigit(lx.peekN(1))):
		return token{typ: tNumber, val: lx.number(), pos: start}

	case unicode.IsLetter(r) || r == '_':
		var sb strings.Builder
		for ch := lx.peek(); unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '$'; ch = lx.peek() {
			sb.WriteRune(lx.next())
		}
		val := sb.String()
		if up := strings.ToUpper(val); isKeyword(up) {
			return token{typ: tKeyword, val: up, pos: start}
		}
		return token{typ: tIdent, val: val, pos: start}

	case r == '?':
		lx.next()
		lx.params++
		return token{typ: tParam, val: strconv.Itoa(lx.params - 1), pos: start}
	}

	lx.next()
	switch r {
	case '(', ')', ',', '*', '+', '-', '/', '%', '.', ';':
		return token{typ: tSymbol, val: string(r), pos: start}
	case '|':
		if lx.peek() == '|' {
			lx.next()
			return token{typ: tSymbol, val: "||", pos: start}
		}
	case '=':
		if lx.peek() == '=' {
			lx.next()
		}
		return token{typ: tSymbol, val: "=", pos: start}
	case '<':
		if b := lx.peek(); b == '=' || b == '>' {
			lx.next()
			return token{typ: tSymbol, val: "<" + string(b), pos: start}
		}
		return token{typ: tSymbol, val: "<", pos: start}
	case '>':
		if lx.peek() == '=' {
			lx.next()
			return token{typ: tSymbol, val: ">=", pos: start}
		}
		return token{typ: tSymbol, val: ">", pos: start}
	case '!':
		if lx.peek() == '=' {
			lx.next()
			return token{typ: tSymbol, val: "!=", pos: start}
		}
	}
	return token{typ: tIllegal, val: string(r), pos: start}
}

// quoted reads a quoted run; a doubled closing rune is an escaped literal.
func (lx *lexer) quoted(open, closing rune) (string, bool) {
	lx.next()
	var sb strings.Builder
	for {
		ch := lx.next()
		if ch == 0 {
			return sb.String(), false
		}
		if ch == closing {
			if open == closing && lx.peek() == closing {
				lx.next()
				sb.WriteRune(closing)
				continue
			}
			return sb.String(), true
		}
		sb.WriteRune(ch)
	}
}

func (lx *lexer) number() string {
	var sb strings.Builder
	for unicode.IsDigit(lx.peek()) {
		sb.WriteRune(lx.next())
	}
	if lx.peek() == '.' {
		sb.WriteRune(lx.next())
		for unicode.IsDigit(lx.peek()) {
			sb.WriteRune(lx.next())
		}
	}
	if e := lx.peek(); e == 'e' || e == 'E' {
		sign := lx.peekN(1)
		if unicode.IsDigit(sign) || ((sign == '+' || sign == '-') && unicode.IsDigit(lx.peekN(2))) {
			sb.WriteRune(lx.next())
			if sign == '+' || sign == '-' {
				sb.WriteRune(lx.next())
			}
			for unicode.IsDigit(lx.peek()) {
				sb.WriteRune(lx.next())
			}
		}
	}
	return sb.String()
}
