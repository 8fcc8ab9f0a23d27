// Package expr parses and resolves the symbolic integer expressions that
// appear in loop bounds, array indices, and parameter bindings.
//
// The grammar is small integer arithmetic:
//
//	expr   = term { ('+' | '-') term }
//	term   = unary { ('*' | '/') unary }
//	unary  = '-' unary | factor
//	factor = INT | IDENT | '(' expr ')'
//
// An IDENT may carry a parenthesised suffix ("lo(1)", "hi(3)") that is part
// of the symbol's name.
package expr

import (
	"fmt"
	"sort"
	"strconv"
)

// Expr is a parsed expression.
type Expr interface {
	isExpr()
	String() string
}

// Num is an integer literal.
type Num struct{ Value int64 }

// Sym is a free symbol, resolved through an Env.
type Sym struct{ Name string }

// Neg is unary minus.
type Neg struct{ X Expr }

// Binary is a binary arithmetic operation.
type Binary struct {
	Op          Op
	Left, Right Expr
}

// Op is a binary operator.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
)

func (Num) isExpr()    {}
func (Sym) isExpr()    {}
func (Neg) isExpr()    {}
func (Binary) isExpr() {}

func (n Num) String() string { return strconv.FormatInt(n.Value, 10) }
func (s Sym) String() string { return s.Name }
func (n Neg) String() string { return "-" + wrap(n.X) }

func (b Binary) String() string {
	return wrap(b.Left) + " " + b.Op.String() + " " + wrap(b.Right)
}

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	}
	return "?"
}

func wrap(e Expr) string {
	if _, ok := e.(Binary); ok {
		return "(" + e.String() + ")"
	}
	return e.String()
}

// Parse parses src into an expression.
func Parse(src string) (Expr, error) {
	p := &parser{lx: &lexer{src: []rune(src)}}
	if err := p.next(); err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	if p.tok.typ != tokEOF {
		return nil, fmt.Errorf("parse %q: unexpected %v at %d", src, p.tok.typ, p.tok.pos)
	}
	return e, nil
}

// MustParse is Parse for expressions known to be valid.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	lx  *lexer
	tok token
}

func (p *parser) next() error {
	t, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) parseExpr() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok.typ == tokPlus || p.tok.typ == tokMinus {
		op := OpAdd
		if p.tok.typ == tokMinus {
			op = OpSub
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.typ == tokStar || p.tok.typ == tokSlash {
		op := OpMul
		if p.tok.typ == tokSlash {
			op = OpDiv
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.tok.typ == tokMinus {
		if err := p.next(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if n, ok := x.(Num); ok {
			return Num{Value: -n.Value}, nil
		}
		return Neg{X: x}, nil
	}
	return p.parseFactor()
}

func (p *parser) parseFactor() (Expr, error) {
	switch p.tok.typ {
	case tokInt:
		v, err := strconv.ParseInt(p.tok.lex, 10, 64)
		if err != nil {
			return nil, err
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return Num{Value: v}, nil
	case tokIdent:
		s := Sym{Name: p.tok.lex}
		if err := p.next(); err != nil {
			return nil, err
		}
		return s, nil
	case tokLParen:
		if err := p.next(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.typ != tokRParen {
			return nil, fmt.Errorf("expected ')', got %v at %d", p.tok.typ, p.tok.pos)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("unexpected %v at %d", p.tok.typ, p.tok.pos)
}

// Symbols returns the sorted, de-duplicated free symbols of e.
func Symbols(e Expr) []string {
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case Sym:
			seen[x.Name] = true
		case Neg:
			walk(x.X)
		case Binary:
			walk(x.Left)
			walk(x.Right)
		}
	}
	walk(e)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// apply folds one operator over two integers.
func apply(op Op, a, b int64) (int64, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	}
	return 0, fmt.Errorf("unknown operator %d", op)
}
