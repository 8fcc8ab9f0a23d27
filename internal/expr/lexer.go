package expr

import (
	"fmt"
	"unicode"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokInt
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
)

func (t tokenType) String() string {
	switch t {
	case tokEOF:
		return "end of expression"
	case tokInt:
		return "integer"
	case tokIdent:
		return "identifier"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	case tokStar:
		return "'*'"
	case tokSlash:
		return "'/'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "unknown"
}

type token struct {
	typ tokenType
	lex string
	pos int
}

type lexer struct {
	src []rune
	i   int
}

func (l *lexer) peekAt(i int) rune {
	if i >= len(l.src) {
		return 0
	}
	return l.src[i]
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

// suffixEnd reports where a parenthesised name suffix such as the "(1)" in
// "lo(1)" ends. The suffix may only hold identifier characters and commas;
// anything else means the parenthesis is grouping, not naming.
func (l *lexer) suffixEnd(start int) (int, bool) {
	if l.peekAt(start) != '(' {
		return 0, false
	}
	j := start + 1
	for j < len(l.src) && (isIdentPart(l.src[j]) || l.src[j] == ',') {
		j++
	}
	if j == start+1 || l.peekAt(j) != ')' {
		return 0, false
	}
	return j + 1, true
}

func (l *lexer) next() (token, error) {
	for l.i < len(l.src) && unicode.IsSpace(l.src[l.i]) {
		l.i++
	}
	if l.i >= len(l.src) {
		return token{typ: tokEOF, pos: l.i}, nil
	}
	start := l.i
	ch := l.src[l.i]
	switch {
	case unicode.IsDigit(ch):
		for l.i < len(l.src) && unicode.IsDigit(l.src[l.i]) {
			l.i++
		}
		return token{typ: tokInt, lex: string(l.src[start:l.i]), pos: start}, nil
	case isIdentStart(ch):
		for l.i < len(l.src) && isIdentPart(l.src[l.i]) {
			l.i++
		}
		if end, ok := l.suffixEnd(l.i); ok {
			l.i = end
		}
		return token{typ: tokIdent, lex: string(l.src[start:l.i]), pos: start}, nil
	}
	l.i++
	switch ch {
	case '+':
		return token{typ: tokPlus, lex: "+", pos: start}, nil
	case '-':
		return token{typ: tokMinus, lex: "-", pos: start}, nil
	case '*':
		return token{typ: tokStar, lex: "*", pos: start}, nil
	case '/':
		return token{typ: tokSlash, lex: "/", pos: start}, nil
	case '(':
		return token{typ: tokLParen, lex: "(", pos: start}, nil
	case ')':
		return token{typ: tokRParen, lex: ")", pos: start}, nil
	}
	return token{}, fmt.Errorf("unexpected character %q at %d", ch, start)
}
