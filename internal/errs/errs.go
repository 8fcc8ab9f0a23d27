// Package errs defines the fatal error taxonomy shared by every stage of an
// analysis run: configuration problems, broken invariants, and structural
// defects in the program model.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a fatal analysis error.
type Kind int

const (
	// Configuration covers unresolved symbolic parameters and missing
	// condition-table entries.
	Configuration Kind = iota + 1
	// Invariant covers programming errors such as combining metrics of
	// different identity or an access with neither reads nor writes.
	Invariant
	// Structural covers program models that reference something they never
	// declared.
	Structural
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration error"
	case Invariant:
		return "invariant violation"
	case Structural:
		return "structural error"
	default:
		return "error"
	}
}

// Error is a classified, fatal analysis error. Line is the linenum of the
// offending loop (0 when no loop is involved) and Symbol names the missing
// parameter, condition, or mismatched identity.
type Error struct {
	Kind   Kind
	Line   int
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Line > 0 {
		msg += fmt.Sprintf(" at loop %d", e.Line)
	}
	if e.Symbol != "" {
		msg += fmt.Sprintf(" (%s)", e.Symbol)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Configf returns a Configuration error for symbol.
func Configf(symbol, format string, args ...any) *Error {
	return &Error{Kind: Configuration, Symbol: symbol, Err: errors.Errorf(format, args...)}
}

// Invariantf returns an Invariant error for symbol.
func Invariantf(symbol, format string, args ...any) *Error {
	return &Error{Kind: Invariant, Symbol: symbol, Err: errors.Errorf(format, args...)}
}

// Structuralf returns a Structural error for symbol.
func Structuralf(symbol, format string, args ...any) *Error {
	return &Error{Kind: Structural, Symbol: symbol, Err: errors.Errorf(format, args...)}
}

// AtLine attaches a loop line to the classified error inside err if it has
// none yet. err itself is returned, so context wrapped around the classified
// error survives. Unclassified errors are returned unchanged.
func AtLine(err error, line int) error {
	var e *Error
	if errors.As(err, &e) && e.Line == 0 {
		e.Line = line
	}
	return err
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
