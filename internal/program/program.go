// Package program is the in-memory model of an analysed program: functions
// made of loop nests whose leaves are floating-point, scalar, and array
// access events. Every node carries the chain of branch conditions that
// guard it.
package program

import (
	"fmt"
	"strings"

	"loopmodel/internal/box"
	"loopmodel/internal/expr"
)

// Program is the root of the model.
type Program struct {
	Name      string
	Functions []*Function
}

// Function is one analysed routine. Body holds its top-level loop nests in
// source order. Conditions, when non-nil, lists every branch condition the
// function may reference.
type Function struct {
	Name       string
	Conditions []string
	Body       []*Loop
}

// Condition is one branch guard: the named condition must evaluate to When.
type Condition struct {
	Name string
	When bool
}

func (c Condition) String() string {
	if c.When {
		return c.Name
	}
	return "!" + c.Name
}

// Kind tags the payload of a Node.
type Kind int

const (
	KindLoop Kind = iota + 1
	KindFlops
	KindScalar
	KindArray
	KindBranch
)

func (k Kind) String() string {
	switch k {
	case KindLoop:
		return "loop"
	case KindFlops:
		return "flops"
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindBranch:
		return "branch"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Node is a tagged variant: exactly the payload named by Kind is set.
// Conds is the full chain of enclosing branch guards, outermost first.
type Node struct {
	Kind   Kind
	Conds  []Condition
	Loop   *Loop
	Flops  *Flops
	Scalar *Scalar
	Array  *Array
	Branch *Branch
}

// Loop is a counted loop over Var from Lower to Upper inclusive.
type Loop struct {
	Line  int
	Var   string
	Lower expr.Expr
	Upper expr.Expr
	Conds []Condition
	Body  []Node
}

// Branch groups the statements guarded by one condition. Its children
// already carry the condition in their Conds.
type Branch struct {
	Cond string
	Then []Node
	Else []Node
}

// Flops counts floating-point operations of one statement.
type Flops struct {
	Adds       int64
	Multiplies int64
	Divides    int64
	Specials   int64
}

// Scalar is a read/write tally of one scalar variable.
type Scalar struct {
	Name   string
	Type   string
	Reads  int64
	Writes int64
}

// Array groups the accesses one statement makes to a single array.
type Array struct {
	Name     string
	Type     string
	Accesses []Access
}

// BaseName is the array name up to the first '.', the name of its base
// pointer.
func (a *Array) BaseName() string {
	name, _, _ := strings.Cut(a.Name, ".")
	return name
}

// OnlyLoopInvariant reports whether every access is loop invariant.
func (a *Array) OnlyLoopInvariant() bool {
	for _, acc := range a.Accesses {
		if !acc.LoopInvariant() {
			return false
		}
	}
	return true
}

// Access is one indexed reference. LoopVars is aligned with Index: the
// entry for a dimension names the loop variable it follows, or is empty.
// A dimension that follows a loop variable holds the offset from it.
type Access struct {
	Index    []Dim
	LoopVars []string
	Reads    int64
	Writes   int64
}

// LoopInvariant reports whether the access touches the same element on
// every iteration of every enclosing loop.
func (a Access) LoopInvariant() bool {
	for i, d := range a.Index {
		if d.IsRange || a.LoopVars[i] != "" {
			return false
		}
	}
	return true
}

// DependsOn reports which dimension follows loopVar, or -1.
func (a Access) DependsOn(loopVar string) int {
	for i, v := range a.LoopVars {
		if v != "" && v == loopVar {
			return i
		}
	}
	return -1
}

func (a Access) String() string {
	parts := make([]string, len(a.Index))
	for i, d := range a.Index {
		s := d.String()
		if a.LoopVars[i] != "" {
			s = a.LoopVars[i] + "+" + s
		}
		parts[i] = s
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Resolve evaluates every dimension against env.
func (a Access) Resolve(env *expr.Env) (Resolved, error) {
	r := Resolved{
		Index:    make(box.Box, len(a.Index)),
		LoopVars: append([]string(nil), a.LoopVars...),
		Reads:    a.Reads,
		Writes:   a.Writes,
	}
	for i, d := range a.Index {
		iv, err := d.Resolve(env)
		if err != nil {
			return Resolved{}, err
		}
		r.Index[i] = iv
	}
	return r, nil
}

// Dim is one index dimension: a point, or an inclusive range.
type Dim struct {
	Lo      expr.Expr
	Hi      expr.Expr
	IsRange bool
}

// PointDim returns a single-index dimension.
func PointDim(e expr.Expr) Dim { return Dim{Lo: e, Hi: e} }

// RangeDim returns an inclusive range dimension.
func RangeDim(lo, hi expr.Expr) Dim { return Dim{Lo: lo, Hi: hi, IsRange: true} }

func (d Dim) String() string {
	if d.IsRange {
		return d.Lo.String() + ":" + d.Hi.String()
	}
	return d.Lo.String()
}

// Resolve evaluates the dimension's bounds against env.
func (d Dim) Resolve(env *expr.Env) (box.Interval, error) {
	lo, err := env.Eval(d.Lo)
	if err != nil {
		return box.Interval{}, err
	}
	if !d.IsRange {
		return box.Point(lo), nil
	}
	hi, err := env.Eval(d.Hi)
	if err != nil {
		return box.Interval{}, err
	}
	return box.Span(lo, hi), nil
}

// Resolved is an Access whose index bounds are integers.
type Resolved struct {
	Index    box.Box
	LoopVars []string
	Reads    int64
	Writes   int64
}

// DependsOn reports which dimension follows loopVar, or -1.
func (r Resolved) DependsOn(loopVar string) int {
	for i, v := range r.LoopVars {
		if v != "" && v == loopVar {
			return i
		}
	}
	return -1
}

func (r Resolved) String() string {
	parts := make([]string, len(r.Index))
	for i, iv := range r.Index {
		s := iv.String()
		if r.LoopVars[i] != "" {
			s = r.LoopVars[i] + "+" + s
		}
		parts[i] = s
	}
	return fmt.Sprintf("[%s] R=%d W=%d", strings.Join(parts, ","), r.Reads, r.Writes)
}

// Boxes returns the index boxes of accs.
func Boxes(accs []Resolved) []box.Box {
	out := make([]box.Box, len(accs))
	for i, a := range accs {
		out[i] = a.Index
	}
	return out
}
