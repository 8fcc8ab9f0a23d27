package expr

import (
	"fmt"
	"sort"

	"loopmodel/internal/errs"
)

// Env is a name -> expression binding table. Bindings are parsed when the
// Env is built and resolved to integers lazily, so a binding may refer to
// other bindings ("n: hi(1) - lo(1) + 1"). An Env may sit on top of a base
// Env; lookups try the top layer first.
type Env struct {
	bindings map[string]Expr
	base     *Env
	resolved map[string]int64
	active   map[string]bool
}

// NewEnv parses every binding value. Values may be integer literals or
// expressions.
func NewEnv(bindings map[string]string) (*Env, error) {
	env := &Env{bindings: make(map[string]Expr, len(bindings))}
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e, err := Parse(bindings[name])
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", name, err)
		}
		env.bindings[name] = e
	}
	return env, nil
}

// Overlay returns an Env that consults top before e. Neither input is
// modified.
func (e *Env) Overlay(top *Env) *Env {
	if top == nil {
		return e
	}
	layer := &Env{bindings: top.bindings, base: top.base}
	if layer.base == nil {
		layer.base = e
	} else {
		layer.base = layer.base.Overlay(e)
	}
	return layer
}

// lookup returns the bound expression for name, searching layers top-down.
func (e *Env) lookup(name string) (Expr, bool) {
	for env := e; env != nil; env = env.base {
		if x, ok := env.bindings[name]; ok {
			return x, true
		}
	}
	return nil, false
}

// Has reports whether name is bound in any layer.
func (e *Env) Has(name string) bool {
	if e == nil {
		return false
	}
	_, ok := e.lookup(name)
	return ok
}

// Resolve returns the integer value of a bound symbol. A symbol that is not
// bound, or whose binding depends on an unbound symbol, is a configuration
// error naming the missing symbol.
func (e *Env) Resolve(name string) (int64, error) {
	if e == nil {
		return 0, errs.Configf(name, "unresolved symbol %q", name)
	}
	if v, ok := e.resolved[name]; ok {
		return v, nil
	}
	x, ok := e.lookup(name)
	if !ok {
		return 0, errs.Configf(name, "unresolved symbol %q", name)
	}
	if e.active[name] {
		return 0, errs.Configf(name, "binding for %q refers to itself", name)
	}
	if e.active == nil {
		e.active = make(map[string]bool)
		e.resolved = make(map[string]int64)
	}
	e.active[name] = true
	v, err := e.Eval(x)
	delete(e.active, name)
	if err != nil {
		return 0, err
	}
	e.resolved[name] = v
	return v, nil
}

// Eval resolves x to an integer, failing closed on any free symbol the Env
// cannot resolve.
func (e *Env) Eval(x Expr) (int64, error) {
	switch t := x.(type) {
	case Num:
		return t.Value, nil
	case Sym:
		return e.Resolve(t.Name)
	case Neg:
		v, err := e.Eval(t.X)
		return -v, err
	case Binary:
		a, err := e.Eval(t.Left)
		if err != nil {
			return 0, err
		}
		b, err := e.Eval(t.Right)
		if err != nil {
			return 0, err
		}
		v, err := apply(t.Op, a, b)
		if err != nil {
			return 0, errs.Configf(x.String(), "%v", err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("unknown expression %T", x)
}

// Substitute replaces every symbol the Env can resolve by its value and
// folds constant sub-expressions. Unresolvable symbols are left in place,
// so the result may still be symbolic.
func (e *Env) Substitute(x Expr) Expr {
	switch t := x.(type) {
	case Sym:
		if !e.Has(t.Name) {
			return t
		}
		if v, err := e.Resolve(t.Name); err == nil {
			return Num{Value: v}
		}
		return t
	case Neg:
		inner := e.Substitute(t.X)
		if n, ok := inner.(Num); ok {
			return Num{Value: -n.Value}
		}
		return Neg{X: inner}
	case Binary:
		l, r := e.Substitute(t.Left), e.Substitute(t.Right)
		ln, lok := l.(Num)
		rn, rok := r.(Num)
		if lok && rok {
			if v, err := apply(t.Op, ln.Value, rn.Value); err == nil {
				return Num{Value: v}
			}
		}
		return Binary{Op: t.Op, Left: l, Right: r}
	}
	return x
}
