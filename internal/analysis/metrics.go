package analysis

import (
	"fmt"
	"strings"

	"loopmodel/internal/errs"
	"loopmodel/internal/expr"
	"loopmodel/internal/program"
)

// identity joins a variable name and type into a collection key.
func identity(name, typ string) string { return name + "\x00" + typ }

func mismatch(kind, a, b string) error {
	return errs.Invariantf(a, "cannot combine %s %q with %q", kind, a, b)
}

// iterations resolves a loop's trip count, hi - lo + 1, against env.
func iterations(l *program.Loop, env *expr.Env) (int64, error) {
	lo, hi, err := bounds(l, env)
	if err != nil {
		return 0, err
	}
	return max(hi-lo+1, 0), nil
}

func bounds(l *program.Loop, env *expr.Env) (int64, int64, error) {
	lo, err := env.Eval(l.Lower)
	if err != nil {
		return 0, 0, rangeError(l, env, err)
	}
	hi, err := env.Eval(l.Upper)
	if err != nil {
		return 0, 0, rangeError(l, env, err)
	}
	return lo, hi, nil
}

// rangeError shows the loop range with every bound symbol substituted, so
// the message lists all symbols still missing rather than only the first.
func rangeError(l *program.Loop, env *expr.Env, err error) error {
	lo, hi := env.Substitute(l.Lower), env.Substitute(l.Upper)
	free := expr.Symbols(expr.Binary{Op: expr.OpSub, Left: lo, Right: hi})
	return errs.AtLine(fmt.Errorf("range of %s is [%s, %s], unbound %s: %w",
		l.Var, lo, hi, strings.Join(free, ", "), err), l.Line)
}

// -----------------------------------------------------------------------------
// FlopCount
// -----------------------------------------------------------------------------

// FlopCount tallies floating-point operations by category. Counts are real
// because they carry branch-probability weights.
type FlopCount struct {
	Adds       float64 `yaml:"adds"`
	Multiplies float64 `yaml:"multiplies"`
	Divides    float64 `yaml:"divides"`
	Specials   float64 `yaml:"specials"`
}

// NewFlopCount converts one flop event.
func NewFlopCount(f *program.Flops) FlopCount {
	return FlopCount{
		Adds:       float64(f.Adds),
		Multiplies: float64(f.Multiplies),
		Divides:    float64(f.Divides),
		Specials:   float64(f.Specials),
	}
}

// Key is constant: a scope has a single flop tally.
func (f FlopCount) Key() string { return "flops" }

func (f FlopCount) Combine(o FlopCount) (FlopCount, error) {
	return FlopCount{
		Adds:       f.Adds + o.Adds,
		Multiplies: f.Multiplies + o.Multiplies,
		Divides:    f.Divides + o.Divides,
		Specials:   f.Specials + o.Specials,
	}, nil
}

func (f FlopCount) Scale(n float64) FlopCount {
	return FlopCount{Adds: f.Adds * n, Multiplies: f.Multiplies * n, Divides: f.Divides * n, Specials: f.Specials * n}
}

func (f FlopCount) Total() float64 { return f.Adds + f.Multiplies + f.Divides + f.Specials }

func (f FlopCount) String() string {
	return fmt.Sprintf("A=%g M=%g D=%g S=%g", f.Adds, f.Multiplies, f.Divides, f.Specials)
}

// -----------------------------------------------------------------------------
// StateVar
// -----------------------------------------------------------------------------

// StateVar is the read/write traffic of a register-resident variable: a
// scalar, an array base pointer, or a loop-invariant array element.
type StateVar struct {
	Name   string  `yaml:"name"`
	Type   string  `yaml:"type"`
	Reads  float64 `yaml:"reads"`
	Writes float64 `yaml:"writes"`
}

// ScalarStateVar converts a scalar event.
func ScalarStateVar(s *program.Scalar) StateVar {
	return StateVar{Name: s.Name, Type: s.Type, Reads: float64(s.Reads), Writes: float64(s.Writes)}
}

// ArrayStateVars derives the register-resident variables of an array event:
// its base pointer, read once per element access, and one entry per
// loop-invariant access.
func ArrayStateVars(a *program.Array) []StateVar {
	base := StateVar{Name: a.BaseName(), Type: a.Type + " *"}
	for _, acc := range a.Accesses {
		base.Reads += float64(acc.Reads + acc.Writes)
	}
	out := []StateVar{base}
	for _, acc := range a.Accesses {
		if !acc.LoopInvariant() {
			continue
		}
		out = append(out, StateVar{
			Name:   a.Name + acc.String(),
			Type:   a.Type,
			Reads:  float64(acc.Reads),
			Writes: float64(acc.Writes),
		})
	}
	return out
}

func (s StateVar) Key() string { return identity(s.Name, s.Type) }

func (s StateVar) Combine(o StateVar) (StateVar, error) {
	if s.Key() != o.Key() {
		return StateVar{}, mismatch("state variable", s.Name+" "+s.Type, o.Name+" "+o.Type)
	}
	s.Reads += o.Reads
	s.Writes += o.Writes
	return s, nil
}

func (s StateVar) Scale(n float64) StateVar {
	s.Reads *= n
	s.Writes *= n
	return s
}

func (s StateVar) String() string {
	return fmt.Sprintf("SV %s %s, R=%g, W=%g", s.Type, s.Name, s.Reads, s.Writes)
}

// -----------------------------------------------------------------------------
// ArrayVar
// -----------------------------------------------------------------------------

// ArrayVar counts the streamed loads and stores of an array. Loop-invariant
// accesses are excluded; they are StateVar traffic.
type ArrayVar struct {
	Name   string  `yaml:"name"`
	Type   string  `yaml:"type"`
	Loads  float64 `yaml:"loads"`
	Stores float64 `yaml:"stores"`
}

// NewArrayVar converts an array event under its base name, so the fields
// of one array of records share an entry. ok is false when every access is
// loop invariant.
func NewArrayVar(a *program.Array) (v ArrayVar, ok bool) {
	v = ArrayVar{Name: a.BaseName(), Type: a.Type}
	for _, acc := range a.Accesses {
		if acc.LoopInvariant() {
			continue
		}
		ok = true
		v.Loads += float64(acc.Reads)
		v.Stores += float64(acc.Writes)
	}
	return v, ok
}

func (a ArrayVar) Key() string { return identity(a.Name, a.Type) }

func (a ArrayVar) Combine(o ArrayVar) (ArrayVar, error) {
	if a.Key() != o.Key() {
		return ArrayVar{}, mismatch("array variable", a.Name+" "+a.Type, o.Name+" "+o.Type)
	}
	a.Loads += o.Loads
	a.Stores += o.Stores
	return a, nil
}

func (a ArrayVar) Scale(n float64) ArrayVar {
	a.Loads *= n
	a.Stores *= n
	return a
}

func (a ArrayVar) String() string {
	return fmt.Sprintf("AR %s %s, L=%g, S=%g", a.Type, a.Name, a.Loads, a.Stores)
}
