package analysis

import (
	"fmt"
	"strings"

	"loopmodel/internal/box"
	"loopmodel/internal/expr"
	"loopmodel/internal/program"
)

// WorkingSet is the footprint of one array in a code region: the (possibly
// overlapping) index boxes it touches.
type WorkingSet struct {
	Name      string
	Type      string
	ElemBytes int64
	Accesses  []program.Resolved

	size  int64
	sized bool
}

// NewWorkingSet resolves the streamed accesses of a against env. Loop
// invariant accesses live in registers and are left out.
func NewWorkingSet(a *program.Array, elemBytes int64, env *expr.Env) (*WorkingSet, error) {
	ws := &WorkingSet{Name: a.Name, Type: a.Type, ElemBytes: elemBytes}
	for _, acc := range a.Accesses {
		if acc.LoopInvariant() {
			continue
		}
		r, err := acc.Resolve(env)
		if err != nil {
			return nil, err
		}
		ws.Consume(r)
	}
	return ws, nil
}

// Consume appends an access. Overlap is resolved lazily by Size.
func (w *WorkingSet) Consume(acc program.Resolved) {
	w.Accesses = append(w.Accesses, acc)
	w.sized = false
}

// Size is the number of distinct elements touched.
func (w *WorkingSet) Size() (int64, error) {
	if w.sized {
		return w.size, nil
	}
	n, err := box.Cardinality(program.Boxes(w.Accesses))
	if err != nil {
		return 0, err
	}
	w.size, w.sized = n, true
	return n, nil
}

// Bytes is Size times the element width.
func (w *WorkingSet) Bytes() (int64, error) {
	n, err := w.Size()
	if err != nil {
		return 0, err
	}
	return n * w.ElemBytes, nil
}

func (w *WorkingSet) Key() string { return identity(w.Name, w.Type) }

// Combine returns a new working set holding the accesses of both.
func (w *WorkingSet) Combine(o *WorkingSet) (*WorkingSet, error) {
	if w.Key() != o.Key() {
		return nil, mismatch("working set", w.Name+" "+w.Type, o.Name+" "+o.Type)
	}
	out := w.empty()
	out.Accesses = make([]program.Resolved, 0, len(w.Accesses)+len(o.Accesses))
	out.Accesses = append(out.Accesses, w.Accesses...)
	out.Accesses = append(out.Accesses, o.Accesses...)
	return out, nil
}

// Scale is the identity: a footprint does not grow with probability.
func (w *WorkingSet) Scale(float64) *WorkingSet { return w }

func (w *WorkingSet) empty() *WorkingSet {
	return &WorkingSet{Name: w.Name, Type: w.Type, ElemBytes: w.ElemBytes}
}

type bucket struct {
	dim      int
	rest     box.Box
	loopVars []string
	lo, hi   int64
	reads    int64
	writes   int64
}

// Unroll folds the iterations lo..hi of the loop over loopVar into single
// accesses. Accesses that follow loopVar and agree on every other dimension
// are merged into one whose loopVar dimension spans
// [lo + min offset, hi + max offset], with their reads and writes summed.
// Accesses independent of loopVar pass through. Every offset between the
// extremes is assumed touched, which overstates strided patterns. An empty
// range touches nothing.
func (w *WorkingSet) Unroll(loopVar string, lo, hi int64) *WorkingSet {
	out := w.empty()
	if hi < lo {
		return out
	}
	var order []string
	buckets := make(map[string]*bucket)
	for _, acc := range w.Accesses {
		i := acc.DependsOn(loopVar)
		if i < 0 {
			out.Consume(acc)
			continue
		}
		k := bucketKey(acc, i)
		b, ok := buckets[k]
		if !ok {
			b = &bucket{dim: i, lo: acc.Index[i].Lo, hi: acc.Index[i].Hi}
			b.rest = append(append(box.Box{}, acc.Index[:i]...), acc.Index[i+1:]...)
			b.loopVars = append(append([]string{}, acc.LoopVars[:i]...), acc.LoopVars[i+1:]...)
			buckets[k] = b
			order = append(order, k)
		}
		b.lo = min(b.lo, acc.Index[i].Lo)
		b.hi = max(b.hi, acc.Index[i].Hi)
		b.reads += acc.Reads
		b.writes += acc.Writes
	}
	for _, k := range order {
		b := buckets[k]
		idx := make(box.Box, 0, len(b.rest)+1)
		idx = append(idx, b.rest[:b.dim]...)
		idx = append(idx, box.Span(lo+b.lo, hi+b.hi))
		idx = append(idx, b.rest[b.dim:]...)
		vars := make([]string, 0, len(b.loopVars)+1)
		vars = append(vars, b.loopVars[:b.dim]...)
		vars = append(vars, "")
		vars = append(vars, b.loopVars[b.dim:]...)
		out.Consume(program.Resolved{Index: idx, LoopVars: vars, Reads: b.reads, Writes: b.writes})
	}
	return out
}

func bucketKey(acc program.Resolved, dim int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|", dim)
	for j, iv := range acc.Index {
		if j == dim {
			continue
		}
		fmt.Fprintf(&sb, "%s@%s,", acc.LoopVars[j], iv)
	}
	return sb.String()
}

func (w *WorkingSet) String() string {
	var sb strings.Builder
	if n, err := w.Size(); err == nil {
		fmt.Fprintf(&sb, "WS %s %s, words=%d, KiB=%g\n", w.Type, w.Name, n, float64(n*w.ElemBytes)/1024)
	} else {
		fmt.Fprintf(&sb, "WS %s %s\n", w.Type, w.Name)
	}
	for _, acc := range w.Accesses {
		sb.WriteString(acc.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
