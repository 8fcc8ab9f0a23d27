package analysis

import (
	"fmt"
	"strings"

	"loopmodel/internal/box"
	"loopmodel/internal/config"
	"loopmodel/internal/errs"
	"loopmodel/internal/expr"
	"loopmodel/internal/program"
)

// Region is a set of accesses moved between cache and memory Count times.
type Region struct {
	Accesses []program.Resolved
	Size     int64
	Count    float64
}

// NewRegion measures accs and repeats them count times.
func NewRegion(accs []program.Resolved, count float64) (Region, error) {
	n, err := box.Cardinality(program.Boxes(accs))
	if err != nil {
		return Region{}, err
	}
	return Region{Accesses: accs, Size: n, Count: count}, nil
}

func (r Region) Words() float64 { return float64(r.Size) * r.Count }

// Class is the access class of the region: load, store, or load-store.
func (r Region) Class() (string, error) {
	var reads, writes bool
	for _, acc := range r.Accesses {
		reads = reads || acc.Reads > 0
		writes = writes || acc.Writes > 0
	}
	switch {
	case reads && writes:
		return config.ClassLoadStore, nil
	case reads:
		return config.ClassLoad, nil
	case writes:
		return config.ClassStore, nil
	}
	return "", errs.Invariantf("region", "traffic region has neither reads nor writes")
}

// Scaler supplies the per-class traffic scale factor.
type Scaler interface {
	ScaleFactor(class string) float64
}

// Bytes is Words times elemBytes times the scale factor of the region class.
func (r Region) Bytes(elemBytes int64, sc Scaler) (float64, error) {
	class, err := r.Class()
	if err != nil {
		return 0, err
	}
	return r.Words() * float64(elemBytes) * sc.ScaleFactor(class), nil
}

// Traffic is the memory traffic one array causes in a code region. WS is
// the footprint of one pass over the region and BlockN the number of such
// passes; both feed the reuse decision of the enclosing loop.
type Traffic struct {
	Name      string
	Type      string
	ElemBytes int64
	Regions   []Region
	WS        *WorkingSet
	BlockN    float64
}

// NewTraffic converts an array event executed with probability p.
func NewTraffic(a *program.Array, elemBytes int64, env *expr.Env, p float64) (*Traffic, error) {
	ws, err := NewWorkingSet(a, elemBytes, env)
	if err != nil {
		return nil, err
	}
	region, err := NewRegion(ws.Accesses, p)
	if err != nil {
		return nil, err
	}
	return &Traffic{
		Name:      a.Name,
		Type:      a.Type,
		ElemBytes: elemBytes,
		Regions:   []Region{region},
		WS:        ws,
		BlockN:    1,
	}, nil
}

func (t *Traffic) Key() string { return identity(t.Name, t.Type) }

// Combine keeps the regions of both sides apart. Overlap between them is
// only recognised when an enclosing loop rebuilds a region from the merged
// working set.
func (t *Traffic) Combine(o *Traffic) (*Traffic, error) {
	if t.Key() != o.Key() {
		return nil, mismatch("traffic", t.Name+" "+t.Type, o.Name+" "+o.Type)
	}
	ws, err := t.WS.Combine(o.WS)
	if err != nil {
		return nil, err
	}
	out := t.shell()
	out.WS = ws
	out.BlockN = max(t.BlockN, o.BlockN)
	out.Regions = make([]Region, 0, len(t.Regions)+len(o.Regions))
	out.Regions = append(out.Regions, t.Regions...)
	out.Regions = append(out.Regions, o.Regions...)
	return out, nil
}

// Scale multiplies the count of every region by n.
func (t *Traffic) Scale(n float64) *Traffic {
	out := t.shell()
	out.WS, out.BlockN = t.WS, t.BlockN
	out.Regions = make([]Region, len(t.Regions))
	for i, r := range t.Regions {
		r.Count *= n
		out.Regions[i] = r
	}
	return out
}

func (t *Traffic) shell() *Traffic {
	return &Traffic{Name: t.Name, Type: t.Type, ElemBytes: t.ElemBytes}
}

// Size sums the region sizes.
func (t *Traffic) Size() int64 {
	var n int64
	for _, r := range t.Regions {
		n += r.Size
	}
	return n
}

func (t *Traffic) Words() float64 {
	var w float64
	for _, r := range t.Regions {
		w += r.Words()
	}
	return w
}

func (t *Traffic) Bytes(sc Scaler) (float64, error) {
	var b float64
	for _, r := range t.Regions {
		rb, err := r.Bytes(t.ElemBytes, sc)
		if err != nil {
			return 0, fmt.Errorf("traffic of %s: %w", t.Name, err)
		}
		b += rb
	}
	return b, nil
}

func (t *Traffic) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "MT %s %s, size=%d, words=%g\n", t.Type, t.Name, t.Size(), t.Words())
	for _, r := range t.Regions {
		class, _ := r.Class()
		fmt.Fprintf(&sb, " region size=%d count=%g class=%s\n", r.Size, r.Count, class)
	}
	return sb.String()
}

// -----------------------------------------------------------------------------
// Reuse decision
// -----------------------------------------------------------------------------

// reuse aggregates traffic at a loop boundary.
//
// The loop is resolved twice: against the problem bindings for its full
// range, and against the blocking bindings for one tile. If the combined
// one-pass footprint of every array in the loop body fits in cache, each
// array is loaded once per tile: its traffic becomes a single region over
// its tiled footprint, repeated once per tile and weighted by the loop's own
// guard probability. Otherwise every iteration reloads its data and the
// per-iteration regions are multiplied by the full trip count. Partial fits
// get no reuse. A loop that never runs moves no data and is not reported.
type reuse struct {
	params   *expr.Env
	blocked  *expr.Env
	cache    int64
	conds    *Conditions
	reporter *Reporter
}

func (r *reuse) loop(l *program.Loop, t *Traffic, siblings []*Traffic) (*Traffic, error) {
	lo, hi, err := bounds(l, r.params)
	if err != nil {
		return nil, err
	}
	blo, bhi, err := bounds(l, r.blocked)
	if err != nil {
		return nil, err
	}
	iters := max(hi-lo+1, 0)
	if iters == 0 {
		out := t.shell()
		out.WS = t.WS.empty()
		return out, nil
	}
	tile := bhi - blo + 1
	if tile <= 0 {
		return nil, errs.AtLine(errs.Configf(l.Var, "blocked range [%d, %d] is empty", blo, bhi), l.Line)
	}
	numBlocks := float64(iters) / float64(tile)

	var wsBytes int64
	for _, s := range siblings {
		b, err := s.WS.Bytes()
		if err != nil {
			return nil, errs.AtLine(err, l.Line)
		}
		wsBytes += b
	}
	r.reporter.Reuse(l.Line, wsBytes, r.cache)

	out := t.shell()
	out.WS = t.WS.Unroll(l.Var, blo, bhi)
	out.BlockN = t.BlockN * numBlocks

	if wsBytes > r.cache {
		scaled := t.Scale(float64(iters))
		out.Regions = scaled.Regions
		return out, nil
	}
	if len(out.WS.Accesses) == 0 {
		return out, nil
	}
	p, err := r.conds.Probability(l.Conds)
	if err != nil {
		return nil, errs.AtLine(err, l.Line)
	}
	region, err := NewRegion(out.WS.Accesses, out.BlockN*p)
	if err != nil {
		return nil, errs.AtLine(err, l.Line)
	}
	out.Regions = []Region{region}
	return out, nil
}
