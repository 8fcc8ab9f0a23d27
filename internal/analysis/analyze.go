package analysis

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"loopmodel/internal/config"
	"loopmodel/internal/expr"
	"loopmodel/internal/program"
)

// Analyzer runs every metric over the top-level loops of a program. Reuse
// diagnostics are scoped to a single Analyze call.
type Analyzer struct {
	cfg     *config.Config
	params  *expr.Env
	blocked *expr.Env
	conds   *Conditions
	log     *slog.Logger
	now     func() time.Time
}

// New prepares an analyzer for one run under cfg.
func New(cfg *config.Config, log *slog.Logger) (*Analyzer, error) {
	if log == nil {
		log = slog.Default()
	}
	params, err := cfg.ParamEnv()
	if err != nil {
		return nil, err
	}
	blocked, err := cfg.BlockEnv()
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		cfg:     cfg,
		params:  params,
		blocked: blocked,
		conds:   NewConditions(cfg.Conditions, cfg.Options.IgnoreConds, cfg.Options.VerboseConds, log),
		log:     log,
		now:     time.Now,
	}, nil
}

// Run analyses prog under cfg. Any error aborts the run; no partial report
// is returned.
func Run(prog *program.Program, cfg *config.Config, log *slog.Logger) (*Report, error) {
	a, err := New(cfg, log)
	if err != nil {
		return nil, err
	}
	return a.Analyze(prog)
}

// Analyze produces the report of prog.
func (a *Analyzer) Analyze(prog *program.Program) (*Report, error) {
	rep := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: a.now().UTC(),
		Program:     prog.Name,
		CacheBytes:  a.cfg.CacheByteN(),
	}
	reporter := NewReporter(a.log)
	for _, fn := range prog.Functions {
		for _, l := range fn.Body {
			lr, err := a.loop(fn.Name, l, reporter)
			if err != nil {
				return nil, fmt.Errorf("function %s: %w", fn.Name, err)
			}
			rep.Loops = append(rep.Loops, lr)
		}
	}
	rep.Reuse = reporter.Records()
	a.log.Debug("analysis complete", "program", prog.Name, "loops", len(rep.Loops), "run_id", rep.RunID)
	return rep, nil
}

func (a *Analyzer) loop(fn string, l *program.Loop, reporter *Reporter) (LoopReport, error) {
	lr := LoopReport{Function: fn, Line: l.Line, Var: l.Var}

	flops, err := a.Flops().Collect(l)
	if err != nil {
		return lr, err
	}
	if f, ok := flops.Get(FlopCount{}.Key()); ok {
		lr.Flops = &f
	}

	svs, err := a.StateVars().Collect(l)
	if err != nil {
		return lr, err
	}
	lr.StateVars = svs.Items()

	avs, err := a.ArrayVars().Collect(l)
	if err != nil {
		return lr, err
	}
	lr.ArrayVars = avs.Items()

	wss, err := a.WorkingSets().Collect(l)
	if err != nil {
		return lr, err
	}
	for _, ws := range wss.Items() {
		a.log.Debug("working set", "loop", l.Line, "ws", ws)
		n, err := ws.Size()
		if err != nil {
			return lr, err
		}
		lr.WorkingSets = append(lr.WorkingSets, WorkingSetRecord{
			Name: ws.Name, Type: ws.Type, Elements: n, Bytes: n * ws.ElemBytes,
		})
	}

	mts, err := a.Traffic(reporter).Collect(l)
	if err != nil {
		return lr, err
	}
	for _, t := range mts.Items() {
		a.log.Debug("memory traffic", "loop", l.Line, "traffic", t)
		rec, err := a.trafficRecord(t)
		if err != nil {
			return lr, err
		}
		lr.Traffic = append(lr.Traffic, rec)
		lr.TotalBytes += rec.Bytes
	}
	a.log.Debug("loop analysed", "function", fn, "loop", l.Line, "arrays", mts.Len(), "bytes", lr.TotalBytes)
	return lr, nil
}

func (a *Analyzer) trafficRecord(t *Traffic) (TrafficRecord, error) {
	bytes, err := t.Bytes(a.cfg)
	if err != nil {
		return TrafficRecord{}, err
	}
	rec := TrafficRecord{Name: t.Name, Type: t.Type, Size: t.Size(), Words: t.Words(), Bytes: bytes}
	for _, r := range t.Regions {
		class, err := r.Class()
		if err != nil {
			return TrafficRecord{}, err
		}
		rec.Regions = append(rec.Regions, RegionRecord{Size: r.Size, Count: r.Count, Class: class})
	}
	return rec, nil
}

// -----------------------------------------------------------------------------
// Collectors
// -----------------------------------------------------------------------------

// Flops collects floating-point operation counts.
func (a *Analyzer) Flops() Collector[FlopCount] {
	return Collector[FlopCount]{
		Conds: a.conds,
		Leaf: func(n program.Node, p float64) ([]FlopCount, error) {
			if n.Kind != program.KindFlops {
				return nil, nil
			}
			return []FlopCount{NewFlopCount(n.Flops).Scale(p)}, nil
		},
		Loop: Multiply[FlopCount](a.params),
	}
}

// StateVars collects register-resident variable traffic.
func (a *Analyzer) StateVars() Collector[StateVar] {
	return Collector[StateVar]{
		Conds: a.conds,
		Leaf: func(n program.Node, p float64) ([]StateVar, error) {
			switch n.Kind {
			case program.KindScalar:
				return []StateVar{ScalarStateVar(n.Scalar).Scale(p)}, nil
			case program.KindArray:
				svs := ArrayStateVars(n.Array)
				for i := range svs {
					svs[i] = svs[i].Scale(p)
				}
				return svs, nil
			}
			return nil, nil
		},
		Loop: Multiply[StateVar](a.params),
	}
}

// ArrayVars collects streamed array loads and stores.
func (a *Analyzer) ArrayVars() Collector[ArrayVar] {
	return Collector[ArrayVar]{
		Conds: a.conds,
		Leaf: func(n program.Node, p float64) ([]ArrayVar, error) {
			if n.Kind != program.KindArray {
				return nil, nil
			}
			av, ok := NewArrayVar(n.Array)
			if !ok {
				return nil, nil
			}
			return []ArrayVar{av.Scale(p)}, nil
		},
		Loop: Multiply[ArrayVar](a.params),
	}
}

// WorkingSets collects array footprints, unrolling each loop over its
// blocked range. Conditional accesses count whenever they may execute.
func (a *Analyzer) WorkingSets() Collector[*WorkingSet] {
	return Collector[*WorkingSet]{
		Conds: a.conds,
		Leaf: func(n program.Node, _ float64) ([]*WorkingSet, error) {
			if n.Kind != program.KindArray || n.Array.OnlyLoopInvariant() {
				return nil, nil
			}
			width, err := a.cfg.TypeByteN(n.Array.Type)
			if err != nil {
				return nil, err
			}
			ws, err := NewWorkingSet(n.Array, width, a.params)
			if err != nil {
				return nil, err
			}
			return []*WorkingSet{ws}, nil
		},
		Loop: func(l *program.Loop, ws *WorkingSet, _ []*WorkingSet) (*WorkingSet, error) {
			lo, hi, err := bounds(l, a.blocked)
			if err != nil {
				return nil, err
			}
			return ws.Unroll(l.Var, lo, hi), nil
		},
	}
}

// Traffic collects cache-aware memory traffic, recording each reuse
// decision with reporter.
func (a *Analyzer) Traffic(reporter *Reporter) Collector[*Traffic] {
	r := &reuse{
		params:   a.params,
		blocked:  a.blocked,
		cache:    a.cfg.CacheByteN(),
		conds:    a.conds,
		reporter: reporter,
	}
	return Collector[*Traffic]{
		Conds: a.conds,
		Leaf: func(n program.Node, p float64) ([]*Traffic, error) {
			if n.Kind != program.KindArray || n.Array.OnlyLoopInvariant() {
				return nil, nil
			}
			width, err := a.cfg.TypeByteN(n.Array.Type)
			if err != nil {
				return nil, err
			}
			t, err := NewTraffic(n.Array, width, a.params, p)
			if err != nil {
				return nil, err
			}
			return []*Traffic{t}, nil
		},
		Loop: r.loop,
	}
}
