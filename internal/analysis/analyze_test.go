package analysis_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"
	"gopkg.in/yaml.v3"

	"loopmodel/internal/analysis"
	"loopmodel/internal/config"
	"loopmodel/internal/errs"
	"loopmodel/internal/program"
)

// fixtureWant is the expectation block of a testdata archive. Pairs in
// array_vars and state_vars are [loads, stores] and [reads, writes].
type fixtureWant struct {
	Error       string `yaml:"error"`
	ErrorLine   int    `yaml:"error_line"`
	ErrorSymbol string `yaml:"error_symbol"`
	Loops       []struct {
		Function    string                `yaml:"function"`
		Line        int                   `yaml:"line"`
		Flops       *analysis.FlopCount   `yaml:"flops"`
		NoFlops     bool                  `yaml:"no_flops"`
		ArrayVars   map[string][2]float64 `yaml:"array_vars"`
		StateVars   map[string][2]float64 `yaml:"state_vars"`
		WorkingSets map[string]int64      `yaml:"working_sets"`
		Traffic     map[string]float64    `yaml:"traffic"`
		TotalBytes  float64               `yaml:"total_bytes"`
		Absent      []string              `yaml:"absent"`
	} `yaml:"loops"`
	Reuse []analysis.ReuseRecord `yaml:"reuse"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadFixture(t *testing.T, path string) (*program.Program, *config.Config, fixtureWant) {
	t.Helper()
	ar, err := txtar.ParseFile(path)
	if err != nil {
		t.Fatalf("parse archive: %v", err)
	}
	files := make(map[string][]byte)
	for _, f := range ar.Files {
		files[f.Name] = f.Data
	}
	prog, err := program.Parse(files["program.yaml"])
	if err != nil {
		t.Fatalf("program.yaml: %v", err)
	}
	cfg, err := config.Parse(files["config.yaml"])
	if err != nil {
		t.Fatalf("config.yaml: %v", err)
	}
	var want fixtureWant
	if err := yaml.Unmarshal(files["want.yaml"], &want); err != nil {
		t.Fatalf("want.yaml: %v", err)
	}
	return prog, cfg, want
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

func TestFixtures(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no fixtures found")
	}
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".txtar")
		t.Run(name, func(t *testing.T) {
			prog, cfg, want := loadFixture(t, path)
			rep, err := analysis.Run(prog, cfg, quietLogger())
			if want.Error != "" {
				checkError(t, err, want.Error, want.ErrorLine, want.ErrorSymbol)
				if rep != nil {
					t.Error("expected no report on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			checkReport(t, rep, want)
		})
	}
}

func checkError(t *testing.T, err error, kind string, line int, symbol string) {
	t.Helper()
	var e *errs.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if e.Kind.String() != kind+" error" && e.Kind.String() != kind {
		t.Errorf("kind = %v, want %s", e.Kind, kind)
	}
	if e.Line != line {
		t.Errorf("line = %d, want %d", e.Line, line)
	}
	if e.Symbol != symbol {
		t.Errorf("symbol = %q, want %q", e.Symbol, symbol)
	}
}

func checkReport(t *testing.T, rep *analysis.Report, want fixtureWant) {
	t.Helper()
	for _, wl := range want.Loops {
		got, ok := rep.Loop(wl.Function, wl.Line)
		if !ok {
			t.Fatalf("no report for %s loop %d", wl.Function, wl.Line)
		}
		prefix := fmt.Sprintf("%s loop %d", wl.Function, wl.Line)
		switch {
		case wl.NoFlops && got.Flops != nil:
			t.Errorf("%s: flops = %v, want none", prefix, got.Flops)
		case wl.Flops != nil && got.Flops == nil:
			t.Errorf("%s: flops missing", prefix)
		case wl.Flops != nil:
			f, w := *got.Flops, *wl.Flops
			if !near(f.Adds, w.Adds) || !near(f.Multiplies, w.Multiplies) ||
				!near(f.Divides, w.Divides) || !near(f.Specials, w.Specials) {
				t.Errorf("%s: flops = %v, want %v", prefix, f, w)
			}
		}
		for name, lw := range wl.ArrayVars {
			av, ok := got.ArrayVar(name)
			if !ok || !near(av.Loads, lw[0]) || !near(av.Stores, lw[1]) {
				t.Errorf("%s: array var %s = %+v, want L=%g S=%g", prefix, name, av, lw[0], lw[1])
			}
		}
		for name, rw := range wl.StateVars {
			sv, ok := got.StateVar(name)
			if !ok || !near(sv.Reads, rw[0]) || !near(sv.Writes, rw[1]) {
				t.Errorf("%s: state var %s = %+v, want R=%g W=%g", prefix, name, sv, rw[0], rw[1])
			}
		}
		for name, n := range wl.WorkingSets {
			found := false
			for _, ws := range got.WorkingSets {
				if ws.Name == name {
					found = true
					if ws.Elements != n {
						t.Errorf("%s: working set %s = %d, want %d", prefix, name, ws.Elements, n)
					}
				}
			}
			if !found {
				t.Errorf("%s: no working set for %s", prefix, name)
			}
		}
		for name, b := range wl.Traffic {
			tr, ok := got.TrafficOf(name)
			if !ok || !near(tr.Bytes, b) {
				t.Errorf("%s: traffic %s = %+v, want %g bytes", prefix, name, tr, b)
			}
		}
		if !near(got.TotalBytes, wl.TotalBytes) {
			t.Errorf("%s: total bytes = %g, want %g", prefix, got.TotalBytes, wl.TotalBytes)
		}
		for _, name := range wl.Absent {
			if _, ok := got.ArrayVar(name); ok {
				t.Errorf("%s: %s has an array entry", prefix, name)
			}
			if _, ok := got.StateVar(name); ok {
				t.Errorf("%s: %s has a state entry", prefix, name)
			}
			if _, ok := got.TrafficOf(name); ok {
				t.Errorf("%s: %s has a traffic entry", prefix, name)
			}
		}
	}
	if want.Reuse != nil {
		if len(rep.Reuse) != len(want.Reuse) {
			t.Fatalf("reuse records = %+v, want %+v", rep.Reuse, want.Reuse)
		}
		for i := range want.Reuse {
			if rep.Reuse[i] != want.Reuse[i] {
				t.Errorf("reuse[%d] = %+v, want %+v", i, rep.Reuse[i], want.Reuse[i])
			}
		}
	}
}

const plainLoopDoc = `
name: plain
functions:
  - name: f
    body:
      - loop: {line: 3, var: i, range: [1, n]}
        body:
          - flops: {adds: 2, multiplies: 1, specials: 1}
          - scalar: {name: s, type: double, reads: 1, writes: 1}
          - array:
              name: x
              type: double
              accesses:
                - {index: [0], loopvars: [i], reads: 1, writes: 1}
                - {index: [5], reads: 1}
`

func TestPlainLoopMultiplication(t *testing.T) {
	prog, err := program.Parse([]byte(plainLoopDoc))
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{1, 10, 1000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			cfg := config.Default()
			cfg.Params = map[string]string{"n": fmt.Sprint(n)}
			rep, err := analysis.Run(prog, cfg, quietLogger())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			l := rep.Loops[0]
			N := float64(n)
			if l.Flops == nil || l.Flops.Adds != 2*N || l.Flops.Multiplies != N || l.Flops.Specials != N {
				t.Errorf("flops = %v, want %g×(A=2 M=1 S=1)", l.Flops, N)
			}
			if sv, _ := l.StateVar("s"); sv.Reads != N || sv.Writes != N {
				t.Errorf("s = %+v", sv)
			}
			// base pointer: one read per element access (2 + 1)
			if sv, _ := l.StateVar("x"); sv.Reads != 3*N || sv.Type != "double *" {
				t.Errorf("x base pointer = %+v", sv)
			}
			if sv, ok := l.StateVar("x[5]"); !ok || sv.Reads != N {
				t.Errorf("x[5] = %+v (found %v)", sv, ok)
			}
			if av, _ := l.ArrayVar("x"); av.Loads != N || av.Stores != N {
				t.Errorf("x array var = %+v", av)
			}
		})
	}
}

func TestReuseReportedOncePerLoop(t *testing.T) {
	doc := `
name: siblings
functions:
  - name: f
    body:
      - loop: {line: 9, var: i, range: [0, 15]}
        body:
          - array: {name: a, type: double, accesses: [{index: [0], loopvars: [i], reads: 1}]}
          - array: {name: b, type: double, accesses: [{index: [0], loopvars: [i], writes: 1}]}
          - array: {name: c, type: float, accesses: [{index: [0], loopvars: [i], reads: 1, writes: 1}]}
`
	prog, err := program.Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	rep, err := analysis.Run(prog, cfg, quietLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Reuse) != 1 {
		t.Fatalf("reuse records = %+v, want exactly one", rep.Reuse)
	}
	if r := rep.Reuse[0]; r.Line != 9 || r.WSBytes != 8+8+4 || !r.Fits {
		t.Errorf("reuse = %+v", r)
	}
	l := rep.Loops[0]
	classes := map[string]string{}
	for _, tr := range l.Traffic {
		classes[tr.Name] = tr.Regions[0].Class
	}
	if classes["a"] != config.ClassLoad || classes["b"] != config.ClassStore || classes["c"] != config.ClassLoadStore {
		t.Errorf("region classes = %v", classes)
	}

	// a second run starts with an empty history
	rep2, err := analysis.Run(prog, cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep2.Reuse) != 1 {
		t.Errorf("second run reuse records = %+v", rep2.Reuse)
	}
	if rep.RunID == "" || rep.RunID == rep2.RunID {
		t.Errorf("run ids %q and %q should be distinct", rep.RunID, rep2.RunID)
	}
}

// Reuse history belongs to one Analyze call, even on a shared analyzer.
func TestAnalyzerReportsEachProgramAfresh(t *testing.T) {
	const tmpl = `
name: %s
functions:
  - name: f
    body:
      - loop: {line: 9, var: i, range: [0, 3]}
        body:
          - array: {name: a, type: %s, accesses: [{index: [0], loopvars: [i], reads: 1}]}
`
	small, err := program.Parse([]byte(fmt.Sprintf(tmpl, "small", "double")))
	if err != nil {
		t.Fatal(err)
	}
	large, err := program.Parse([]byte(fmt.Sprintf(tmpl, "large", "record")))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Machine.CacheKBytes = 0
	cfg.Machine.CacheBytes = 100
	cfg.Machine.Types["record"] = 800
	a, err := analysis.New(cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	rep, err := a.Analyze(small)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Reuse) != 1 || !rep.Reuse[0].Fits || rep.Reuse[0].WSBytes != 8 {
		t.Fatalf("small reuse = %+v", rep.Reuse)
	}
	rep, err = a.Analyze(large)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Reuse) != 1 || rep.Reuse[0].Fits || rep.Reuse[0].WSBytes != 800 {
		t.Errorf("large reuse = %+v, want its own overflowing decision", rep.Reuse)
	}
}

func TestScaleFactorsApplyPerClass(t *testing.T) {
	doc := `
name: scaled
functions:
  - name: f
    body:
      - loop: {line: 1, var: i, range: [0, 9]}
        body:
          - array: {name: r, type: double, accesses: [{index: [0], loopvars: [i], reads: 1}]}
          - array: {name: w, type: double, accesses: [{index: [0], loopvars: [i], writes: 1}]}
`
	prog, err := program.Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Machine.CacheKBytes = 0
	cfg.Machine.Scale = map[string]float64{config.ClassLoad: 1, config.ClassStore: 2, config.ClassLoadStore: 1}
	rep, err := analysis.Run(prog, cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	l := rep.Loops[0]
	if tr, _ := l.TrafficOf("r"); tr.Bytes != 80 {
		t.Errorf("r bytes = %g, want 80", tr.Bytes)
	}
	if tr, _ := l.TrafficOf("w"); tr.Bytes != 160 {
		t.Errorf("w bytes = %g, want 160", tr.Bytes)
	}
}

func TestIgnoreConditions(t *testing.T) {
	doc := `
name: ignored
functions:
  - name: f
    body:
      - loop: {line: 5, var: i, range: [0, 3]}
        body:
          - if: rare
            then: [{flops: {divides: 1}}]
            else: [{flops: {adds: 1}}]
`
	prog, err := program.Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Options.IgnoreConds = true
	rep, err := analysis.Run(prog, cfg, quietLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f := rep.Loops[0].Flops; f == nil || f.Divides != 4 || f.Adds != 4 {
		t.Errorf("flops = %v, want both branches counted fully", f)
	}
}

func TestUnknownTypeIsConfigurationError(t *testing.T) {
	doc := `
name: typed
functions:
  - name: f
    body:
      - loop: {line: 21, var: i, range: [0, 3]}
        body:
          - array: {name: q, type: quad, accesses: [{index: [0], loopvars: [i], reads: 1}]}
`
	prog, err := program.Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	_, err = analysis.Run(prog, config.Default(), quietLogger())
	checkError(t, err, "configuration", 21, "quad")
}

func TestUnboundRangeListsMissingSymbols(t *testing.T) {
	doc := `
name: unbound
functions:
  - name: f
    body:
      - loop: {line: 6, var: i, range: [lo(1), "hi(1) + m"]}
        body:
          - flops: {adds: 1}
`
	prog, err := program.Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Params = map[string]string{"lo(1)": "2"}
	_, err = analysis.Run(prog, cfg, quietLogger())
	checkError(t, err, "configuration", 6, "hi(1)")
	if err != nil && !strings.Contains(err.Error(), "range of i is [2, hi(1) + m], unbound hi(1), m") {
		t.Errorf("message = %q", err)
	}
}

func TestDebugLogDescribesFootprints(t *testing.T) {
	prog, err := program.Parse([]byte(plainLoopDoc))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Params = map[string]string{"n": "4"}
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if _, err := analysis.Run(prog, cfg, log); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"WS double x", "MT double x", "arrays=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("debug log missing %q:\n%s", want, out)
		}
	}
}
