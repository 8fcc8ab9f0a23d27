package analysis

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-set/v2"
)

// ReuseRecord is one cache-reuse decision taken at a loop.
type ReuseRecord struct {
	Line       int   `yaml:"loop"`
	WSBytes    int64 `yaml:"ws_bytes"`
	CacheBytes int64 `yaml:"cache_bytes"`
	Fits       bool  `yaml:"fits"`
}

func (r ReuseRecord) String() string {
	rel := "> "
	if r.Fits {
		rel = "<="
	}
	return fmt.Sprintf("loop %4d WS: %8.4g %s %.4g KiB (%8d %s %8d bytes)",
		r.Line, float64(r.WSBytes)/1024, rel, float64(r.CacheBytes)/1024, r.WSBytes, rel, r.CacheBytes)
}

// Reporter emits reuse diagnostics for one analysis run. A loop line is
// reported at most once however many arrays are decided at it.
type Reporter struct {
	seen    *set.Set[int]
	log     *slog.Logger
	records []ReuseRecord
}

// NewReporter returns a reporter with an empty history.
func NewReporter(log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{seen: set.New[int](0), log: log}
}

// Reuse records the decision taken at line unless it was already reported.
func (r *Reporter) Reuse(line int, wsBytes, cacheBytes int64) {
	if r.seen.Contains(line) {
		return
	}
	r.seen.Insert(line)
	rec := ReuseRecord{Line: line, WSBytes: wsBytes, CacheBytes: cacheBytes, Fits: wsBytes <= cacheBytes}
	r.records = append(r.records, rec)
	r.log.Info("reuse", "loop", line, "ws_bytes", wsBytes, "cache_bytes", cacheBytes, "fits", rec.Fits,
		"summary", rec.String())
}

// Records returns the decisions in the order they were taken.
func (r *Reporter) Records() []ReuseRecord {
	return append([]ReuseRecord(nil), r.records...)
}
