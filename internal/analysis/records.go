package analysis

import "time"

// Report is the structured result of one analysis run.
type Report struct {
	RunID       string        `yaml:"run_id"`
	GeneratedAt time.Time     `yaml:"generated_at"`
	Program     string        `yaml:"program"`
	CacheBytes  int64         `yaml:"cache_bytes"`
	Loops       []LoopReport  `yaml:"loops"`
	Reuse       []ReuseRecord `yaml:"reuse,omitempty"`
}

// LoopReport holds the metrics of one top-level loop nest.
type LoopReport struct {
	Function    string             `yaml:"function"`
	Line        int                `yaml:"line"`
	Var         string             `yaml:"var"`
	Flops       *FlopCount         `yaml:"flops,omitempty"`
	StateVars   []StateVar         `yaml:"state_vars,omitempty"`
	ArrayVars   []ArrayVar         `yaml:"array_vars,omitempty"`
	WorkingSets []WorkingSetRecord `yaml:"working_sets,omitempty"`
	Traffic     []TrafficRecord    `yaml:"traffic,omitempty"`
	TotalBytes  float64            `yaml:"total_bytes"`
}

// WorkingSetRecord is the footprint of one array over the blocked ranges.
type WorkingSetRecord struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Elements int64  `yaml:"elements"`
	Bytes    int64  `yaml:"bytes"`
}

// TrafficRecord is the memory traffic of one array.
type TrafficRecord struct {
	Name    string         `yaml:"name"`
	Type    string         `yaml:"type"`
	Size    int64          `yaml:"size"`
	Words   float64        `yaml:"words"`
	Bytes   float64        `yaml:"bytes"`
	Regions []RegionRecord `yaml:"regions"`
}

type RegionRecord struct {
	Size  int64   `yaml:"size"`
	Count float64 `yaml:"count"`
	Class string  `yaml:"class"`
}

// Loop returns the report of the loop at line in function fn.
func (r *Report) Loop(fn string, line int) (LoopReport, bool) {
	for _, l := range r.Loops {
		if l.Function == fn && l.Line == line {
			return l, true
		}
	}
	return LoopReport{}, false
}

// TotalBytes sums the memory traffic of every loop.
func (r *Report) TotalBytes() float64 {
	var b float64
	for _, l := range r.Loops {
		b += l.TotalBytes
	}
	return b
}

// StateVar looks up a state variable by name.
func (l LoopReport) StateVar(name string) (StateVar, bool) {
	for _, sv := range l.StateVars {
		if sv.Name == name {
			return sv, true
		}
	}
	return StateVar{}, false
}

// ArrayVar looks up an array variable by name.
func (l LoopReport) ArrayVar(name string) (ArrayVar, bool) {
	for _, av := range l.ArrayVars {
		if av.Name == name {
			return av, true
		}
	}
	return ArrayVar{}, false
}

// TrafficOf looks up the traffic record of an array by name.
func (l LoopReport) TrafficOf(name string) (TrafficRecord, bool) {
	for _, t := range l.Traffic {
		if t.Name == name {
			return t, true
		}
	}
	return TrafficRecord{}, false
}
