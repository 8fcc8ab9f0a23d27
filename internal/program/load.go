package program

// YAML ingestion of the program model.
//
// Document shape:
//
//	name: advance
//	functions:
//	  - name: hypterm
//	    conditions: [is_wall]           # optional declaration list
//	    body:
//	      - loop: {line: 12, var: k, range: [lo(3), hi(3)]}
//	        body:
//	          - flops: {adds: 3, multiplies: 2}
//	          - scalar: {name: dxinv, type: double, reads: 1}
//	          - array:
//	              name: q
//	              type: double
//	              accesses:
//	                - {index: [-1, 0, "lo(3)"], loopvars: [i, j, ""], reads: 1}
//	                - {index: [[0, 4]], reads: 1}   # range dimension
//	          - if: is_wall
//	            then: [...]
//	            else: [...]

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"loopmodel/internal/errs"
	"loopmodel/internal/expr"
)

type programDoc struct {
	Name      string        `yaml:"name"`
	Functions []functionDoc `yaml:"functions"`
}

type functionDoc struct {
	Name       string    `yaml:"name"`
	Conditions []string  `yaml:"conditions,omitempty"`
	Body       []nodeDoc `yaml:"body"`
}

type nodeDoc struct {
	Loop   *loopDoc   `yaml:"loop,omitempty"`
	Body   []nodeDoc  `yaml:"body,omitempty"`
	Flops  *flopsDoc  `yaml:"flops,omitempty"`
	Scalar *scalarDoc `yaml:"scalar,omitempty"`
	Array  *arrayDoc  `yaml:"array,omitempty"`
	If     string     `yaml:"if,omitempty"`
	Then   []nodeDoc  `yaml:"then,omitempty"`
	Else   []nodeDoc  `yaml:"else,omitempty"`
}

type loopDoc struct {
	Line  int       `yaml:"line"`
	Var   string    `yaml:"var"`
	Range [2]string `yaml:"range"`
}

type flopsDoc struct {
	Adds       int64 `yaml:"adds"`
	Multiplies int64 `yaml:"multiplies"`
	Divides    int64 `yaml:"divides"`
	Specials   int64 `yaml:"specials"`
}

type scalarDoc struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Reads  int64  `yaml:"reads"`
	Writes int64  `yaml:"writes"`
}

type arrayDoc struct {
	Name     string      `yaml:"name"`
	Type     string      `yaml:"type"`
	Accesses []accessDoc `yaml:"accesses"`
}

type accessDoc struct {
	Index    []dimDoc `yaml:"index"`
	LoopVars []string `yaml:"loopvars,omitempty"`
	Reads    int64    `yaml:"reads"`
	Writes   int64    `yaml:"writes"`
}

// dimDoc is either a scalar expression (a point) or a two-element sequence
// (an inclusive range).
type dimDoc struct {
	lo, hi  string
	isRange bool
}

func (d *dimDoc) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		d.lo, d.hi = value.Value, value.Value
		return nil
	case yaml.SequenceNode:
		if len(value.Content) != 2 {
			return fmt.Errorf("line %d: range index needs 2 bounds, got %d", value.Line, len(value.Content))
		}
		for _, c := range value.Content {
			if c.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: range bound must be a scalar", c.Line)
			}
		}
		d.lo, d.hi, d.isRange = value.Content[0].Value, value.Content[1].Value, true
		return nil
	}
	return fmt.Errorf("line %d: index dimension must be a scalar or a [lo, hi] pair", value.Line)
}

// Load reads and parses a program file.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a program document and validates its structure.
func Parse(data []byte) (*Program, error) {
	var doc programDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal program: %w", err)
	}
	prog := &Program{Name: doc.Name}
	for _, fd := range doc.Functions {
		fn, err := buildFunction(fd)
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", fd.Name, err)
		}
		prog.Functions = append(prog.Functions, fn)
	}
	return prog, nil
}

// builder carries the per-function declaration list while nodes are built.
type builder struct {
	declared map[string]bool
	line     int
}

func buildFunction(fd functionDoc) (*Function, error) {
	fn := &Function{Name: fd.Name, Conditions: fd.Conditions}
	b := &builder{}
	if fd.Conditions != nil {
		b.declared = make(map[string]bool, len(fd.Conditions))
		for _, c := range fd.Conditions {
			b.declared[c] = true
		}
	}
	for i, nd := range fd.Body {
		if nd.Loop == nil {
			return nil, errs.Structuralf(fmt.Sprintf("body[%d]", i), "top-level statement is not a loop")
		}
		n, err := b.node(nd, nil)
		if err != nil {
			return nil, err
		}
		fn.Body = append(fn.Body, n.Loop)
	}
	return fn, nil
}

func (b *builder) nodes(docs []nodeDoc, conds []Condition) ([]Node, error) {
	out := make([]Node, 0, len(docs))
	for _, nd := range docs {
		n, err := b.node(nd, conds)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func withCond(conds []Condition, c Condition) []Condition {
	out := make([]Condition, 0, len(conds)+1)
	out = append(out, conds...)
	return append(out, c)
}

func (b *builder) node(nd nodeDoc, conds []Condition) (Node, error) {
	set := 0
	for _, present := range []bool{nd.Loop != nil, nd.Flops != nil, nd.Scalar != nil, nd.Array != nil, nd.If != ""} {
		if present {
			set++
		}
	}
	if set != 1 {
		return Node{}, errs.AtLine(errs.Structuralf("statement", "expected exactly one of loop/flops/scalar/array/if, got %d", set), b.line)
	}

	n := Node{Conds: conds}
	switch {
	case nd.Loop != nil:
		loop, err := b.loop(nd, conds)
		if err != nil {
			return Node{}, err
		}
		n.Kind, n.Loop = KindLoop, loop
	case nd.Flops != nil:
		f := Flops(*nd.Flops)
		n.Kind, n.Flops = KindFlops, &f
	case nd.Scalar != nil:
		s := Scalar(*nd.Scalar)
		n.Kind, n.Scalar = KindScalar, &s
	case nd.Array != nil:
		arr, err := b.array(nd.Array)
		if err != nil {
			return Node{}, err
		}
		n.Kind, n.Array = KindArray, arr
	default:
		if b.declared != nil && !b.declared[nd.If] {
			return Node{}, errs.AtLine(errs.Structuralf(nd.If, "condition %q is not declared by the function", nd.If), b.line)
		}
		then, err := b.nodes(nd.Then, withCond(conds, Condition{Name: nd.If, When: true}))
		if err != nil {
			return Node{}, err
		}
		els, err := b.nodes(nd.Else, withCond(conds, Condition{Name: nd.If, When: false}))
		if err != nil {
			return Node{}, err
		}
		n.Kind, n.Branch = KindBranch, &Branch{Cond: nd.If, Then: then, Else: els}
	}
	return n, nil
}

func (b *builder) loop(nd nodeDoc, conds []Condition) (*Loop, error) {
	ld := nd.Loop
	if ld.Var == "" {
		return nil, errs.AtLine(errs.Structuralf("var", "loop has no loop variable"), ld.Line)
	}
	lo, err := expr.Parse(ld.Range[0])
	if err != nil {
		return nil, fmt.Errorf("loop %d lower bound: %w", ld.Line, err)
	}
	hi, err := expr.Parse(ld.Range[1])
	if err != nil {
		return nil, fmt.Errorf("loop %d upper bound: %w", ld.Line, err)
	}
	outer := b.line
	b.line = ld.Line
	body, err := b.nodes(nd.Body, conds)
	b.line = outer
	if err != nil {
		return nil, err
	}
	return &Loop{Line: ld.Line, Var: ld.Var, Lower: lo, Upper: hi, Conds: conds, Body: body}, nil
}

func (b *builder) array(ad *arrayDoc) (*Array, error) {
	arr := &Array{Name: ad.Name, Type: ad.Type}
	if len(ad.Accesses) == 0 {
		return nil, errs.AtLine(errs.Structuralf(ad.Name, "array statement has no accesses"), b.line)
	}
	for _, acd := range ad.Accesses {
		acc, err := b.access(ad.Name, acd)
		if err != nil {
			return nil, err
		}
		arr.Accesses = append(arr.Accesses, acc)
	}
	return arr, nil
}

func (b *builder) access(name string, acd accessDoc) (Access, error) {
	if acd.Reads == 0 && acd.Writes == 0 {
		return Access{}, errs.AtLine(errs.Invariantf(name, "access has neither reads nor writes"), b.line)
	}
	loopVars := acd.LoopVars
	if loopVars == nil {
		loopVars = make([]string, len(acd.Index))
	}
	if len(loopVars) != len(acd.Index) {
		return Access{}, errs.AtLine(errs.Structuralf(name, "%d loopvars for %d index dimensions", len(loopVars), len(acd.Index)), b.line)
	}
	acc := Access{LoopVars: loopVars, Reads: acd.Reads, Writes: acd.Writes}
	for _, dd := range acd.Index {
		lo, err := expr.Parse(dd.lo)
		if err != nil {
			return Access{}, fmt.Errorf("array %s index: %w", name, err)
		}
		if !dd.isRange {
			acc.Index = append(acc.Index, PointDim(lo))
			continue
		}
		hi, err := expr.Parse(dd.hi)
		if err != nil {
			return Access{}, fmt.Errorf("array %s index: %w", name, err)
		}
		acc.Index = append(acc.Index, RangeDim(lo, hi))
	}
	return acc, nil
}
