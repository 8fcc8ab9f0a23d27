package analysis

import (
	"loopmodel/internal/errs"
	"loopmodel/internal/expr"
	"loopmodel/internal/program"
)

// Collector folds a loop nest into one metric kind, leaves first.
//
// Leaf converts an event node executed with probability p into zero or more
// values; it is not called when p is exactly 0. Loop aggregates one value of
// a loop body at the loop boundary; siblings holds every value of that body,
// already summed by identity.
type Collector[T Metric[T]] struct {
	Conds *Conditions
	Leaf  func(n program.Node, p float64) ([]T, error)
	Loop  func(l *program.Loop, v T, siblings []T) (T, error)
}

// Collect folds the loop l.
func (c Collector[T]) Collect(l *program.Loop) (*Collection[T], error) {
	body := NewCollection[T]()
	if err := c.nodes(l, l.Body, body); err != nil {
		return nil, err
	}
	siblings := body.Items()
	out := NewCollection[T]()
	for _, v := range siblings {
		agg, err := c.Loop(l, v, siblings)
		if err != nil {
			return nil, errs.AtLine(err, l.Line)
		}
		if err := out.Add(agg); err != nil {
			return nil, errs.AtLine(err, l.Line)
		}
	}
	return out, nil
}

func (c Collector[T]) nodes(l *program.Loop, nodes []program.Node, into *Collection[T]) error {
	for _, n := range nodes {
		switch n.Kind {
		case program.KindLoop:
			sub, err := c.Collect(n.Loop)
			if err != nil {
				return err
			}
			if err := into.Merge(sub); err != nil {
				return errs.AtLine(err, l.Line)
			}
		case program.KindBranch:
			if err := c.nodes(l, n.Branch.Then, into); err != nil {
				return err
			}
			if err := c.nodes(l, n.Branch.Else, into); err != nil {
				return err
			}
		case program.KindFlops, program.KindScalar, program.KindArray:
			p, err := c.Conds.Probability(n.Conds)
			if err != nil {
				return errs.AtLine(err, l.Line)
			}
			if p == 0 {
				continue
			}
			vs, err := c.Leaf(n, p)
			if err != nil {
				return errs.AtLine(err, l.Line)
			}
			for _, v := range vs {
				if err := into.Add(v); err != nil {
					return errs.AtLine(err, l.Line)
				}
			}
		default:
			return errs.AtLine(errs.Structuralf(n.Kind.String(), "unknown node kind"), l.Line)
		}
	}
	return nil
}

// Multiply is the loop rule of the simple metrics: scale by the trip count
// resolved against params.
func Multiply[T Metric[T]](params *expr.Env) func(*program.Loop, T, []T) (T, error) {
	return func(l *program.Loop, v T, _ []T) (T, error) {
		n, err := iterations(l, params)
		if err != nil {
			var zero T
			return zero, err
		}
		return v.Scale(float64(n)), nil
	}
}
