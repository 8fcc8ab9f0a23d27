package analysis

import (
	"log/slog"

	"loopmodel/internal/errs"
	"loopmodel/internal/program"
)

// Conditions turns a node's branch-guard chain into the probability that
// the node executes.
type Conditions struct {
	table   map[string]float64
	ignore  bool
	verbose bool
	log     *slog.Logger
}

// NewConditions builds a checker over table. With ignore set every
// condition is treated as certain, and a warning is logged once.
func NewConditions(table map[string]float64, ignore, verbose bool, log *slog.Logger) *Conditions {
	if log == nil {
		log = slog.Default()
	}
	if ignore {
		log.Warn("ignoring branch conditions, every conditionally executed block is included")
	}
	return &Conditions{table: table, ignore: ignore, verbose: verbose, log: log}
}

// Of returns the probability of a single guard.
func (c *Conditions) Of(cond program.Condition) (float64, error) {
	if c.ignore {
		return 1, nil
	}
	p, ok := c.table[cond.Name]
	if !ok {
		return 0, errs.Configf(cond.Name, "condition %q has no probability in the condition table", cond.Name)
	}
	if cond.When {
		return p, nil
	}
	return 1 - p, nil
}

// Probability multiplies the guard probabilities of a whole chain. An empty
// chain has probability 1.
func (c *Conditions) Probability(conds []program.Condition) (float64, error) {
	if c.ignore {
		return 1, nil
	}
	p := 1.0
	probs := make([]float64, 0, len(conds))
	for _, cond := range conds {
		q, err := c.Of(cond)
		if err != nil {
			return 0, err
		}
		probs = append(probs, q)
		p *= q
	}
	if c.verbose && len(conds) > 0 {
		names := make([]string, len(conds))
		for i, cond := range conds {
			names[i] = cond.String()
		}
		c.log.Debug("conditions", "chain", names, "probabilities", probs, "p", p)
	}
	return p, nil
}
