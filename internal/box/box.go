// Package box counts the distinct integer lattice points covered by a union
// of axis-aligned boxes. Every dimension of a box is an inclusive interval; a
// single index is the interval [v, v].
package box

import (
	"fmt"
	"sort"
	"strings"

	"loopmodel/internal/errs"
)

// Interval is an inclusive integer range. An interval with Lo > Hi is empty.
type Interval struct {
	Lo, Hi int64
}

// Point returns the single-index interval [v, v].
func Point(v int64) Interval { return Interval{Lo: v, Hi: v} }

// Span returns the inclusive interval [lo, hi].
func Span(lo, hi int64) Interval { return Interval{Lo: lo, Hi: hi} }

// Len is the number of integers in the interval.
func (iv Interval) Len() int64 {
	if iv.Hi < iv.Lo {
		return 0
	}
	return iv.Hi - iv.Lo + 1
}

func (iv Interval) String() string {
	if iv.Lo == iv.Hi {
		return fmt.Sprintf("%d", iv.Lo)
	}
	return fmt.Sprintf("%d:%d", iv.Lo, iv.Hi)
}

// Box is a hyperrectangle, one interval per dimension.
type Box []Interval

// Size is the number of lattice points in b alone.
func (b Box) Size() int64 {
	n := int64(1)
	for _, iv := range b {
		n *= iv.Len()
	}
	return n
}

func (b Box) empty() bool {
	for _, iv := range b {
		if iv.Hi < iv.Lo {
			return true
		}
	}
	return false
}

func (b Box) String() string {
	parts := make([]string, len(b))
	for i, iv := range b {
		parts[i] = iv.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Cardinality returns the exact number of distinct lattice points in the
// union of boxes. Overlapping points are counted once. All boxes must have
// the same number of dimensions.
func Cardinality(boxes []Box) (int64, error) {
	live := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		if len(b) != len(boxes[0]) {
			return 0, errs.Invariantf(b.String(), "box has %d dimensions, want %d", len(b), len(boxes[0]))
		}
		if !b.empty() {
			live = append(live, b)
		}
	}
	if len(live) == 0 {
		return 0, nil
	}
	return sweep(live, 0), nil
}

// sweep cuts dimension dim at every box boundary and, for each slab, counts
// the union of the boxes crossing it over the remaining dimensions.
func sweep(boxes []Box, dim int) int64 {
	if len(boxes) == 0 {
		return 0
	}
	if dim == len(boxes[0]) {
		return 1
	}
	if len(boxes) == 1 {
		return boxes[0][dim:].Size()
	}

	// half-open boundaries along dim
	cuts := make([]int64, 0, 2*len(boxes))
	for _, b := range boxes {
		cuts = append(cuts, b[dim].Lo, b[dim].Hi+1)
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })
	cuts = dedup(cuts)

	var total int64
	for k := 0; k+1 < len(cuts); k++ {
		lo, hi := cuts[k], cuts[k+1]
		var crossing []Box
		for _, b := range boxes {
			if b[dim].Lo <= lo && hi-1 <= b[dim].Hi {
				crossing = append(crossing, b)
			}
		}
		if len(crossing) == 0 {
			continue
		}
		total += (hi - lo) * sweep(crossing, dim+1)
	}
	return total
}

func dedup(sorted []int64) []int64 {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
