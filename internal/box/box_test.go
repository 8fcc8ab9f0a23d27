package box_test

import (
	"testing"

	"loopmodel/internal/box"
	"loopmodel/internal/errs"
)

func TestCardinality(t *testing.T) {
	tests := []struct {
		name  string
		boxes []box.Box
		want  int64
	}{
		{"none", nil, 0},
		{"single point", []box.Box{{box.Point(3)}}, 1},
		{"single range", []box.Box{{box.Span(0, 9)}}, 10},
		{"touching ranges share endpoint", []box.Box{{box.Span(2, 5)}, {box.Span(5, 11)}}, 10},
		{"disjoint ranges", []box.Box{{box.Span(0, 3)}, {box.Span(10, 11)}}, 6},
		{"nested range", []box.Box{{box.Span(0, 9)}, {box.Span(3, 4)}}, 10},
		{"empty interval ignored", []box.Box{{box.Span(5, 4)}, {box.Point(1)}}, 1},
		{"2d overlap", []box.Box{
			{box.Span(0, 3), box.Span(0, 3)},
			{box.Span(2, 5), box.Span(2, 5)},
		}, 16 + 16 - 4},
		{"3d stencil points", []box.Box{
			{box.Point(-1), box.Point(0), box.Point(0)},
			{box.Point(0), box.Point(0), box.Point(0)},
			{box.Point(1), box.Point(0), box.Point(0)},
			{box.Point(0), box.Point(0), box.Point(0)},
		}, 3},
		{"2d cross", []box.Box{
			{box.Span(0, 9), box.Point(5)},
			{box.Point(5), box.Span(0, 9)},
		}, 19},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := box.Cardinality(tc.boxes)
			if err != nil {
				t.Fatalf("Cardinality: %v", err)
			}
			if got != tc.want {
				t.Errorf("Cardinality = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCardinalityIdempotentUnion(t *testing.T) {
	b := box.Box{box.Span(1, 7), box.Span(-2, 2), box.Point(4)}
	one, err := box.Cardinality([]box.Box{b})
	if err != nil {
		t.Fatal(err)
	}
	two, err := box.Cardinality([]box.Box{b, b})
	if err != nil {
		t.Fatal(err)
	}
	if one != two || one != b.Size() {
		t.Errorf("single=%d doubled=%d size=%d", one, two, b.Size())
	}
}

func TestCardinalityOverlapProperty(t *testing.T) {
	for _, abc := range [][3]int64{{0, 0, 0}, {0, 4, 9}, {-5, 0, 5}, {3, 3, 100}} {
		a, b, c := abc[0], abc[1], abc[2]
		got, err := box.Cardinality([]box.Box{{box.Span(a, b)}, {box.Span(b, c)}})
		if err != nil {
			t.Fatal(err)
		}
		if got != c-a+1 {
			t.Errorf("[%d,%d] u [%d,%d] = %d, want %d", a, b, b, c, got, c-a+1)
		}
	}
}

func TestCardinalityDimensionMismatch(t *testing.T) {
	_, err := box.Cardinality([]box.Box{{box.Point(0)}, {box.Point(0), box.Point(1)}})
	if !errs.IsKind(err, errs.Invariant) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}
