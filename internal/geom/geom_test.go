package geom

import (
	"math"
	"testing"
)

func TestSideOfLine(t *testing.T) {
	a := Point{X: 0, Y: 0}
	b := Point{X: 10, Y: 0}

	tests := []struct {
		name string
		p    Point
		want Side
	}{
		{"above line", Point{X: 5, Y: 5}, SideLeft},
		{"below line", Point{X: 5, Y: -5}, SideRight},
		{"exactly on line", Point{X: 5, Y: 0}, SideLeft},
		{"on line extension", Point{X: 20, Y: 0}, SideLeft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SideOfLine(tt.p, a, b); got != tt.want {
				t.Errorf("SideOfLine(%v) = %v, want %v", tt.p, got, tt.want)
			}
			// Pure function: identical inputs give identical outputs.
			if again := SideOfLine(tt.p, a, b); again != SideOfLine(tt.p, a, b) {
				t.Error("SideOfLine is not deterministic")
			}
		})
	}
}

func TestSegmentCrossesLine(t *testing.T) {
	a := Point{X: 0, Y: 0}
	b := Point{X: 10, Y: 0}

	tests := []struct {
		name        string
		p0, p1      Point
		crossed     bool
		leftToRight bool
	}{
		{"downward crossing", Point{X: 5, Y: 5}, Point{X: 5, Y: -5}, true, true},
		{"upward crossing", Point{X: 5, Y: -5}, Point{X: 5, Y: 5}, true, false},
		{"no crossing same side", Point{X: 5, Y: 5}, Point{X: 6, Y: 3}, false, false},
		{"misses segment extent", Point{X: 15, Y: 5}, Point{X: 15, Y: -5}, false, false},
		{"parallel above", Point{X: 0, Y: 2}, Point{X: 10, Y: 2}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crossed, ltr := SegmentCrossesLine(tt.p0, tt.p1, a, b)
			if crossed != tt.crossed {
				t.Fatalf("crossed = %v, want %v", crossed, tt.crossed)
			}
			if crossed && ltr != tt.leftToRight {
				t.Errorf("leftToRight = %v, want %v", ltr, tt.leftToRight)
			}
		})
	}
}

func TestSegmentIntersection(t *testing.T) {
	pt, ok := SegmentIntersection(
		Point{X: 5, Y: 5}, Point{X: 5, Y: -5},
		Point{X: 0, Y: 0}, Point{X: 10, Y: 0},
	)
	if !ok {
		t.Fatal("expected intersection")
	}
	if math.Abs(pt.X-5) > 1e-9 || math.Abs(pt.Y) > 1e-9 {
		t.Errorf("intersection = %v, want (5, 0)", pt)
	}

	if _, ok := SegmentIntersection(
		Point{X: 0, Y: 1}, Point{X: 10, Y: 1},
		Point{X: 0, Y: 0}, Point{X: 10, Y: 0},
	); ok {
		t.Error("parallel segments should not intersect")
	}
}

func TestPointInPolygon(t *testing.T) {
	square := []Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}

	// Concave "L" shape: the notch at the top right is outside.
	lShape := []Point{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 5},
		{X: 5, Y: 5}, {X: 5, Y: 10}, {X: 0, Y: 10},
	}

	tests := []struct {
		name    string
		polygon []Point
		p       Point
		want    bool
	}{
		{"square centre", square, Point{X: 5, Y: 5}, true},
		{"square outside", square, Point{X: 15, Y: 5}, false},
		{"square far corner", square, Point{X: -1, Y: -1}, false},
		{"l-shape lower arm", lShape, Point{X: 8, Y: 2}, true},
		{"l-shape notch", lShape, Point{X: 8, Y: 8}, false},
		{"l-shape upper arm", lShape, Point{X: 2, Y: 8}, true},
		{"degenerate two points", square[:2], Point{X: 5, Y: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PointInPolygon(tt.p, tt.polygon); got != tt.want {
				t.Errorf("PointInPolygon(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestPolygonTransition(t *testing.T) {
	square := []Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	outside := Point{X: -5, Y: 5}
	inside := Point{X: 5, Y: 5}

	if got := PolygonTransition(outside, inside, square); got != TransitionEntered {
		t.Errorf("expected TransitionEntered, got %v", got)
	}
	if got := PolygonTransition(inside, outside, square); got != TransitionExited {
		t.Errorf("expected TransitionExited, got %v", got)
	}
	if got := PolygonTransition(inside, inside, square); got != TransitionNone {
		t.Errorf("expected TransitionNone for interior motion, got %v", got)
	}
	if got := PolygonTransition(outside, outside, square); got != TransitionNone {
		t.Errorf("expected TransitionNone for exterior motion, got %v", got)
	}
}

// Swapping the endpoints of a motion segment swaps ENTERED and EXITED.
func TestPolygonTransitionSymmetry(t *testing.T) {
	square := []Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	pairs := []struct{ p0, p1 Point }{
		{Point{X: -5, Y: 5}, Point{X: 5, Y: 5}},
		{Point{X: 5, Y: 5}, Point{X: 5, Y: 15}},
		{Point{X: 2, Y: 2}, Point{X: 8, Y: 8}},
	}
	for _, pr := range pairs {
		fwd := PolygonTransition(pr.p0, pr.p1, square)
		rev := PolygonTransition(pr.p1, pr.p0, square)
		switch fwd {
		case TransitionEntered:
			if rev != TransitionExited {
				t.Errorf("forward ENTERED but reverse %v", rev)
			}
		case TransitionExited:
			if rev != TransitionEntered {
				t.Errorf("forward EXITED but reverse %v", rev)
			}
		case TransitionNone:
			if rev != TransitionNone {
				t.Errorf("forward NONE but reverse %v", rev)
			}
		}
	}
}
