// Package geom provides the 2D primitives used for boundary-crossing tests:
// point/line side classification, segment intersection, and point-in-polygon
// membership. All functions are pure and operate in pixel coordinates.
package geom

// Point is a position in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Side classifies a point relative to a directed line.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

// Cross returns the 2D cross product (b−a) × (p−a). Positive means p lies to
// the left of the directed line a→b in a y-up frame; in image coordinates
// (y grows downward) the visual sense is mirrored, which is fine because
// crossing detection only needs a consistent orientation, not a visual one.
func Cross(a, b, p Point) float64 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

// SideOfLine reports which side of the directed line a→b the point p is on.
// Points exactly on the line classify as SideLeft so that crossing tests
// remain total.
func SideOfLine(p, a, b Point) Side {
	if Cross(a, b, p) >= 0 {
		return SideLeft
	}
	return SideRight
}

// SegmentsIntersect reports whether the closed segments p0–p1 and a–b
// intersect, using the counter-clockwise orientation test.
func SegmentsIntersect(p0, p1, a, b Point) bool {
	d1 := Cross(a, b, p0)
	d2 := Cross(a, b, p1)
	d3 := Cross(p0, p1, a)
	d4 := Cross(p0, p1, b)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	// Collinear endpoint touches count as crossings so a centroid landing
	// exactly on the line is not silently skipped.
	if d1 == 0 && onSegment(a, b, p0) {
		return true
	}
	if d2 == 0 && onSegment(a, b, p1) {
		return true
	}
	if d3 == 0 && onSegment(p0, p1, a) {
		return true
	}
	if d4 == 0 && onSegment(p0, p1, b) {
		return true
	}
	return false
}

// onSegment reports whether p, known to be collinear with a–b, lies within
// the segment's bounding box.
func onSegment(a, b, p Point) bool {
	return min(a.X, b.X) <= p.X && p.X <= max(a.X, b.X) &&
		min(a.Y, b.Y) <= p.Y && p.Y <= max(a.Y, b.Y)
}

// SegmentIntersection returns the intersection point of segments p0–p1 and
// a–b. ok is false when the segments do not intersect or are parallel.
func SegmentIntersection(p0, p1, a, b Point) (Point, bool) {
	rX, rY := p1.X-p0.X, p1.Y-p0.Y
	sX, sY := b.X-a.X, b.Y-a.Y

	denom := rX*sY - rY*sX
	if denom == 0 {
		return Point{}, false
	}

	t := ((a.X-p0.X)*sY - (a.Y-p0.Y)*sX) / denom
	u := ((a.X-p0.X)*rY - (a.Y-p0.Y)*rX) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return Point{}, false
	}

	return Point{X: p0.X + t*rX, Y: p0.Y + t*rY}, true
}

// SegmentCrossesLine reports whether the motion segment p0→p1 crosses the
// counting line a–b, and if so whether the motion went left-to-right or
// right-to-left relative to the line's direction. A motion that starts or
// ends exactly on the line uses the SideLeft convention from SideOfLine.
func SegmentCrossesLine(p0, p1, a, b Point) (crossed bool, leftToRight bool) {
	if !SegmentsIntersect(p0, p1, a, b) {
		return false, false
	}
	s0 := SideOfLine(p0, a, b)
	s1 := SideOfLine(p1, a, b)
	if s0 == s1 {
		// Intersecting but no side change: the segment grazed the line.
		return false, false
	}
	return true, s0 == SideLeft
}

// PointInPolygon reports whether p is inside the closed polygon using the
// even-odd (ray casting) rule. Points on an edge may classify either way;
// the transition logic tolerates this because membership only matters as a
// frame-to-frame delta.
func PointInPolygon(p Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}
	inside := false
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		pi, pj := polygon[i], polygon[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			xCross := (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Transition is the membership change of a motion segment against a polygon.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionEntered
	TransitionExited
)

// PolygonTransition classifies the motion p0→p1 against the closed polygon:
// entering, exiting, or no membership change.
func PolygonTransition(p0, p1 Point, polygon []Point) Transition {
	was := PointInPolygon(p0, polygon)
	is := PointInPolygon(p1, polygon)
	switch {
	case !was && is:
		return TransitionEntered
	case was && !is:
		return TransitionExited
	default:
		return TransitionNone
	}
}
