package counting

import (
	"time"

	"github.com/roadmetrics/countline/internal/geom"
)

// CountEvent is one qualifying boundary crossing by one tracked vehicle.
// Events are immutable once emitted and are never retracted.
type CountEvent struct {
	BoundaryID  string         `json:"boundary_id"`
	TrackID     int64          `json:"track_id"`
	Class       VehicleClass   `json:"class"`
	Direction   CrossDirection `json:"direction"`
	Position    geom.Point     `json:"position"`
	Confidence  float64        `json:"confidence"`
	SpeedPxPerS float64        `json:"speed_px_per_s"`
	FrameIndex  int64          `json:"frame_index"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Evaluator tests track motion segments against the session's boundaries and
// resolves crossing direction. It holds no state of its own: the per-track
// crossing ledger provides the debounce.
type Evaluator struct {
	boundaries []Boundary
}

// NewEvaluator creates an evaluator over validated boundaries. Boundary
// declaration order is preserved; it determines event emission order.
func NewEvaluator(boundaries []Boundary) *Evaluator {
	return &Evaluator{boundaries: boundaries}
}

// Boundaries returns the evaluator's boundary list in declaration order.
func (e *Evaluator) Boundaries() []Boundary {
	return e.boundaries
}

// FrameEvents evaluates every eligible track's latest motion segment against
// every boundary and returns the qualifying crossings, ordered by boundary
// declaration order then ascending track ID. Counted crossings are recorded
// in each track's ledger so a (track, boundary, direction) triple emits at
// most once per track lifetime.
func (e *Evaluator) FrameEvents(tracks []*Track) []CountEvent {
	var events []CountEvent
	for bi := range e.boundaries {
		b := &e.boundaries[bi]
		for _, track := range tracks {
			if ev, ok := e.evaluate(b, track); ok {
				events = append(events, ev)
			}
		}
	}
	return events
}

func (e *Evaluator) evaluate(b *Boundary, track *Track) (CountEvent, bool) {
	p0, p1, ok := track.LastSegment()
	if !ok {
		return CountEvent{}, false
	}

	var (
		dir CrossDirection
		pos geom.Point
	)
	switch b.Kind {
	case BoundaryLine:
		crossed, leftToRight := geom.SegmentCrossesLine(p0.Pos, p1.Pos, b.Points[0], b.Points[1])
		if !crossed {
			return CountEvent{}, false
		}
		if leftToRight {
			dir = DirectionForward
		} else {
			dir = DirectionReverse
		}
		pos, _ = geom.SegmentIntersection(p0.Pos, p1.Pos, b.Points[0], b.Points[1])
	case BoundaryPolygon:
		switch geom.PolygonTransition(p0.Pos, p1.Pos, b.Points) {
		case geom.TransitionEntered:
			dir = DirectionIn
		case geom.TransitionExited:
			dir = DirectionOut
		default:
			return CountEvent{}, false
		}
		pos = p1.Pos
	default:
		return CountEvent{}, false
	}

	if !b.allows(dir) {
		return CountEvent{}, false
	}
	if track.hasCounted(b.ID, dir) {
		return CountEvent{}, false
	}
	track.markCounted(b.ID, dir)

	return CountEvent{
		BoundaryID:  b.ID,
		TrackID:     track.ID,
		Class:       track.Class(),
		Direction:   dir,
		Position:    pos,
		Confidence:  track.Confidence,
		SpeedPxPerS: track.Speed(),
		FrameIndex:  p1.FrameIndex,
		Timestamp:   p1.Timestamp,
	}, true
}
