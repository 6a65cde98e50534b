package counting

import (
	"math"
	"time"

	"github.com/roadmetrics/countline/internal/geom"
)

// TrackState is the lifecycle state of a track.
type TrackState string

const (
	// TrackTentative is a new track that has not yet accumulated enough
	// consecutive hits to be trusted. Tentative tracks never count.
	TrackTentative TrackState = "tentative"
	// TrackConfirmed is a stable track eligible for boundary evaluation.
	TrackConfirmed TrackState = "confirmed"
	// TrackLost is a track unmatched for up to the loss window; its position
	// is frozen but it remains eligible for boundary evaluation.
	TrackLost TrackState = "lost"
	// TrackDeleted is terminal.
	TrackDeleted TrackState = "deleted"
)

// TrackPoint is one centroid observation in a track's history.
type TrackPoint struct {
	Pos        geom.Point
	FrameIndex int64
	Timestamp  time.Time
}

// ledgerKey identifies one counted crossing: boundary plus direction. A track
// counts at most once per key for its entire lifetime.
type ledgerKey struct {
	boundaryID string
	direction  CrossDirection
}

// Track is one maintained object identity across frames. Tracks are owned
// exclusively by the Tracker and mutated only through its update protocol.
type Track struct {
	ID    int64
	Box   BBox
	State TrackState

	// Consecutive association counters.
	Hits   int
	Misses int

	// Confidence of the most recent matched detection; propagated onto
	// count events this track triggers.
	Confidence float64

	FirstFrame    int64
	LastSeenFrame int64

	history     []TrackPoint
	historySize int

	labels      []VehicleClass
	labelWindow int

	ledger map[ledgerKey]struct{}
}

func newTrack(id int64, det Detection, historySize, labelWindow int) *Track {
	t := &Track{
		ID:            id,
		Box:           det.Box,
		State:         TrackTentative,
		Hits:          1,
		Confidence:    det.Confidence,
		FirstFrame:    det.FrameIndex,
		LastSeenFrame: det.FrameIndex,
		history:       make([]TrackPoint, 0, historySize),
		historySize:   historySize,
		labels:        make([]VehicleClass, 0, labelWindow),
		labelWindow:   labelWindow,
		ledger:        make(map[ledgerKey]struct{}),
	}
	t.history = append(t.history, TrackPoint{
		Pos:        det.Box.Centroid(),
		FrameIndex: det.FrameIndex,
		Timestamp:  det.Timestamp,
	})
	t.labels = append(t.labels, det.Class)
	return t
}

// observe folds a matched detection into the track.
func (t *Track) observe(det Detection) {
	t.Box = det.Box
	t.Confidence = det.Confidence
	t.LastSeenFrame = det.FrameIndex

	t.history = append(t.history, TrackPoint{
		Pos:        det.Box.Centroid(),
		FrameIndex: det.FrameIndex,
		Timestamp:  det.Timestamp,
	})
	if len(t.history) > t.historySize {
		t.history = t.history[1:]
	}

	t.labels = append(t.labels, det.Class)
	if len(t.labels) > t.labelWindow {
		t.labels = t.labels[1:]
	}
}

// Class returns the majority class over the recent-label window. Ties break
// toward the most recently observed label, since single-frame classification
// is noisy but fresh evidence is the least stale.
func (t *Track) Class() VehicleClass {
	if len(t.labels) == 0 {
		return ClassUnknown
	}
	counts := make(map[VehicleClass]int, len(t.labels))
	lastSeen := make(map[VehicleClass]int, len(t.labels))
	for i, c := range t.labels {
		counts[c]++
		lastSeen[c] = i
	}
	best := t.labels[len(t.labels)-1]
	for c, n := range counts {
		if n > counts[best] || (n == counts[best] && lastSeen[c] > lastSeen[best]) {
			best = c
		}
	}
	return best
}

// History returns a copy of the track's centroid history, oldest first.
func (t *Track) History() []TrackPoint {
	out := make([]TrackPoint, len(t.history))
	copy(out, t.history)
	return out
}

// LastSegment returns the most recent motion segment (previous centroid to
// current centroid). ok is false while the track has fewer than two points.
func (t *Track) LastSegment() (p0, p1 TrackPoint, ok bool) {
	n := len(t.history)
	if n < 2 {
		return TrackPoint{}, TrackPoint{}, false
	}
	return t.history[n-2], t.history[n-1], true
}

// velocity returns the per-frame displacement estimated from the last two
// history points. Zero until two points exist.
func (t *Track) velocity() (vx, vy float64) {
	p0, p1, ok := t.LastSegment()
	if !ok {
		return 0, 0
	}
	frames := float64(p1.FrameIndex - p0.FrameIndex)
	if frames <= 0 {
		return 0, 0
	}
	return (p1.Pos.X - p0.Pos.X) / frames, (p1.Pos.Y - p0.Pos.Y) / frames
}

// predictedBox extrapolates the track's box to the given frame using the
// last known velocity. Lost tracks keep their frozen history; only the
// association prediction moves.
func (t *Track) predictedBox(frame int64) BBox {
	vx, vy := t.velocity()
	dt := float64(frame - t.LastSeenFrame)
	if dt <= 0 {
		return t.Box
	}
	b := t.Box
	b.X += vx * dt
	b.Y += vy * dt
	return b
}

// Speed returns the track's most recent speed in pixels per second, derived
// from the last motion segment. Zero when the history is too short or the
// timestamps do not advance.
func (t *Track) Speed() float64 {
	p0, p1, ok := t.LastSegment()
	if !ok {
		return 0
	}
	dt := p1.Timestamp.Sub(p0.Timestamp).Seconds()
	if dt <= 0 {
		return 0
	}
	dx := p1.Pos.X - p0.Pos.X
	dy := p1.Pos.Y - p0.Pos.Y
	return math.Hypot(dx, dy) / dt
}

// hasCounted reports whether the (boundary, direction) pair is already in
// the crossing ledger.
func (t *Track) hasCounted(boundaryID string, dir CrossDirection) bool {
	_, ok := t.ledger[ledgerKey{boundaryID: boundaryID, direction: dir}]
	return ok
}

// markCounted records a counted crossing in the ledger.
func (t *Track) markCounted(boundaryID string, dir CrossDirection) {
	t.ledger[ledgerKey{boundaryID: boundaryID, direction: dir}] = struct{}{}
}

// LedgerSize returns the number of counted (boundary, direction) pairs.
func (t *Track) LedgerSize() int {
	return len(t.ledger)
}

// eligible reports whether the track participates in boundary evaluation.
func (t *Track) eligible() bool {
	return t.State == TrackConfirmed || t.State == TrackLost
}
