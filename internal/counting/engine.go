// Package counting implements the vehicle tracking-and-counting core: it
// reconciles noisy per-frame detections into stable track identities and
// converts boundary crossings into deduplicated count events.
package counting

import (
	"errors"
	"time"

	"github.com/roadmetrics/countline/internal/monitoring"
)

// EngineConfig configures a counting engine.
type EngineConfig struct {
	Tracker TrackerConfig
}

// DefaultEngineConfig returns an EngineConfig with default tracker
// parameters.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{Tracker: DefaultTrackerConfig()}
}

// Engine is the per-session orchestrator. It owns a Tracker and an Evaluator
// exclusively; nothing is shared between sessions, and each session gets an
// independent track identifier namespace. Engine is not safe for concurrent
// use; a session is a single logical frame stream.
type Engine struct {
	cfg EngineConfig

	tracker   *Tracker
	evaluator *Evaluator

	started  bool
	poisoned error

	droppedDetections  int64
	rejectedBoundaries int

	totals  map[string]map[CrossDirection]int
	metrics *sessionAccumulator
}

// NewEngine creates an engine. Call StartSession before processing frames.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

// StartSession validates the boundary set and initialises session state.
// An invalid boundary is rejected with a logged diagnostic while the
// remaining boundaries still load; RejectedBoundaries reports how many were
// dropped. Starting over an active session is a StateError.
func (e *Engine) StartSession(boundaries []Boundary) error {
	if e.started {
		return &StateError{Reason: "session already active"}
	}

	accepted := make([]Boundary, 0, len(boundaries))
	rejected := 0
	for i := range boundaries {
		b := boundaries[i]
		if err := b.Validate(); err != nil {
			rejected++
			monitoring.Logf("counting: %v", err)
			continue
		}
		accepted = append(accepted, b)
	}

	e.tracker = NewTracker(e.cfg.Tracker)
	e.evaluator = NewEvaluator(accepted)
	e.started = true
	e.poisoned = nil
	e.droppedDetections = 0
	e.rejectedBoundaries = rejected
	e.totals = make(map[string]map[CrossDirection]int, len(accepted))
	e.metrics = newSessionAccumulator()

	monitoring.Logf("counting: session started with %d boundaries (%d rejected)", len(accepted), rejected)
	return nil
}

// ProcessFrame ingests one frame of detections and returns the count events
// it produced, ordered by boundary declaration order then ascending track
// ID. Malformed detections are dropped individually with a diagnostic; the
// frame still processes. A StateError poisons the session: every subsequent
// call returns the same error until the session is restarted.
func (e *Engine) ProcessFrame(frameIndex int64, ts time.Time, detections []Detection) ([]CountEvent, error) {
	if !e.started {
		return nil, &StateError{Reason: "no active session"}
	}
	if e.poisoned != nil {
		return nil, e.poisoned
	}

	valid := detections[:0:0]
	for i, det := range detections {
		if err := det.Validate(); err != nil {
			e.droppedDetections++
			monitoring.Logf("counting: frame %d detection %d dropped: %v", frameIndex, i, err)
			continue
		}
		valid = append(valid, det)
	}

	if err := e.tracker.Update(frameIndex, ts, valid); err != nil {
		var se *StateError
		if errors.As(err, &se) {
			e.poisoned = err
		}
		return nil, err
	}

	e.tracker.PruneDeleted()

	events := e.evaluator.FrameEvents(e.tracker.EligibleTracks())
	for _, ev := range events {
		byDir := e.totals[ev.BoundaryID]
		if byDir == nil {
			byDir = make(map[CrossDirection]int)
			e.totals[ev.BoundaryID] = byDir
		}
		byDir[ev.Direction]++
		e.metrics.record(ev)
	}
	return events, nil
}

// EndSession tears down all tracks and closes the session. Tracks mid-
// crossing are not synthetically completed: no events are emitted on
// teardown. Ending an inactive session is a StateError.
func (e *Engine) EndSession() error {
	if !e.started {
		return &StateError{Reason: "no active session"}
	}
	e.tracker.Reset()
	e.started = false
	monitoring.Logf("counting: session ended (%d detections dropped)", e.droppedDetections)
	return nil
}

// DroppedDetections returns how many malformed detections this session has
// rejected, for per-session observability.
func (e *Engine) DroppedDetections() int64 {
	return e.droppedDetections
}

// RejectedBoundaries returns how many boundaries failed validation at
// session start.
func (e *Engine) RejectedBoundaries() int {
	return e.rejectedBoundaries
}

// Totals returns a snapshot of per-boundary, per-direction running counts.
func (e *Engine) Totals() map[string]map[CrossDirection]int {
	out := make(map[string]map[CrossDirection]int, len(e.totals))
	for id, byDir := range e.totals {
		m := make(map[CrossDirection]int, len(byDir))
		for d, n := range byDir {
			m[d] = n
		}
		out[id] = m
	}
	return out
}

// Metrics returns the session's aggregate crossing metrics.
func (e *Engine) Metrics() SessionMetrics {
	if e.metrics == nil {
		return SessionMetrics{ByClass: map[VehicleClass]int{}}
	}
	return e.metrics.summarise()
}

// Tracker exposes the engine's tracker for state inspection.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}
