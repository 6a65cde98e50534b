// Package session runs the frame-ingest loop for one counting session: a
// bounded frame queue in front of the counting engine, periodic event
// flushing to a sink, and clean teardown on context cancellation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roadmetrics/countline/internal/counting"
	"github.com/roadmetrics/countline/internal/monitoring"
)

// Frame is one frame of detections submitted for processing.
type Frame struct {
	Index      int64
	Timestamp  time.Time
	Detections []counting.Detection
}

// OverflowPolicy decides what happens when a frame arrives on a full queue.
type OverflowPolicy string

const (
	// PolicyBlock applies backpressure: Submit waits for queue space.
	PolicyBlock OverflowPolicy = "block"
	// PolicyDropOldest evicts the oldest queued frame to admit the new one.
	PolicyDropOldest OverflowPolicy = "drop_oldest"
)

// ParsePolicy maps a config string to an OverflowPolicy.
func ParsePolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", string(PolicyBlock):
		return PolicyBlock, nil
	case string(PolicyDropOldest):
		return PolicyDropOldest, nil
	default:
		return "", fmt.Errorf("unknown queue policy %q", s)
	}
}

// EventSink receives flushed count events. store.DB satisfies this.
type EventSink interface {
	InsertEvents(sessionID string, events []counting.CountEvent) error
}

// Config holds the runner's queue and flush parameters.
type Config struct {
	QueueCapacity int
	Policy        OverflowPolicy
	FlushInterval time.Duration
}

// DefaultConfig returns the default runner parameters.
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 64,
		Policy:        PolicyBlock,
		FlushInterval: 5 * time.Second,
	}
}

// Snapshot is a point-in-time view of a running session's state.
type Snapshot struct {
	SessionID       string                                      `json:"session_id"`
	ProcessedFrames int64                                       `json:"processed_frames"`
	DroppedFrames   int64                                       `json:"dropped_frames"`
	TotalEvents     int                                         `json:"total_events"`
	Totals          map[string]map[counting.CrossDirection]int  `json:"totals"`
	Metrics         counting.SessionMetrics                     `json:"metrics"`
	ActiveTracks    int                                         `json:"active_tracks"`
}

// Runner drives one session's engine from a bounded frame queue. Frames are
// processed strictly in submission order on a single goroutine; the queue
// decouples a bursty detector from the engine without reordering.
type Runner struct {
	cfg    Config
	engine *counting.Engine
	sink   EventSink

	sessionID string
	frames    chan Frame
	done      chan struct{}

	droppedFrames atomic.Int64

	mu       sync.Mutex
	snapshot Snapshot
	runErr   error
}

// NewRunner creates a runner over an engine and an event sink. A nil sink
// disables persistence; events still count toward the snapshot.
func NewRunner(cfg Config, engine *counting.Engine, sink EventSink) *Runner {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyBlock
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Runner{
		cfg:    cfg,
		engine: engine,
		sink:   sink,
		frames: make(chan Frame, cfg.QueueCapacity),
		done:   make(chan struct{}),
	}
}

// Start begins the session and launches the processing loop. The loop runs
// until ctx is cancelled; it then drains the queue, flushes pending events,
// and ends the session.
func (r *Runner) Start(ctx context.Context, sessionID string, boundaries []counting.Boundary) error {
	if err := r.engine.StartSession(boundaries); err != nil {
		return err
	}
	r.sessionID = sessionID
	r.mu.Lock()
	r.snapshot.SessionID = sessionID
	r.mu.Unlock()
	go r.loop(ctx)
	return nil
}

// Submit enqueues a frame. Under PolicyBlock it waits for queue space or ctx
// cancellation; under PolicyDropOldest it evicts the oldest queued frame
// when full, counting the eviction.
func (r *Runner) Submit(ctx context.Context, f Frame) error {
	if r.cfg.Policy == PolicyBlock {
		select {
		case r.frames <- f:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return fmt.Errorf("session %s has ended", r.sessionID)
		}
	}

	for {
		select {
		case r.frames <- f:
			return nil
		case <-r.done:
			return fmt.Errorf("session %s has ended", r.sessionID)
		default:
		}
		select {
		case <-r.frames:
			r.droppedFrames.Add(1)
		default:
		}
	}
}

// Wait blocks until the processing loop has shut down and returns its error,
// if any.
func (r *Runner) Wait() error {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runErr
}

// Snapshot returns the current session state. Safe to call from any
// goroutine.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snapshot
	s.DroppedFrames = r.droppedFrames.Load()
	s.Totals = make(map[string]map[counting.CrossDirection]int, len(r.snapshot.Totals))
	for id, byDir := range r.snapshot.Totals {
		m := make(map[counting.CrossDirection]int, len(byDir))
		for d, n := range byDir {
			m[d] = n
		}
		s.Totals[id] = m
	}
	return s
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	var pending []counting.CountEvent

	flush := func() {
		if len(pending) == 0 || r.sink == nil {
			pending = pending[:0]
			return
		}
		if err := r.sink.InsertEvents(r.sessionID, pending); err != nil {
			monitoring.Logf("session %s: failed to persist %d events: %v", r.sessionID, len(pending), err)
			return
		}
		pending = pending[:0]
	}

	for {
		select {
		case f := <-r.frames:
			events, err := r.process(f)
			if err != nil {
				r.mu.Lock()
				r.runErr = err
				r.mu.Unlock()
				flush()
				return
			}
			pending = append(pending, events...)
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// Drain whatever was queued before cancellation, then stop.
			for {
				select {
				case f := <-r.frames:
					events, err := r.process(f)
					if err != nil {
						r.mu.Lock()
						r.runErr = err
						r.mu.Unlock()
						flush()
						return
					}
					pending = append(pending, events...)
					continue
				default:
				}
				break
			}
			flush()
			if err := r.engine.EndSession(); err != nil {
				monitoring.Logf("session %s: end failed: %v", r.sessionID, err)
			}
			return
		}
	}
}

// process runs one frame through the engine and refreshes the snapshot.
// A recoverable input error drops the frame with a diagnostic; a state error
// stops the loop.
func (r *Runner) process(f Frame) ([]counting.CountEvent, error) {
	events, err := r.engine.ProcessFrame(f.Index, f.Timestamp, f.Detections)
	if err != nil {
		var ie *counting.InputError
		if errors.As(err, &ie) {
			monitoring.Logf("session %s: frame %d rejected: %v", r.sessionID, f.Index, err)
			return nil, nil
		}
		return nil, err
	}

	r.mu.Lock()
	r.snapshot.ProcessedFrames++
	r.snapshot.TotalEvents += len(events)
	r.snapshot.Totals = r.engine.Totals()
	r.snapshot.Metrics = r.engine.Metrics()
	r.snapshot.ActiveTracks = len(r.engine.Tracker().ActiveTracks())
	r.mu.Unlock()
	return events, nil
}
