package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadmetrics/countline/internal/counting"
	"github.com/roadmetrics/countline/internal/geom"
)

// memorySink collects flushed events in memory.
type memorySink struct {
	mu     sync.Mutex
	events []counting.CountEvent
}

func (s *memorySink) InsertEvents(sessionID string, events []counting.CountEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *memorySink) all() []counting.CountEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]counting.CountEvent(nil), s.events...)
}

var runnerTestBase = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func runnerFrameTime(frame int64) time.Time {
	return runnerTestBase.Add(time.Duration(frame) * 100 * time.Millisecond)
}

func crossingBoundary() []counting.Boundary {
	return []counting.Boundary{{
		ID:     "main-line",
		Kind:   counting.BoundaryLine,
		Points: []geom.Point{{X: 0, Y: 150}, {X: 300, Y: 150}},
		Mode:   counting.ModeBidirectional,
	}}
}

func crossingFrame(frame int64) Frame {
	return Frame{
		Index:     frame,
		Timestamp: runnerFrameTime(frame),
		Detections: []counting.Detection{{
			Box:        counting.BBox{X: 100, Y: 100 + float64(frame-1)*20, W: 20, H: 20},
			Class:      counting.ClassCar,
			Confidence: 0.9,
			FrameIndex: frame,
			Timestamp:  runnerFrameTime(frame),
		}},
	}
}

func TestRunnerEndToEnd(t *testing.T) {
	sink := &memorySink{}
	engine := counting.NewEngine(counting.DefaultEngineConfig())
	r := NewRunner(DefaultConfig(), engine, sink)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx, "sess-1", crossingBoundary()))

	for frame := int64(1); frame <= 5; frame++ {
		require.NoError(t, r.Submit(ctx, crossingFrame(frame)))
	}
	cancel()
	require.NoError(t, r.Wait())

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "main-line", events[0].BoundaryID)
	assert.Equal(t, counting.DirectionReverse, events[0].Direction)

	snap := r.Snapshot()
	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, int64(5), snap.ProcessedFrames)
	assert.Equal(t, int64(0), snap.DroppedFrames)
	assert.Equal(t, 1, snap.TotalEvents)
	assert.Equal(t, 1, snap.Totals["main-line"][counting.DirectionReverse])

	// The runner rejects frames after shutdown.
	assert.Error(t, r.Submit(context.Background(), crossingFrame(6)))
}

func TestRunnerDropOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueCapacity = 2
	cfg.Policy = PolicyDropOldest

	// No Start: the queue fills and evictions are observable.
	r := NewRunner(cfg, counting.NewEngine(counting.DefaultEngineConfig()), nil)

	ctx := context.Background()
	for frame := int64(1); frame <= 4; frame++ {
		require.NoError(t, r.Submit(ctx, crossingFrame(frame)))
	}

	assert.Equal(t, int64(2), r.Snapshot().DroppedFrames)
	// The two newest frames are the ones still queued.
	assert.Equal(t, int64(3), (<-r.frames).Index)
	assert.Equal(t, int64(4), (<-r.frames).Index)
}

func TestRunnerBlockPolicyHonorsContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueCapacity = 1

	r := NewRunner(cfg, counting.NewEngine(counting.DefaultEngineConfig()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Submit(ctx, crossingFrame(1)))

	cancel()
	err := r.Submit(ctx, crossingFrame(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunnerSkipsRegressedFrames(t *testing.T) {
	sink := &memorySink{}
	engine := counting.NewEngine(counting.DefaultEngineConfig())
	r := NewRunner(DefaultConfig(), engine, sink)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx, "sess-2", crossingBoundary()))

	require.NoError(t, r.Submit(ctx, crossingFrame(5)))
	// Out-of-order frame: rejected by the engine, logged, loop keeps going.
	require.NoError(t, r.Submit(ctx, crossingFrame(3)))
	require.NoError(t, r.Submit(ctx, crossingFrame(6)))
	cancel()
	require.NoError(t, r.Wait())

	assert.Equal(t, int64(2), r.Snapshot().ProcessedFrames)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    OverflowPolicy
		wantErr bool
	}{
		{"", PolicyBlock, false},
		{"block", PolicyBlock, false},
		{"drop_oldest", PolicyDropOldest, false},
		{"random", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReplayJSONL(t *testing.T) {
	sink := &memorySink{}
	engine := counting.NewEngine(counting.DefaultEngineConfig())
	r := NewRunner(DefaultConfig(), engine, sink)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx, "sess-3", crossingBoundary()))

	var lines []string
	for frame := int64(1); frame <= 5; frame++ {
		y := 100 + float64(frame-1)*20
		lines = append(lines, fmt.Sprintf(
			`{"frame_index": %d, "timestamp": %q, "detections": [{"box": {"x": 100, "y": %g, "w": 20, "h": 20}, "class": "car", "confidence": 0.9}]}`,
			frame, runnerFrameTime(frame).Format(time.RFC3339Nano), y,
		))
	}
	// A malformed line is skipped, not fatal.
	lines = append(lines[:2], append([]string{"{not json"}, lines[2:]...)...)

	submitted, err := Replay(ctx, r, strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	assert.Equal(t, int64(5), submitted)

	cancel()
	require.NoError(t, r.Wait())

	require.Len(t, sink.all(), 1)
	assert.Equal(t, int64(5), r.Snapshot().ProcessedFrames)
}
