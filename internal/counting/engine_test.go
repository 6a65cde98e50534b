package counting

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/roadmetrics/countline/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var engineTestBase = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func engineFrameTime(frame int64) time.Time {
	return engineTestBase.Add(time.Duration(frame) * 100 * time.Millisecond)
}

func testEngineConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.Tracker.HitsToConfirm = 3
	cfg.Tracker.MaxMisses = 4
	return cfg
}

func crossingLine(id string) Boundary {
	return Boundary{
		ID:   id,
		Kind: BoundaryLine,
		Points: []geom.Point{
			{X: 0, Y: 150},
			{X: 300, Y: 150},
		},
		Mode: ModeBidirectional,
	}
}

func TestEngineEndToEndCrossing(t *testing.T) {
	t.Parallel()

	eng := NewEngine(testEngineConfig())
	require.NoError(t, eng.StartSession([]Boundary{crossingLine("main-line")}))

	// One vehicle descends through y=150 over five frames. The track
	// confirms on frame 3, which is also the frame its centroid reaches
	// the line, so exactly one event comes out of the whole pass.
	var all []CountEvent
	for frame := int64(1); frame <= 5; frame++ {
		det := Detection{
			Box:        BBox{X: 100, Y: 100 + float64(frame-1)*20, W: 20, H: 20},
			Class:      ClassCar,
			Confidence: 0.9,
			FrameIndex: frame,
			Timestamp:  engineFrameTime(frame),
		}
		events, err := eng.ProcessFrame(frame, engineFrameTime(frame), []Detection{det})
		require.NoError(t, err)
		all = append(all, events...)
	}

	require.Len(t, all, 1)
	e := all[0]
	assert.Equal(t, "main-line", e.BoundaryID)
	assert.Equal(t, int64(1), e.TrackID)
	assert.Equal(t, ClassCar, e.Class)
	assert.Equal(t, DirectionReverse, e.Direction)
	assert.Equal(t, int64(3), e.FrameIndex)
	assert.InDelta(t, 150, e.Position.Y, 1e-9)

	wantTotals := map[string]map[CrossDirection]int{
		"main-line": {DirectionReverse: 1},
	}
	if diff := cmp.Diff(wantTotals, eng.Totals()); diff != "" {
		t.Errorf("totals mismatch (-want +got):\n%s", diff)
	}

	m := eng.Metrics()
	assert.Equal(t, 1, m.TotalEvents)
	assert.Equal(t, 1, m.ByClass[ClassCar])
	assert.Greater(t, m.SpeedP50, 0.0)
}

func TestEngineDropsMalformedDetections(t *testing.T) {
	t.Parallel()

	eng := NewEngine(testEngineConfig())
	require.NoError(t, eng.StartSession([]Boundary{crossingLine("main-line")}))

	dets := []Detection{
		{Box: BBox{X: 10, Y: 10, W: 20, H: 20}, Class: ClassCar, Confidence: 0.9, FrameIndex: 1, Timestamp: engineFrameTime(1)},
		{Box: BBox{X: 10, Y: 10, W: -5, H: 20}, Class: ClassCar, Confidence: 0.9, FrameIndex: 1, Timestamp: engineFrameTime(1)},
		{Box: BBox{X: 10, Y: 10, W: 20, H: 20}, Class: ClassCar, Confidence: 1.5, FrameIndex: 1, Timestamp: engineFrameTime(1)},
	}
	_, err := eng.ProcessFrame(1, engineFrameTime(1), dets)
	require.NoError(t, err)

	assert.Equal(t, int64(2), eng.DroppedDetections())
	total, _, _, _ := eng.Tracker().TrackCount()
	assert.Equal(t, 1, total, "only the valid detection should spawn a track")
}

func TestEngineRejectsInvalidBoundaries(t *testing.T) {
	t.Parallel()

	eng := NewEngine(testEngineConfig())
	bad := Boundary{ID: "degenerate", Kind: BoundaryLine, Points: []geom.Point{{X: 1, Y: 1}, {X: 1, Y: 1}}}
	err := eng.StartSession([]Boundary{bad, crossingLine("main-line")})
	require.NoError(t, err, "a bad boundary must not abort the session")

	assert.Equal(t, 1, eng.RejectedBoundaries())
	require.Len(t, eng.evaluator.Boundaries(), 1)
	assert.Equal(t, "main-line", eng.evaluator.Boundaries()[0].ID)
}

func TestEngineNoiseRejection(t *testing.T) {
	t.Parallel()

	eng := NewEngine(testEngineConfig())
	require.NoError(t, eng.StartSession([]Boundary{crossingLine("main-line")}))

	// A spurious detection appears for one frame straddling the line, then
	// vanishes. The track never confirms, so nothing is counted.
	det := Detection{Box: BBox{X: 100, Y: 140, W: 20, H: 20}, Class: ClassCar, Confidence: 0.9, FrameIndex: 1, Timestamp: engineFrameTime(1)}
	events, err := eng.ProcessFrame(1, engineFrameTime(1), []Detection{det})
	require.NoError(t, err)
	assert.Empty(t, events)

	for frame := int64(2); frame <= 8; frame++ {
		events, err = eng.ProcessFrame(frame, engineFrameTime(frame), nil)
		require.NoError(t, err)
		assert.Empty(t, events)
	}
	assert.Equal(t, map[string]map[CrossDirection]int{}, eng.Totals())
}

func TestEngineSessionLifecycle(t *testing.T) {
	t.Parallel()

	eng := NewEngine(testEngineConfig())

	_, err := eng.ProcessFrame(1, engineFrameTime(1), nil)
	var se *StateError
	require.ErrorAs(t, err, &se)

	require.NoError(t, eng.StartSession([]Boundary{crossingLine("main-line")}))
	require.ErrorAs(t, eng.StartSession(nil), &se, "double start must fail")

	// A vehicle sits just short of the line when the session ends; teardown
	// must not synthesize a crossing for it.
	for frame := int64(1); frame <= 3; frame++ {
		det := Detection{
			Box:        BBox{X: 100, Y: 100 + float64(frame-1)*10, W: 20, H: 20},
			Class:      ClassCar,
			Confidence: 0.9,
			FrameIndex: frame,
			Timestamp:  engineFrameTime(frame),
		}
		_, err := eng.ProcessFrame(frame, engineFrameTime(frame), []Detection{det})
		require.NoError(t, err)
	}
	require.NoError(t, eng.EndSession())
	assert.Equal(t, map[string]map[CrossDirection]int{}, eng.Totals())
	require.ErrorAs(t, eng.EndSession(), &se)

	// The engine is reusable after teardown.
	require.NoError(t, eng.StartSession([]Boundary{crossingLine("main-line")}))
}

func TestEngineFrameRegressionRecoverable(t *testing.T) {
	t.Parallel()

	eng := NewEngine(testEngineConfig())
	require.NoError(t, eng.StartSession([]Boundary{crossingLine("main-line")}))

	_, err := eng.ProcessFrame(5, engineFrameTime(5), nil)
	require.NoError(t, err)

	_, err = eng.ProcessFrame(4, engineFrameTime(4), nil)
	var ie *InputError
	require.ErrorAs(t, err, &ie)

	// An input error does not poison the session.
	_, err = eng.ProcessFrame(6, engineFrameTime(6), nil)
	assert.NoError(t, err)
}
