package counting

import (
	"fmt"
	"sort"
	"time"

	"github.com/roadmetrics/countline/internal/monitoring"
)

// TrackerConfig holds the data-association and lifecycle parameters.
type TrackerConfig struct {
	// HitsToConfirm is the number of consecutive associations a tentative
	// track needs before it is confirmed.
	HitsToConfirm int
	// MaxMisses is the loss window: a track unmatched for more than this
	// many consecutive frames is deleted.
	MaxMisses int
	// HistorySize bounds the centroid history ring per track.
	HistorySize int
	// LabelWindow bounds the recent-label window for the class majority vote.
	LabelWindow int
	// IoUCostCeiling is the maximum association cost (1 − IoU) accepted;
	// pairings above it are disallowed regardless of matrix optimality.
	IoUCostCeiling float64
	// CreationConfidence is the minimum detection confidence required to
	// spawn a new track from an unmatched detection.
	CreationConfidence float64
	// MaxTracks caps the number of simultaneously live tracks.
	MaxTracks int
}

// DefaultTrackerConfig returns the default tracker parameters.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		HitsToConfirm:      3,
		MaxMisses:          10,
		HistorySize:        16,
		LabelWindow:        8,
		IoUCostCeiling:     0.7,
		CreationConfidence: 0.3,
		MaxTracks:          256,
	}
}

// Tracker owns the set of live tracks and drives their lifecycle from
// per-frame detection lists. It is not safe for concurrent use; a session
// processes frames on a single goroutine.
type Tracker struct {
	tracks    map[int64]*Track
	nextID    int64
	cfg       TrackerConfig
	lastFrame int64
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{
		tracks:    make(map[int64]*Track),
		nextID:    1,
		cfg:       cfg,
		lastFrame: -1,
	}
}

// Update runs one association round: match detections to live tracks, fold
// matches in, apply lifecycle transitions to the unmatched, and spawn new
// tentative tracks. Detections must already be validated. Frames must arrive
// in non-decreasing frame order; a regression is an InputError.
func (tk *Tracker) Update(frameIndex int64, ts time.Time, detections []Detection) error {
	if frameIndex < tk.lastFrame {
		return &InputError{Reason: fmt.Sprintf("frame index regression: %d after %d", frameIndex, tk.lastFrame)}
	}
	tk.lastFrame = frameIndex

	live := tk.liveTracks()

	matchedTracks := make(map[int64]bool, len(live))
	matchedDets := make([]bool, len(detections))

	if len(live) > 0 && len(detections) > 0 {
		assignment := hungarianAssign(tk.costMatrix(frameIndex, live, detections))
		for di, ti := range assignment {
			if ti < 0 {
				continue
			}
			track := live[ti]
			tk.applyMatch(track, detections[di])
			matchedTracks[track.ID] = true
			matchedDets[di] = true
		}
	}

	// Unmatched tracks miss this frame.
	for _, track := range live {
		if matchedTracks[track.ID] {
			continue
		}
		track.Misses++
		track.Hits = 0
		if track.Misses > tk.cfg.MaxMisses {
			track.State = TrackDeleted
			continue
		}
		// Position frozen while lost; only the state changes.
		track.State = TrackLost
	}

	// Unmatched detections above the creation threshold spawn new tracks.
	for di, det := range detections {
		if matchedDets[di] || det.Confidence < tk.cfg.CreationConfidence {
			continue
		}
		if len(tk.tracks) >= tk.cfg.MaxTracks {
			monitoring.Logf("tracker: at capacity (%d tracks), detection at frame %d not tracked", tk.cfg.MaxTracks, frameIndex)
			continue
		}
		if err := tk.spawn(det); err != nil {
			return err
		}
	}

	return nil
}

// costMatrix builds the detection×track association cost matrix:
// 1 − IoU(detection box, track box predicted to this frame), with the
// ceiling enforced as a forbidden cost. Confidence and centroid displacement
// contribute vanishing tie-break terms so equal-cost pairings resolve
// deterministically toward the higher-confidence, nearer detection.
func (tk *Tracker) costMatrix(frameIndex int64, live []*Track, detections []Detection) [][]float64 {
	cost := make([][]float64, len(detections))
	for di, det := range detections {
		row := make([]float64, len(live))
		dc := det.Box.Centroid()
		for ti, track := range live {
			predicted := track.predictedBox(frameIndex)
			c := 1 - IoU(predicted, det.Box)
			if c > tk.cfg.IoUCostCeiling {
				row[ti] = forbiddenCost
				continue
			}
			pc := predicted.Centroid()
			dx, dy := dc.X-pc.X, dc.Y-pc.Y
			c -= det.Confidence * 1e-6
			c += (dx*dx + dy*dy) * 1e-12
			row[ti] = c
		}
		cost[di] = row
	}
	return cost
}

// applyMatch folds a matched detection into a track and runs the
// confirmation transition.
func (tk *Tracker) applyMatch(track *Track, det Detection) {
	track.observe(det)
	track.Hits++
	track.Misses = 0

	switch track.State {
	case TrackTentative:
		if track.Hits >= tk.cfg.HitsToConfirm {
			track.State = TrackConfirmed
		}
	case TrackLost:
		// Re-association within the loss window restores the track with its
		// identifier and crossing ledger intact.
		track.State = TrackConfirmed
	}
}

// spawn creates a tentative track with a freshly allocated identifier.
// Identifiers are monotonic and never reused.
func (tk *Tracker) spawn(det Detection) error {
	id := tk.nextID
	tk.nextID++
	if _, exists := tk.tracks[id]; exists {
		return &StateError{Reason: fmt.Sprintf("duplicate track id %d", id)}
	}
	tk.tracks[id] = newTrack(id, det, tk.cfg.HistorySize, tk.cfg.LabelWindow)
	return nil
}

// liveTracks returns non-deleted tracks in ascending ID order. The stable
// order keeps the cost matrix, and therefore tie-breaking, deterministic.
func (tk *Tracker) liveTracks() []*Track {
	out := make([]*Track, 0, len(tk.tracks))
	for _, t := range tk.tracks {
		if t.State != TrackDeleted {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PruneDeleted removes deleted tracks and returns how many were removed.
func (tk *Tracker) PruneDeleted() int {
	removed := 0
	for id, t := range tk.tracks {
		if t.State == TrackDeleted {
			delete(tk.tracks, id)
			removed++
		}
	}
	return removed
}

// EligibleTracks returns confirmed and lost tracks in ascending ID order.
// Tentative tracks are excluded so detector flicker never counts.
func (tk *Tracker) EligibleTracks() []*Track {
	out := make([]*Track, 0, len(tk.tracks))
	for _, t := range tk.tracks {
		if t.eligible() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveTracks returns all non-deleted tracks in ascending ID order.
func (tk *Tracker) ActiveTracks() []*Track {
	return tk.liveTracks()
}

// Track returns a track by ID, or nil.
func (tk *Tracker) Track(id int64) *Track {
	return tk.tracks[id]
}

// TrackCount returns per-state counts of live tracks.
func (tk *Tracker) TrackCount() (total, tentative, confirmed, lost int) {
	for _, t := range tk.tracks {
		switch t.State {
		case TrackTentative:
			tentative++
		case TrackConfirmed:
			confirmed++
		case TrackLost:
			lost++
		case TrackDeleted:
			continue
		}
		total++
	}
	return
}

// Reset deletes all tracks. Identifier allocation is not rewound, so IDs
// remain unique across resets within one tracker instance.
func (tk *Tracker) Reset() {
	for _, t := range tk.tracks {
		t.State = TrackDeleted
	}
	tk.tracks = make(map[int64]*Track)
}
