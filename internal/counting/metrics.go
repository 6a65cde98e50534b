package counting

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SessionMetrics aggregates a session's count events: totals per class and
// percentiles of the crossing speed (pixels per second at the moment of the
// counted crossing).
type SessionMetrics struct {
	TotalEvents int                  `json:"total_events"`
	ByClass     map[VehicleClass]int `json:"by_class"`
	SpeedP50    float64              `json:"speed_p50_px_s"`
	SpeedP85    float64              `json:"speed_p85_px_s"`
	SpeedP95    float64              `json:"speed_p95_px_s"`
}

// sessionAccumulator collects event statistics incrementally.
type sessionAccumulator struct {
	total   int
	byClass map[VehicleClass]int
	speeds  []float64
}

func newSessionAccumulator() *sessionAccumulator {
	return &sessionAccumulator{byClass: make(map[VehicleClass]int)}
}

func (a *sessionAccumulator) record(ev CountEvent) {
	a.total++
	a.byClass[ev.Class]++
	if ev.SpeedPxPerS > 0 {
		a.speeds = append(a.speeds, ev.SpeedPxPerS)
	}
}

func (a *sessionAccumulator) summarise() SessionMetrics {
	m := SessionMetrics{
		TotalEvents: a.total,
		ByClass:     make(map[VehicleClass]int, len(a.byClass)),
	}
	for c, n := range a.byClass {
		m.ByClass[c] = n
	}
	if len(a.speeds) > 0 {
		sorted := make([]float64, len(a.speeds))
		copy(sorted, a.speeds)
		sort.Float64s(sorted)
		m.SpeedP50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
		m.SpeedP85 = stat.Quantile(0.85, stat.Empirical, sorted, nil)
		m.SpeedP95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	return m
}
