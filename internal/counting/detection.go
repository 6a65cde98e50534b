package counting

import (
	"math"
	"time"

	"github.com/roadmetrics/countline/internal/geom"
)

// VehicleClass is the closed vocabulary of object classes the counter
// understands. Upstream detectors emitting anything else map to ClassUnknown.
type VehicleClass string

const (
	ClassCar        VehicleClass = "car"
	ClassTruck      VehicleClass = "truck"
	ClassBus        VehicleClass = "bus"
	ClassMotorcycle VehicleClass = "motorcycle"
	ClassBicycle    VehicleClass = "bicycle"
	ClassUnknown    VehicleClass = "unknown"
)

// ParseVehicleClass maps a detector label onto the closed vocabulary.
func ParseVehicleClass(label string) VehicleClass {
	switch VehicleClass(label) {
	case ClassCar, ClassTruck, ClassBus, ClassMotorcycle, ClassBicycle:
		return VehicleClass(label)
	default:
		return ClassUnknown
	}
}

// BBox is an axis-aligned bounding box in pixel space (top-left origin).
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Centroid returns the box centre.
func (b BBox) Centroid() geom.Point {
	return geom.Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// Area returns the box area. Degenerate boxes have zero area.
func (b BBox) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// IoU returns the intersection-over-union overlap ratio of two boxes,
// in [0, 1]. Non-overlapping or degenerate boxes score 0.
func IoU(a, b BBox) float64 {
	left := math.Max(a.X, b.X)
	top := math.Max(a.Y, b.Y)
	right := math.Min(a.X+a.W, b.X+b.W)
	bottom := math.Min(a.Y+a.H, b.Y+b.H)

	if right <= left || bottom <= top {
		return 0
	}
	inter := (right - left) * (bottom - top)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is one upstream detector output for one object in one frame.
// Detections are immutable once produced.
type Detection struct {
	Box        BBox         `json:"box"`
	Class      VehicleClass `json:"class"`
	Confidence float64      `json:"confidence"`
	FrameIndex int64        `json:"frame_index"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Validate rejects detections the tracker must never ingest: non-finite
// coordinates, non-positive extents, or a confidence outside [0, 1].
func (d Detection) Validate() error {
	for _, v := range [...]float64{d.Box.X, d.Box.Y, d.Box.W, d.Box.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InputError{Reason: "non-finite box coordinate"}
		}
	}
	if d.Box.W <= 0 || d.Box.H <= 0 {
		return &InputError{Reason: "non-positive box extent"}
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return &InputError{Reason: "confidence outside [0,1]"}
	}
	return nil
}
