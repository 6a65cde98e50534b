package counting

import (
	"github.com/roadmetrics/countline/internal/geom"
)

// BoundaryKind distinguishes the two boundary geometries.
type BoundaryKind string

const (
	BoundaryLine    BoundaryKind = "line"
	BoundaryPolygon BoundaryKind = "polygon"
)

// DirectionMode restricts which crossing directions a boundary counts.
type DirectionMode string

const (
	// ModeBidirectional counts crossings in both directions.
	ModeBidirectional DirectionMode = "bidirectional"
	// ModeForwardOnly counts only left-to-right line crossings or polygon
	// entries.
	ModeForwardOnly DirectionMode = "forward_only"
	// ModeReverseOnly counts only right-to-left line crossings or polygon
	// exits.
	ModeReverseOnly DirectionMode = "reverse_only"
)

// CrossDirection labels the direction of a counted crossing. Lines use
// forward/reverse relative to the line's point order; polygons use in/out.
type CrossDirection string

const (
	DirectionForward CrossDirection = "forward"
	DirectionReverse CrossDirection = "reverse"
	DirectionIn      CrossDirection = "in"
	DirectionOut     CrossDirection = "out"
)

// Boundary is a counting line or polygon ROI. Boundaries are loaded at
// session start and are read-only for the rest of the session.
type Boundary struct {
	ID     string        `json:"id"`
	Name   string        `json:"name,omitempty"`
	Kind   BoundaryKind  `json:"kind"`
	Points []geom.Point  `json:"points"`
	Mode   DirectionMode `json:"mode"`
}

// Validate checks the geometric invariants: a line has exactly two distinct
// points, a polygon at least three. Mode defaults to bidirectional when
// empty. Returns a ConfigError describing the first problem found.
func (b *Boundary) Validate() error {
	if b.ID == "" {
		return &ConfigError{BoundaryID: "(unset)", Reason: "missing identifier"}
	}
	switch b.Kind {
	case BoundaryLine:
		if len(b.Points) != 2 {
			return &ConfigError{BoundaryID: b.ID, Reason: "line requires exactly 2 points"}
		}
		if b.Points[0] == b.Points[1] {
			return &ConfigError{BoundaryID: b.ID, Reason: "degenerate line: identical endpoints"}
		}
	case BoundaryPolygon:
		if len(b.Points) < 3 {
			return &ConfigError{BoundaryID: b.ID, Reason: "polygon requires at least 3 points"}
		}
	default:
		return &ConfigError{BoundaryID: b.ID, Reason: "unknown boundary kind"}
	}
	switch b.Mode {
	case ModeBidirectional, ModeForwardOnly, ModeReverseOnly:
	case "":
		b.Mode = ModeBidirectional
	default:
		return &ConfigError{BoundaryID: b.ID, Reason: "unknown direction mode"}
	}
	return nil
}

// allows reports whether the boundary's direction mode counts dir.
func (b *Boundary) allows(dir CrossDirection) bool {
	switch b.Mode {
	case ModeForwardOnly:
		return dir == DirectionForward || dir == DirectionIn
	case ModeReverseOnly:
		return dir == DirectionReverse || dir == DirectionOut
	default:
		return true
	}
}
