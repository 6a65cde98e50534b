package counting

import "fmt"

// The counting core distinguishes three failure classes. Boundary problems
// are fatal for that boundary only, detection problems are fatal for that
// detection only, and internal invariant violations poison the session.

// ConfigError reports an invalid boundary definition at load time.
type ConfigError struct {
	BoundaryID string
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("boundary %s rejected: %s", e.BoundaryID, e.Reason)
}

// InputError reports a malformed detection or an out-of-order frame. The
// offending input is dropped; frame processing continues.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// StateError reports an internal invariant violation (a programming defect,
// e.g. a duplicate track identifier). It is never recovered within a
// session; the caller must restart the session.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("internal state violation: %s", e.Reason)
}
