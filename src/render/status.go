package render

// Status is what the device reports back from acquire and present.
type Status uint8

const (
	// StatusReady means the image set matches the surface.
	StatusReady Status = iota
	// StatusSurfaceStale means the image set is usable for this frame but must
	// be recreated before the next acquire.
	StatusSurfaceStale
	// StatusSurfaceUnusable means the current operation must be abandoned and
	// the image set recreated before any further work.
	StatusSurfaceUnusable
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusSurfaceStale:
		return "stale"
	case StatusSurfaceUnusable:
		return "unusable"
	}
	return "unknown"
}

// Outcome is the single tagged result the loop acts on. Device staleness, the
// surface resize flag and minimized surfaces all fold into it.
type Outcome uint8

const (
	OutcomeReady Outcome = iota
	OutcomeNeedsRecreate
	OutcomeUnusable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeNeedsRecreate:
		return "needs-recreate"
	case OutcomeUnusable:
		return "unusable"
	}
	return "unknown"
}

// Outcome maps a device status onto the loop's outcome.
func (s Status) Outcome() Outcome {
	switch s {
	case StatusSurfaceStale:
		return OutcomeNeedsRecreate
	case StatusSurfaceUnusable:
		return OutcomeUnusable
	}
	return OutcomeReady
}

// Merge returns the more severe of o and other.
func (o Outcome) Merge(other Outcome) Outcome {
	if other > o {
		return other
	}
	return o
}

// Recreate reports whether the outcome requires a new image set.
func (o Outcome) Recreate() bool {
	return o != OutcomeReady
}
