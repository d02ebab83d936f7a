package logic

import "time"

// EdgeState is the state of the button edge detector.
type EdgeState string

const (
	// EdgeIdle: button released, waiting for an active sample.
	EdgeIdle EdgeState = "IDLE"
	// EdgeActive: press reported; waiting for release.
	EdgeActive EdgeState = "ACTIVE"
)

// Sample is one reading of the button input in logical form.
type Sample struct {
	Active bool // true = pressed (raw line low)
	Time   time.Time
}

// EdgeDetector turns periodic raw samples into debounced button edges.
//
// The first active sample reports Pressed. Samples inside the debounce
// window that follows are ignored, so contact bounce after the press is
// absorbed; release polling only starts once the window has elapsed.
// Exactly one Pressed is followed by exactly one Released.
type EdgeDetector struct {
	window time.Duration
	state  EdgeState
	since  time.Time
}

// NewEdgeDetector creates a detector with the given debounce window.
func NewEdgeDetector(window time.Duration) *EdgeDetector {
	return &EdgeDetector{window: window, state: EdgeIdle}
}

// Process takes a new sample and returns the edges it produced (zero or one).
func (d *EdgeDetector) Process(s Sample) []ButtonEdge {
	switch d.state {
	case EdgeIdle:
		if !s.Active {
			return nil
		}
		d.state = EdgeActive
		d.since = s.Time
		return []ButtonEdge{EdgePressed}

	case EdgeActive:
		if s.Active || s.Time.Sub(d.since) < d.window {
			return nil
		}
		d.state = EdgeIdle
		return []ButtonEdge{EdgeReleased}
	}
	return nil
}

// State returns the current detector state.
func (d *EdgeDetector) State() EdgeState {
	return d.state
}

// Level returns the debounced button level: HeldLow while a press lasts,
// Released otherwise.
func (d *EdgeDetector) Level() ButtonEdge {
	if d.state == EdgeActive {
		return EdgeHeldLow
	}
	return EdgeReleased
}

// Reset returns the detector to Idle, e.g. when a session ends.
func (d *EdgeDetector) Reset() {
	d.state = EdgeIdle
	d.since = time.Time{}
}
