// Package logic contains the pure decision logic shared by both gate nodes.
// This package has NO external dependencies (no GPIO, network, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// GatePosition is the tri-state gate position derived from the two sensors.
// The numeric values are the wire format of /gate_status.
type GatePosition uint8

const (
	PositionOpen         GatePosition = 0
	PositionClosed       GatePosition = 1
	PositionIntermediate GatePosition = 2
)

func (p GatePosition) String() string {
	switch p {
	case PositionOpen:
		return "OPEN"
	case PositionClosed:
		return "CLOSED"
	case PositionIntermediate:
		return "INTERMEDIATE"
	default:
		return fmt.Sprintf("GatePosition(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the three defined positions.
func (p GatePosition) Valid() bool {
	return p <= PositionIntermediate
}

// Target names a relay output on the Actuator Node.
type Target string

const (
	// TargetFullCycle drives the "full open/close" relay.
	TargetFullCycle Target = "FULL_CYCLE"
	// TargetStep drives the step-by-step relay.
	TargetStep Target = "STEP"
)

// ButtonEdge is a debounced button event.
type ButtonEdge string

const (
	EdgePressed  ButtonEdge = "PRESSED"
	EdgeHeldLow  ButtonEdge = "HELD_LOW"
	EdgeReleased ButtonEdge = "RELEASED"
)

// LinkPhase is the coarse WiFi station state.
type LinkPhase string

const (
	LinkDisconnected LinkPhase = "DISCONNECTED"
	LinkScanning     LinkPhase = "SCANNING"
	LinkConnecting   LinkPhase = "CONNECTING"
	LinkAssociated   LinkPhase = "ASSOCIATED"
)

// LinkState is the WiFi state owned by the connectivity manager.
// RSSI is only meaningful when Phase is LinkAssociated; use Associated.
type LinkState struct {
	Phase LinkPhase
	RSSI  int8
}

// Disconnected is the initial and post-loss link state.
var Disconnected = LinkState{Phase: LinkDisconnected}

// Associated returns an associated link state with the given RSSI.
func Associated(rssi int8) LinkState {
	return LinkState{Phase: LinkAssociated, RSSI: rssi}
}

// IsAssociated reports whether the station holds an association.
func (s LinkState) IsAssociated() bool {
	return s.Phase == LinkAssociated
}

// SignalStrength returns the RSSI and true only in the associated phase.
func (s LinkState) SignalStrength() (int8, bool) {
	if s.Phase != LinkAssociated {
		return 0, false
	}
	return s.RSSI, true
}

func (s LinkState) String() string {
	if s.Phase == LinkAssociated {
		return fmt.Sprintf("%s(%ddBm)", s.Phase, s.RSSI)
	}
	return string(s.Phase)
}

// EventType identifies a telemetry event.
type EventType string

const (
	EventPosition     EventType = "POSITION"
	EventPulse        EventType = "PULSE"
	EventPulseFault   EventType = "PULSE_FAULT"
	EventLinkUp       EventType = "LINK_UP"
	EventLinkDown     EventType = "LINK_DOWN"
	EventButton       EventType = "BUTTON"
	EventDispatch     EventType = "DISPATCH"
	EventDispatchFail EventType = "DISPATCH_FAILED"
)

// Event is a state change worth publishing.
// Only the fields relevant to Type are set.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Position  *GatePosition
	Target    Target
	Edge      ButtonEdge
	Link      *LinkState
	Command   string
	Detail    string
}

// EventCounts tracks activity since startup.
type EventCounts struct {
	PulsesStep      int
	PulsesFullCycle int
	PulseFaults     int
	Presses         int
	Dispatches      int
	DispatchErrors  int
	Reconnects      int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}

// Heartbeat decides when a periodic heartbeat is due.
type Heartbeat struct {
	startTime time.Time
	last      time.Time
}

// NewHeartbeat starts the heartbeat clock at startTime.
func NewHeartbeat(startTime time.Time) *Heartbeat {
	return &Heartbeat{startTime: startTime, last: startTime}
}

// Check returns heartbeat data if interval has elapsed since the last
// heartbeat (or startup). Returns nil if the interval has not elapsed or if
// interval is <= 0 (disabled).
func (h *Heartbeat) Check(now time.Time, interval time.Duration, counts EventCounts) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(h.last) < interval {
		return nil
	}
	h.last = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
		Counts:    counts,
	}
}
