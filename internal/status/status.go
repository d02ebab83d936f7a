// Package status provides a thread-safe status tracker shared by a node's
// HTTP handlers, telemetry and heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

// NetworkInfo describes the current WiFi session. This is a local copy to
// avoid importing internal/wifi from status.
type NetworkInfo struct {
	SSID         string
	BSSID        string
	Channel      int
	Address      string
	BaselineRSSI int8
}

// Config contains node configuration for display.
type Config struct {
	Node       string
	PollMs     int64
	DebounceMs int64
	PulseMs    int64
	MinRSSI    int
	Broker     string
	HTTPAddr   string
}

// Snapshot is a point-in-time view of node state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Link          logic.LinkState
	Network       *NetworkInfo
	Position      *logic.GatePosition
	Color         logic.Color
	Button        logic.ButtonEdge
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the node started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable node state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Link:      logic.Disconnected,
			Color:     logic.ColorOff,
			Button:    logic.EdgeReleased,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetLink records the link state. Leaving the associated phase clears the
// network info.
func (t *Tracker) SetLink(s logic.LinkState) {
	t.mu.Lock()
	t.snap.Link = s
	if !s.IsAssociated() {
		t.snap.Network = nil
	}
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetPosition records the last read gate position and reports whether it
// differs from the previous reading.
func (t *Tracker) SetPosition(pos logic.GatePosition) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := t.snap.Position == nil || *t.snap.Position != pos
	t.snap.Position = &pos
	return changed
}

// SetColor records the indicator color.
func (t *Tracker) SetColor(c logic.Color) {
	t.mu.Lock()
	t.snap.Color = c
	t.mu.Unlock()
}

// SetButton records the debounced button level.
func (t *Tracker) SetButton(e logic.ButtonEdge) {
	t.mu.Lock()
	t.snap.Button = e
	t.mu.Unlock()
}

// Count applies fn to the event counters.
func (t *Tracker) Count(fn func(*logic.EventCounts)) {
	t.mu.Lock()
	fn(&t.snap.Counts)
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the node state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Position != nil {
		p := *s.Position
		s.Position = &p
	}
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
