package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Node          string       `json:"node"`
	Link          LinkJSON     `json:"link"`
	Position      *uint8       `json:"position,omitempty"`
	PositionName  string       `json:"position_name,omitempty"`
	Indicator     string       `json:"indicator"`
	Button        string       `json:"button,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// LinkJSON reports the WiFi link phase.
type LinkJSON struct {
	Phase string `json:"phase"`
	RSSI  *int8  `json:"rssi,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	PulsesStep      int `json:"pulses_step"`
	PulsesFullCycle int `json:"pulses_full_cycle"`
	PulseFaults     int `json:"pulse_faults"`
	Presses         int `json:"presses"`
	Dispatches      int `json:"dispatches"`
	DispatchErrors  int `json:"dispatch_errors"`
	Reconnects      int `json:"reconnects"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	SSID         string `json:"ssid"`
	BSSID        string `json:"bssid,omitempty"`
	Channel      int    `json:"channel"`
	Address      string `json:"address"`
	BaselineRSSI int8   `json:"baseline_rssi"`
}

// ConfigJSON is the JSON representation of node config.
type ConfigJSON struct {
	PollMs     int64  `json:"poll_ms,omitempty"`
	DebounceMs int64  `json:"debounce_ms,omitempty"`
	PulseMs    int64  `json:"pulse_ms,omitempty"`
	MinRSSI    int    `json:"min_rssi,omitempty"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Node:          snap.Config.Node,
		Link:          LinkJSON{Phase: string(snap.Link.Phase)},
		Indicator:     string(snap.Color),
		Button:        string(snap.Button),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			PulsesStep:      snap.Counts.PulsesStep,
			PulsesFullCycle: snap.Counts.PulsesFullCycle,
			PulseFaults:     snap.Counts.PulseFaults,
			Presses:         snap.Counts.Presses,
			Dispatches:      snap.Counts.Dispatches,
			DispatchErrors:  snap.Counts.DispatchErrors,
			Reconnects:      snap.Counts.Reconnects,
		},
		Config: ConfigJSON{
			PollMs:     snap.Config.PollMs,
			DebounceMs: snap.Config.DebounceMs,
			PulseMs:    snap.Config.PulseMs,
			MinRSSI:    snap.Config.MinRSSI,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}
	if inner.Link.Phase == "" {
		inner.Link.Phase = "UNKNOWN"
	}
	if rssi, ok := snap.Link.SignalStrength(); ok {
		inner.Link.RSSI = &rssi
	}
	if snap.Position != nil {
		v := uint8(*snap.Position)
		inner.Position = &v
		inner.PositionName = snap.Position.String()
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			SSID:         snap.Network.SSID,
			BSSID:        snap.Network.BSSID,
			Channel:      snap.Network.Channel,
			Address:      snap.Network.Address,
			BaselineRSSI: snap.Network.BaselineRSSI,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
