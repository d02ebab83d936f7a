// Package mqtt publishes gate telemetry to an MQTT broker, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventOffline     = "OFFLINE"
	EventReconnected = "RECONNECTED"
)

// Topics are the per-node topic names.
type Topics struct {
	Events string
	System string
}

// NewTopics returns <prefix>/<node>/events and <prefix>/<node>/system.
func NewTopics(prefix, node string) Topics {
	return Topics{
		Events: fmt.Sprintf("%s/%s/events", prefix, node),
		System: fmt.Sprintf("%s/%s/system", prefix, node),
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a gate event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Telemetry is a Publisher that also reports its connection state.
type Telemetry interface {
	Publisher
	ConnectionStatus
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Gate GatePayload `json:"gate"`
}

// GatePayload contains the gate event details. Only the fields relevant to
// the event type are present.
type GatePayload struct {
	Timestamp    string       `json:"timestamp"`
	Event        string       `json:"event"`
	Position     *uint8       `json:"position,omitempty"`
	PositionName string       `json:"position_name,omitempty"`
	Target       string       `json:"target,omitempty"`
	Edge         string       `json:"edge,omitempty"`
	Link         *LinkPayload `json:"link,omitempty"`
	Command      string       `json:"command,omitempty"`
	Detail       string       `json:"detail,omitempty"`
}

// LinkPayload is the WiFi link state.
type LinkPayload struct {
	Phase string `json:"phase"`
	RSSI  *int8  `json:"rssi,omitempty"`
}

// FormatPayload creates the JSON payload for a gate event.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := GatePayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		Target:    string(event.Target),
		Edge:      string(event.Edge),
		Command:   event.Command,
		Detail:    event.Detail,
	}
	if event.Position != nil {
		v := uint8(*event.Position)
		p.Position = &v
		p.PositionName = event.Position.String()
	}
	if event.Link != nil {
		p.Link = &LinkPayload{Phase: string(event.Link.Phase)}
		if rssi, ok := event.Link.SignalStrength(); ok {
			p.Link.RSSI = &rssi
		}
	}
	return json.Marshal(Payload{Gate: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the retained last-will message published by the broker
// when the node drops off without a clean shutdown.
func WillPayload() []byte {
	data, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: EventOffline, Reason: "connection_lost"}})
	return data
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(logic.Event) error       { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
