// Package linkwatch reflects WiFi manager activity in the node's tracker,
// indicator, metrics and telemetry. Both daemons share it.
package linkwatch

import (
	"errors"
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/indicator"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
	"github.com/vpetryaev/GateRTO-1000/internal/metrics"
	"github.com/vpetryaev/GateRTO-1000/internal/mqtt"
	"github.com/vpetryaev/GateRTO-1000/internal/status"
	"github.com/vpetryaev/GateRTO-1000/internal/wifi"
)

// Observer receives wifi.Manager hooks.
type Observer struct {
	tracker   *status.Tracker
	indicator *indicator.Indicator
	metrics   *metrics.Link
	pub       mqtt.Publisher
	now       func() time.Time

	weakSignal bool
	minRSSI    int8
}

// Option configures an Observer.
type Option func(*Observer)

// WithWeakSignal raises the indicator's weak-signal flag together with an
// association whose RSSI is below min, so the LED goes from amber straight
// to red. The trigger loop clears the flag once its hold ends.
func WithWeakSignal(min int8) Option {
	return func(o *Observer) {
		o.weakSignal = true
		o.minRSSI = min
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Observer) { o.now = now }
}

func New(tracker *status.Tracker, ind *indicator.Indicator, m *metrics.Link, pub mqtt.Publisher, opts ...Option) *Observer {
	o := &Observer{tracker: tracker, indicator: ind, metrics: m, pub: pub, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Hooks returns the manager options that feed this observer.
func (o *Observer) Hooks() []wifi.Option {
	return []wifi.Option{
		wifi.WithStateHook(o.StateChanged),
		wifi.WithAttemptHook(o.AttemptFailed),
	}
}

// StateChanged publishes LINK_UP/LINK_DOWN on association edges only.
func (o *Observer) StateChanged(s logic.LinkState) {
	was := o.tracker.Snapshot().Link
	o.tracker.SetLink(s)
	if o.weakSignal && s.IsAssociated() && !was.IsAssociated() && s.RSSI < o.minRSSI {
		o.indicator.Associate(true)
	} else {
		o.indicator.SetLink(s.Phase)
	}
	o.metrics.ObserveLink(s)

	var typ logic.EventType
	switch {
	case s.IsAssociated() && !was.IsAssociated():
		typ = logic.EventLinkUp
	case !s.IsAssociated() && was.IsAssociated():
		typ = logic.EventLinkDown
	default:
		return
	}
	_ = o.pub.Publish(logic.Event{Timestamp: o.now(), Type: typ, Link: &s})
}

// AttemptFailed counts a failed connect attempt by the step that failed.
func (o *Observer) AttemptFailed(err error) {
	op := "unknown"
	var le *wifi.LinkError
	if errors.As(err, &le) {
		op = le.Op
	}
	o.metrics.ConnectFailures.WithLabelValues(op).Inc()
}

// NetworkInfo is the status view of a session.
func NetworkInfo(s *wifi.Session) *status.NetworkInfo {
	return &status.NetworkInfo{
		SSID:         s.SSID,
		BSSID:        s.BSSID,
		Channel:      s.Channel,
		Address:      s.Address,
		BaselineRSSI: s.BaselineRSSI,
	}
}
