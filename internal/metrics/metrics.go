// Package metrics defines the Prometheus collectors exported by both nodes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

const namespace = "gate"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Link tracks the WiFi link; shared by both nodes.
type Link struct {
	Associated      prometheus.Gauge
	RSSI            prometheus.Gauge
	BaselineRSSI    prometheus.Gauge
	ConnectFailures *prometheus.CounterVec
	Reconnects      prometheus.Counter
}

func newLink(f promauto.Factory) *Link {
	return &Link{
		Associated: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "wifi", Name: "associated",
			Help: "1 when the station is associated with the access point.",
		}),
		RSSI: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "wifi", Name: "rssi_dbm",
			Help: "Last observed signal strength.",
		}),
		BaselineRSSI: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "wifi", Name: "baseline_rssi_dbm",
			Help: "Signal strength captured when the current session was established.",
		}),
		ConnectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "wifi", Name: "connect_failures_total",
			Help: "Failed connect attempts by stage.",
		}, []string{"op"}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "wifi", Name: "sessions_total",
			Help: "Sessions established since start.",
		}),
	}
}

// ObserveLink updates the link gauges.
func (l *Link) ObserveLink(s logic.LinkState) {
	if rssi, ok := s.SignalStrength(); ok {
		l.Associated.Set(1)
		l.RSSI.Set(float64(rssi))
		return
	}
	l.Associated.Set(0)
}

// Actuator holds the Actuator Node collectors.
type Actuator struct {
	*Link
	Position      prometheus.Gauge
	Pulses        *prometheus.CounterVec
	PulseDuration prometheus.Histogram
	Requests      *prometheus.CounterVec
}

// NewActuator registers the actuator collectors on reg.
func NewActuator(reg prometheus.Registerer) *Actuator {
	f := promauto.With(reg)
	return &Actuator{
		Link: newLink(f),
		Position: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "position",
			Help: "Last read gate position (0 open, 1 closed, 2 intermediate).",
		}),
		Pulses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pulses_total",
			Help: "Relay pulses by target and result.",
		}, []string{"target", "result"}),
		PulseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pulse_duration_seconds",
			Help:    "Time from pulse request to relay release, including queueing.",
			Buckets: []float64{.2, .25, .4, .6, 1, 2},
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Command server requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

// ObservePulse records one completed pulse.
func (a *Actuator) ObservePulse(target logic.Target, elapsed time.Duration, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	a.Pulses.WithLabelValues(string(target), result).Inc()
	a.PulseDuration.Observe(elapsed.Seconds())
}

// Trigger holds the Trigger Node collectors.
type Trigger struct {
	*Link
	Presses    prometheus.Counter
	Dispatches *prometheus.CounterVec
	WeakOpens  prometheus.Counter
}

// NewTrigger registers the trigger collectors on reg.
func NewTrigger(reg prometheus.Registerer) *Trigger {
	f := promauto.With(reg)
	return &Trigger{
		Link: newLink(f),
		Presses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "button_presses_total",
			Help: "Debounced button presses.",
		}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatches_total",
			Help: "Commands sent to the actuator by command and result.",
		}, []string{"command", "result"}),
		WeakOpens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "weak_signal_opens_total",
			Help: "Automatic open commands sent because the session started below the RSSI threshold.",
		}),
	}
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
