package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

func TestObservePulse(t *testing.T) {
	a := NewActuator(prometheus.NewRegistry())
	a.ObservePulse(logic.TargetStep, 200*time.Millisecond, nil)
	a.ObservePulse(logic.TargetStep, 200*time.Millisecond, errors.New("fault"))
	a.ObservePulse(logic.TargetFullCycle, 200*time.Millisecond, nil)

	if got := testutil.ToFloat64(a.Pulses.WithLabelValues("STEP", ResultOK)); got != 1 {
		t.Errorf("expected 1 ok step pulse, got %v", got)
	}
	if got := testutil.ToFloat64(a.Pulses.WithLabelValues("STEP", ResultError)); got != 1 {
		t.Errorf("expected 1 failed step pulse, got %v", got)
	}
	if got := testutil.CollectAndCount(a.PulseDuration); got != 1 {
		t.Errorf("expected 1 histogram, got %d", got)
	}
}

func TestObserveLink(t *testing.T) {
	tr := NewTrigger(prometheus.NewRegistry())
	tr.ObserveLink(logic.Associated(-64))
	if testutil.ToFloat64(tr.Associated) != 1 || testutil.ToFloat64(tr.RSSI) != -64 {
		t.Error("expected associated gauge with RSSI -64")
	}
	tr.ObserveLink(logic.Disconnected)
	if testutil.ToFloat64(tr.Associated) != 0 {
		t.Error("expected associated gauge cleared")
	}
	if testutil.ToFloat64(tr.RSSI) != -64 {
		t.Error("expected last RSSI kept")
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	reg := NewRegistry()
	tr := NewTrigger(reg)
	tr.Presses.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"gate_button_presses_total 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}
