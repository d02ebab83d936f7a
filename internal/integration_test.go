package internal

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vpetryaev/GateRTO-1000/internal/dispatch"
	"github.com/vpetryaev/GateRTO-1000/internal/gate"
	"github.com/vpetryaev/GateRTO-1000/internal/gpio"
	"github.com/vpetryaev/GateRTO-1000/internal/indicator"
	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
	"github.com/vpetryaev/GateRTO-1000/internal/metrics"
	"github.com/vpetryaev/GateRTO-1000/internal/status"
	"github.com/vpetryaev/GateRTO-1000/internal/trigger"
	"github.com/vpetryaev/GateRTO-1000/internal/web"
	"github.com/vpetryaev/GateRTO-1000/internal/wifi"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// oneSessionLink connects once and then blocks until cancelled.
type oneSessionLink struct {
	mu       sync.Mutex
	baseline int8
	used     bool
}

func (l *oneSessionLink) Connect(ctx context.Context) (*wifi.Session, error) {
	l.mu.Lock()
	if !l.used {
		l.used = true
		l.mu.Unlock()
		return &wifi.Session{SSID: "GateRTO", BaselineRSSI: l.baseline, Address: "192.168.0.2"}, nil
	}
	l.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (l *oneSessionLink) IsConnected(ctx context.Context) bool { return true }

func (l *oneSessionLink) CurrentRSSI(ctx context.Context) (int8, error) { return l.baseline, nil }

// actuator is an in-process Actuator Node on fake lines.
type actuator struct {
	server    *httptest.Server
	fullCycle *gpio.FakeOutput
	step      *gpio.FakeOutput
	metrics   *metrics.Actuator
}

func newActuator(t *testing.T, openedHigh, closedHigh bool) *actuator {
	t.Helper()
	a := &actuator{
		fullCycle: gpio.NewFakeOutput(),
		step:      gpio.NewFakeOutput(),
		metrics:   metrics.NewActuator(prometheus.NewRegistry()),
	}
	g := gate.New(
		gate.NewEstimator(gpio.NewFakeInput(openedHigh), gpio.NewFakeInput(closedHigh)),
		gate.NewPulser(a.fullCycle, a.step, gate.DefaultPulse, logger.Nop(), gate.WithSleep(func(time.Duration) {})),
		nil,
	)
	tracker := status.NewTracker(time.Now(), status.Config{Node: "actuator"})
	h := web.NewHandler(tracker, logger.Nop(), web.WithGate(g), web.WithRequestMetrics(a.metrics))
	a.server = httptest.NewServer(h.InitRoutes())
	t.Cleanup(a.server.Close)
	return a
}

// runTrigger runs a trigger node against a for nTicks polls of the button
// script, then stops it.
func runTrigger(t *testing.T, a *actuator, baseline int8, nTicks int, levels ...bool) (*indicator.Indicator, []*dispatch.Reply) {
	t.Helper()
	client := dispatch.New(map[dispatch.Command]string{
		dispatch.CommandOpen: a.server.URL + "/gate_open",
		dispatch.CommandStep: a.server.URL + "/gate_sbs",
	}, time.Second, logger.Nop())

	ind := indicator.New(indicator.NewRGBLED(gpio.NewFakeOutput(), gpio.NewFakeOutput(), gpio.NewFakeOutput()), logger.Nop(), nil)
	ind.SetLink(logic.LinkAssociated)

	rec := &replyRecorder{}
	tick := make(chan time.Time)
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	node := trigger.New(trigger.Config{
		MinRSSI:          -80,
		Poll:             100 * time.Millisecond,
		Debounce:         100 * time.Millisecond,
		WeakSignalHold:   time.Second,
		LinkLossCooldown: time.Minute,
		RSSIInterval:     time.Hour,
	}, &oneSessionLink{baseline: baseline}, gpio.NewFakeInput(levels...), client, ind, logger.Nop(),
		trigger.WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}),
		trigger.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
		trigger.WithTicker(func(time.Duration) (<-chan time.Time, func()) { return tick, func() {} }),
		trigger.WithObserver(rec),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- node.Run(ctx) }()

	// Each tick is received only after the previous one was fully handled,
	// dispatches included.
	for i := 0; i < nTicks+1; i++ {
		mu.Lock()
		now = now.Add(100 * time.Millisecond)
		ts := now
		mu.Unlock()
		tick <- ts
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	return ind, rec.all()
}

type replyRecorder struct {
	trigger.NopObserver
	mu      sync.Mutex
	replies []*dispatch.Reply
}

func (r *replyRecorder) Dispatched(cmd dispatch.Command, reply *dispatch.Reply, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply)
}

func (r *replyRecorder) all() []*dispatch.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*dispatch.Reply(nil), r.replies...)
}

func pulses(out *gpio.FakeOutput) int {
	n := 0
	for _, tr := range out.History() {
		if tr.High {
			n++
		}
	}
	return n
}

// TestIntegrationButtonPressPulsesStepRelay covers button -> dispatch ->
// command server -> relay on a strong signal.
func TestIntegrationButtonPressPulsesStepRelay(t *testing.T) {
	a := newActuator(t, false, true)

	// released, pressed for three polls, released again
	_, replies := runTrigger(t, a, -50, 8, true, false, false, false, true)

	if got := pulses(a.step); got != 1 {
		t.Errorf("expected one step pulse, got %d", got)
	}
	if got := pulses(a.fullCycle); got != 0 {
		t.Errorf("expected no full-cycle pulse on a strong signal, got %d", got)
	}
	if len(replies) != 1 || replies[0] == nil {
		t.Fatalf("expected one reply, got %v", replies)
	}
	if replies[0].StatusCode != 200 || replies[0].Body != `{"s":2}` {
		t.Errorf("unexpected reply %+v", replies[0])
	}
	if replies[0].Position == nil || *replies[0].Position != logic.PositionIntermediate {
		t.Errorf("expected INTERMEDIATE in reply, got %v", replies[0].Position)
	}
	if got := testutil.ToFloat64(a.metrics.Requests.WithLabelValues("/gate_sbs", "200")); got != 1 {
		t.Errorf("expected one /gate_sbs request, got %v", got)
	}
}

// TestIntegrationWeakSignalOpensGate covers the automatic open on arrival.
func TestIntegrationWeakSignalOpensGate(t *testing.T) {
	a := newActuator(t, false, true)

	ind, replies := runTrigger(t, a, -85, 3, true)

	if got := pulses(a.fullCycle); got != 1 {
		t.Errorf("expected one full-cycle pulse, got %d", got)
	}
	if got := pulses(a.step); got != 0 {
		t.Errorf("expected no step pulse without a press, got %d", got)
	}
	if len(replies) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(replies))
	}
	if ind.Color() != logic.ColorGreen {
		t.Errorf("expected green after the hold, got %s", ind.Color())
	}
}

// TestIntegrationShortTapPulsesOnce: one low poll is enough for a press.
func TestIntegrationShortTapPulsesOnce(t *testing.T) {
	a := newActuator(t, true, false)

	_, replies := runTrigger(t, a, -50, 6, true, false, true)

	if len(replies) != 1 {
		t.Fatalf("expected one dispatch for a short tap, got %d", len(replies))
	}
	if got := pulses(a.step); got != 1 {
		t.Errorf("expected one step pulse, got %d", got)
	}
	if len(a.fullCycle.History()) != 0 {
		t.Error("expected the full-cycle relay untouched")
	}
}

// TestIntegrationActuatorDown: dispatch failures never stop the loop.
func TestIntegrationActuatorDown(t *testing.T) {
	a := newActuator(t, false, true)
	a.server.Close()

	_, replies := runTrigger(t, a, -50, 8, true, false, false, true, false, false, true)

	if len(replies) != 2 {
		t.Fatalf("expected two attempted dispatches, got %d", len(replies))
	}
	for i, r := range replies {
		if r != nil {
			t.Errorf("dispatch %d: expected no reply from a closed server, got %+v", i, r)
		}
	}
}
