package gate

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/gpio"
	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

func newTestGate(opened, closed *gpio.FakeInput, open, sbs *gpio.FakeOutput, obs Observer, opts ...PulserOption) *Gate {
	opts = append([]PulserOption{WithSleep(func(time.Duration) {})}, opts...)
	return New(
		NewEstimator(opened, closed),
		NewPulser(open, sbs, DefaultPulse, logger.Nop(), opts...),
		obs,
	)
}

func TestEstimatorTruthTable(t *testing.T) {
	tests := []struct {
		name           string
		opened, closed bool
		want           logic.GatePosition
	}{
		{"opened sensor high", true, false, logic.PositionOpen},
		{"closed sensor high", false, true, logic.PositionClosed},
		{"both low", false, false, logic.PositionIntermediate},
		{"both high", true, true, logic.PositionOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEstimator(gpio.NewFakeInput(tt.opened), gpio.NewFakeInput(tt.closed))
			got, err := e.Estimate()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEstimatorSkipsClosedWhenOpened(t *testing.T) {
	closed := gpio.NewFakeInput(false)
	e := NewEstimator(gpio.NewFakeInput(true), closed)
	if _, err := e.Estimate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed.ReadCount() != 0 {
		t.Errorf("expected closed sensor untouched, got %d reads", closed.ReadCount())
	}
}

func TestEstimatorReadFault(t *testing.T) {
	closed := gpio.NewFakeInput(false)
	closed.SetError(errors.New("line gone"))
	e := NewEstimator(gpio.NewFakeInput(false), closed)

	_, err := e.Estimate()
	var fault *HardwareFault
	if !errors.As(err, &fault) {
		t.Fatalf("expected HardwareFault, got %v", err)
	}
	if fault.Line != gpio.LineGateClosed {
		t.Errorf("expected fault on %s, got %s", gpio.LineGateClosed, fault.Line)
	}
}

func TestPulseDrivesOnlyTarget(t *testing.T) {
	open, sbs := gpio.NewFakeOutput(), gpio.NewFakeOutput()
	g := newTestGate(gpio.NewFakeInput(false), gpio.NewFakeInput(true), open, sbs, nil)

	if err := g.Pulse(logic.TargetStep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := sbs.History()
	if len(h) != 2 || !h[0].High || h[1].High {
		t.Errorf("expected high then low on step relay, got %+v", h)
	}
	if len(open.History()) != 0 {
		t.Errorf("expected full-cycle relay untouched, got %+v", open.History())
	}
}

func TestPulseWidth(t *testing.T) {
	var slept []time.Duration
	p := NewPulser(gpio.NewFakeOutput(), gpio.NewFakeOutput(), 150*time.Millisecond, logger.Nop(),
		WithSleep(func(d time.Duration) { slept = append(slept, d) }))

	if err := p.Pulse(logic.TargetFullCycle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slept) != 1 || slept[0] != 150*time.Millisecond {
		t.Errorf("expected one 150ms hold, got %v", slept)
	}
}

func TestPulseUnknownTarget(t *testing.T) {
	p := NewPulser(gpio.NewFakeOutput(), gpio.NewFakeOutput(), DefaultPulse, logger.Nop())
	if err := p.Pulse(logic.Target("BOGUS")); err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestPulseRaiseFault(t *testing.T) {
	sbs := gpio.NewFakeOutput()
	sbs.SetError = errors.New("ebusy")
	p := NewPulser(gpio.NewFakeOutput(), sbs, DefaultPulse, logger.Nop(), WithSleep(func(time.Duration) {}))

	err := p.Pulse(logic.TargetStep)
	var fault *HardwareFault
	if !errors.As(err, &fault) || fault.Line != gpio.LineGateSBS {
		t.Fatalf("expected HardwareFault on %s, got %v", gpio.LineGateSBS, err)
	}
	if sbs.Level() {
		t.Error("expected relay to stay low")
	}
}

func TestConcurrentPulsesDoNotOverlap(t *testing.T) {
	sbs := gpio.NewFakeOutput()
	p := NewPulser(gpio.NewFakeOutput(), sbs, 20*time.Millisecond, logger.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Pulse(logic.TargetStep); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	h := sbs.History()
	if len(h) != 6 {
		t.Fatalf("expected 6 transitions, got %d", len(h))
	}
	for i := 0; i < len(h); i += 2 {
		if !h[i].High || h[i+1].High {
			t.Fatalf("expected strict high/low alternation, got %+v", h)
		}
		if width := h[i+1].Time.Sub(h[i].Time); width < 20*time.Millisecond {
			t.Errorf("pulse %d too short: %v", i/2, width)
		}
	}
}

// recordingObserver captures observer calls.
type recordingObserver struct {
	mu        sync.Mutex
	started   []logic.Target
	finished  []error
	positions []logic.GatePosition
}

func (r *recordingObserver) PulseStarted(t logic.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, t)
}

func (r *recordingObserver) PulseFinished(_ logic.Target, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, err)
}

func (r *recordingObserver) PositionRead(pos logic.GatePosition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, pos)
}

func TestGateNotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	g := newTestGate(gpio.NewFakeInput(false), gpio.NewFakeInput(true), gpio.NewFakeOutput(), gpio.NewFakeOutput(), obs)

	pos, err := g.Position()
	if err != nil || pos != logic.PositionClosed {
		t.Fatalf("expected CLOSED, got %v (%v)", pos, err)
	}
	if err := g.Pulse(logic.TargetFullCycle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(obs.positions) != 1 || obs.positions[0] != logic.PositionClosed {
		t.Errorf("expected one CLOSED read, got %v", obs.positions)
	}
	if len(obs.started) != 1 || len(obs.finished) != 1 || obs.finished[0] != nil {
		t.Errorf("expected one clean pulse, got started=%v finished=%v", obs.started, obs.finished)
	}
}

func TestPositionWaitsForPulse(t *testing.T) {
	opened := gpio.NewFakeInput(false)
	sbs := gpio.NewFakeOutput()
	released := make(chan struct{})
	inPulse := make(chan struct{})

	g := newTestGate(opened, gpio.NewFakeInput(false), gpio.NewFakeOutput(), sbs, nil,
		WithSleep(func(time.Duration) {
			close(inPulse)
			<-released
			// The gate reaches the open sensor by the time the pulse ends.
			opened.SetLevel(true)
		}))

	pulseDone := make(chan error, 1)
	go func() { pulseDone <- g.Pulse(logic.TargetStep) }()
	<-inPulse

	posCh := make(chan logic.GatePosition, 1)
	go func() {
		pos, _ := g.Position()
		posCh <- pos
	}()

	select {
	case pos := <-posCh:
		t.Fatalf("position read completed during pulse: %v", pos)
	case <-time.After(30 * time.Millisecond):
	}

	close(released)
	if err := <-pulseDone; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos := <-posCh; pos != logic.PositionOpen {
		t.Errorf("expected OPEN after pulse, got %v", pos)
	}
}
