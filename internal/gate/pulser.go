package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/gpio"
	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

// DefaultPulse is the relay pulse width expected by the gate controller.
const DefaultPulse = 200 * time.Millisecond

// relay is an output line with its own lock.
type relay struct {
	mu   sync.Mutex
	name string
	out  gpio.Output
}

// Pulser drives fixed-width pulses on the two relays. Pulses on the same
// relay are serialized; a second request blocks until the first completes.
type Pulser struct {
	relays   map[logic.Target]*relay
	duration time.Duration
	sleep    func(time.Duration)
	log      *logger.Logger
}

// PulserOption configures a Pulser.
type PulserOption func(*Pulser)

// WithSleep replaces time.Sleep (tests).
func WithSleep(sleep func(time.Duration)) PulserOption {
	return func(p *Pulser) { p.sleep = sleep }
}

// NewPulser takes ownership of the full-cycle and step relay outputs.
func NewPulser(fullCycle, step gpio.Output, duration time.Duration, log *logger.Logger, opts ...PulserOption) *Pulser {
	p := &Pulser{
		relays: map[logic.Target]*relay{
			logic.TargetFullCycle: {name: gpio.LineGateOpen, out: fullCycle},
			logic.TargetStep:      {name: gpio.LineGateSBS, out: step},
		},
		duration: duration,
		sleep:    time.Sleep,
		log:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Duration returns the configured pulse width.
func (p *Pulser) Duration() time.Duration {
	return p.duration
}

// Pulse raises the target relay, holds it for the pulse width and lowers it.
// The returned error only concerns the electrical pulse; nothing verifies
// that the gate moved.
func (p *Pulser) Pulse(target logic.Target) error {
	r, ok := p.relays[target]
	if !ok {
		return fmt.Errorf("unknown pulse target %q", target)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.out.Set(true); err != nil {
		return &HardwareFault{Line: r.name, Err: err}
	}
	p.sleep(p.duration)
	if err := r.out.Set(false); err != nil {
		// A relay left high keeps the motor controller triggered; try once more.
		p.log.Errorw("relay_release_failed", "line", r.name, "err", err)
		if err2 := r.out.Set(false); err2 != nil {
			return &HardwareFault{Line: r.name, Err: err2}
		}
	}
	p.log.Debugw("pulse_done", "target", target, "line", r.name, "width", p.duration)
	return nil
}
