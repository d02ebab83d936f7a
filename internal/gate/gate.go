// Package gate drives the Actuator Node hardware: it estimates the gate
// position from the two sensors and pulses the two relays.
package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

// HardwareFault reports that a GPIO line could not be read or driven.
// It fails the current command only.
type HardwareFault struct {
	Line string
	Err  error
}

func (e *HardwareFault) Error() string {
	return fmt.Sprintf("hardware fault on %s: %v", e.Line, e.Err)
}

func (e *HardwareFault) Unwrap() error { return e.Err }

// Observer is notified of gate activity (telemetry, status tracking).
// Calls are made outside any line lock.
type Observer interface {
	PulseStarted(target logic.Target)
	PulseFinished(target logic.Target, elapsed time.Duration, err error)
	PositionRead(pos logic.GatePosition)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) PulseStarted(logic.Target)                        {}
func (NopObserver) PulseFinished(logic.Target, time.Duration, error) {}
func (NopObserver) PositionRead(logic.GatePosition)                  {}

// Gate combines the estimator and the pulser. A position read waits for
// every in-flight pulse to finish, so it always reflects the state after
// the pulse.
type Gate struct {
	estimator *Estimator
	pulser    *Pulser
	observer  Observer

	// Pulses hold the read side, position reads take the write side.
	motion sync.RWMutex
}

// New builds a Gate. A nil observer is replaced by NopObserver.
func New(estimator *Estimator, pulser *Pulser, observer Observer) *Gate {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Gate{estimator: estimator, pulser: pulser, observer: observer}
}

// Position reads the current gate position.
func (g *Gate) Position() (logic.GatePosition, error) {
	g.motion.Lock()
	pos, err := g.estimator.Estimate()
	g.motion.Unlock()
	if err != nil {
		return logic.PositionIntermediate, err
	}
	g.observer.PositionRead(pos)
	return pos, nil
}

// Pulse issues one pulse on target and blocks until it has completed.
func (g *Gate) Pulse(target logic.Target) error {
	g.observer.PulseStarted(target)
	start := time.Now()

	g.motion.RLock()
	err := g.pulser.Pulse(target)
	g.motion.RUnlock()

	g.observer.PulseFinished(target, time.Since(start), err)
	return err
}
