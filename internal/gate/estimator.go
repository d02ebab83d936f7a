package gate

import (
	"sync"

	"github.com/vpetryaev/GateRTO-1000/internal/gpio"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

// sensor is an input line with its own lock.
type sensor struct {
	mu   sync.Mutex
	name string
	in   gpio.Input
}

func (s *sensor) read() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	high, err := s.in.Read()
	if err != nil {
		return false, &HardwareFault{Line: s.name, Err: err}
	}
	return high, nil
}

// Estimator reads the two active-low sensors on demand. There is no
// averaging or hysteresis: each call is a fresh read.
type Estimator struct {
	opened *sensor
	closed *sensor
}

// NewEstimator takes ownership of the two sensor inputs.
func NewEstimator(opened, closed gpio.Input) *Estimator {
	return &Estimator{
		opened: &sensor{name: gpio.LineGateOpened, in: opened},
		closed: &sensor{name: gpio.LineGateClosed, in: closed},
	}
}

// Estimate returns the current position. The closed sensor is only read
// when the opened sensor is low, and each sensor lock is held for a single
// read.
func (e *Estimator) Estimate() (logic.GatePosition, error) {
	openedHigh, err := e.opened.read()
	if err != nil {
		return logic.PositionIntermediate, err
	}
	if openedHigh {
		return logic.PositionOpen, nil
	}

	closedHigh, err := e.closed.read()
	if err != nil {
		return logic.PositionIntermediate, err
	}
	return logic.Estimate(false, closedHigh), nil
}
