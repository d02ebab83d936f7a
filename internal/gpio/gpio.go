// Package gpio owns the node's GPIO lines.
// Real backends use the Linux GPIO character device (default) or periph.io.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Input reads the electrical level of a line.
type Input interface {
	// Read returns true when the line is electrically high.
	Read() (bool, error)
}

// Output drives a line.
type Output interface {
	// Set drives the line high (true) or low (false).
	Set(high bool) error
}

// Direction of a line.
type Direction int

const (
	DirInput Direction = iota
	DirOutput
)

// Bias of an input line.
type Bias int

const (
	BiasFloating Bias = iota
	BiasPullUp
	BiasPullDown
)

// Line names used by the two nodes.
const (
	LineGateOpen   = "gate_open"
	LineGateSBS    = "gate_sbs"
	LineGateOpened = "gate_opened"
	LineGateClosed = "gate_closed"
	LineButton     = "button"
	LineLEDRed     = "led_red"
	LineLEDGreen   = "led_green"
	LineLEDBlue    = "led_blue"
)

// LineSpec describes one line to request from the backend.
type LineSpec struct {
	Name      string
	Offset    int
	Direction Direction
	Bias      Bias
}

var (
	// ErrUnknownLine is returned when a name was never opened on the board.
	ErrUnknownLine = errors.New("gpio: unknown line")
	// ErrLineClaimed is returned when a line was already handed out.
	ErrLineClaimed = errors.New("gpio: line already claimed")
)

// Board holds every line the process owns. It is built once at startup and
// each line is handed out exactly once, so every component holds the only
// reference to the lines it drives or reads.
type Board struct {
	mu      sync.Mutex
	inputs  map[string]Input
	outputs map[string]Output
	claimed map[string]bool
	closers []io.Closer
}

// NewBoard creates an empty board. Backends populate it with AddInput and
// AddOutput.
func NewBoard() *Board {
	return &Board{
		inputs:  make(map[string]Input),
		outputs: make(map[string]Output),
		claimed: make(map[string]bool),
	}
}

// AddInput registers an input line. If in implements io.Closer it is closed
// with the board.
func (b *Board) AddInput(name string, in Input) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs[name] = in
	if c, ok := in.(io.Closer); ok {
		b.closers = append(b.closers, c)
	}
}

// AddOutput registers an output line. If out implements io.Closer it is
// closed with the board.
func (b *Board) AddOutput(name string, out Output) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs[name] = out
	if c, ok := out.(io.Closer); ok {
		b.closers = append(b.closers, c)
	}
}

// TakeInput hands out the named input line. A line can be taken only once.
func (b *Board) TakeInput(name string) (Input, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	in, ok := b.inputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLine, name)
	}
	if b.claimed[name] {
		return nil, fmt.Errorf("%w: %s", ErrLineClaimed, name)
	}
	b.claimed[name] = true
	return in, nil
}

// TakeOutput hands out the named output line. A line can be taken only once.
func (b *Board) TakeOutput(name string) (Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out, ok := b.outputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLine, name)
	}
	if b.claimed[name] {
		return nil, fmt.Errorf("%w: %s", ErrLineClaimed, name)
	}
	b.claimed[name] = true
	return out, nil
}

// Close releases every line in reverse order of registration.
func (b *Board) Close() error {
	b.mu.Lock()
	closers := b.closers
	b.closers = nil
	b.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ActuatorLines returns the line specs of the Actuator Node. Sensors are
// floating; relays start low.
func ActuatorLines(open, sbs, opened, closed int) []LineSpec {
	return []LineSpec{
		{Name: LineGateOpen, Offset: open, Direction: DirOutput},
		{Name: LineGateSBS, Offset: sbs, Direction: DirOutput},
		{Name: LineGateOpened, Offset: opened, Direction: DirInput, Bias: BiasFloating},
		{Name: LineGateClosed, Offset: closed, Direction: DirInput, Bias: BiasFloating},
	}
}

// TriggerLines returns the line specs of the Trigger Node. The button is
// pulled up and reads low when pressed.
func TriggerLines(button, red, green, blue int) []LineSpec {
	return []LineSpec{
		{Name: LineButton, Offset: button, Direction: DirInput, Bias: BiasPullUp},
		{Name: LineLEDRed, Offset: red, Direction: DirOutput},
		{Name: LineLEDGreen, Offset: green, Direction: DirOutput},
		{Name: LineLEDBlue, Offset: blue, Direction: DirOutput},
	}
}

// Backends accepted by Open.
const (
	BackendCdev   = "cdev"
	BackendPeriph = "periph"
)

// Open requests specs from the named backend. chip is only used by cdev.
func Open(backend, chip string, specs []LineSpec) (*Board, error) {
	switch backend {
	case BackendCdev:
		return OpenCdev(chip, specs)
	case BackendPeriph:
		return OpenPeriph(specs)
	default:
		return nil, fmt.Errorf("gpio: unknown backend %q", backend)
	}
}
