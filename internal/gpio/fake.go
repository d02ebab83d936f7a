package gpio

import (
	"errors"
	"sync"
	"time"
)

// FakeInput is a test double that returns scripted levels.
// It is safe for concurrent use.
type FakeInput struct {
	mu sync.Mutex

	// Levels contains scripted values to return (true = high).
	// Each call to Read() consumes the next level.
	Levels []bool

	// index tracks current position in Levels
	index int

	// Reads counts calls to Read.
	Reads int

	// ReadError, if set, will be returned by Read()
	ReadError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeInput creates a FakeInput with the given levels.
func NewFakeInput(levels ...bool) *FakeInput {
	return &FakeInput{Levels: levels}
}

// Read returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakeInput) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++

	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}

	level := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return level, nil
}

// SetLevel replaces the script with a constant level.
func (f *FakeInput) SetLevel(high bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Levels = []bool{high}
	f.index = 0
}

// SetError makes subsequent reads fail (nil clears it).
func (f *FakeInput) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReadError = err
}

// ReadCount returns the number of Read calls so far.
func (f *FakeInput) ReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reads
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset rewinds the script.
func (f *FakeInput) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Reads = 0
	f.Closed = false
}

// Transition is one recorded write to a FakeOutput.
type Transition struct {
	High bool
	Time time.Time
}

// FakeOutput records every write. It is safe for concurrent use.
type FakeOutput struct {
	mu sync.Mutex

	level   bool
	history []Transition

	// SetError, if set, will be returned by Set() and the level is unchanged.
	SetError error

	// FailHighOnly restricts SetError to writes that drive the line high.
	FailHighOnly bool

	// Closed tracks if Close was called
	Closed bool

	// Now stamps transitions; defaults to time.Now.
	Now func() time.Time
}

// NewFakeOutput creates a FakeOutput that starts low.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the write.
func (f *FakeOutput) Set(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil && (!f.FailHighOnly || high) {
		return f.SetError
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	f.level = high
	f.history = append(f.history, Transition{High: high, Time: now()})
	return nil
}

// Level returns the current level.
func (f *FakeOutput) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// History returns a copy of all recorded writes.
func (f *FakeOutput) History() []Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Transition, len(f.history))
	copy(out, f.history)
	return out
}

// Close drives the line low and marks it closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level = false
	f.Closed = true
	return nil
}

// NewFakeBoard builds a Board from fakes.
func NewFakeBoard(inputs map[string]*FakeInput, outputs map[string]*FakeOutput) *Board {
	b := NewBoard()
	for name, in := range inputs {
		b.AddInput(name, in)
	}
	for name, out := range outputs {
		b.AddOutput(name, out)
	}
	return b
}
