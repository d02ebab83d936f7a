//go:build linux

package gpio

import (
	"fmt"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// periphLine is a single line driven through periph.io. Pins are addressed
// by their BCM numbers.
type periphLine struct {
	name   string
	pin    pgpio.PinIO
	output bool
}

// Read never fails on periph; the error is part of the Input contract.
func (l *periphLine) Read() (bool, error) {
	return l.pin.Read() == pgpio.High, nil
}

func (l *periphLine) Set(high bool) error {
	level := pgpio.Low
	if high {
		level = pgpio.High
	}
	if err := l.pin.Out(level); err != nil {
		return fmt.Errorf("set %s: %w", l.name, err)
	}
	return nil
}

func (l *periphLine) Close() error {
	if l.output {
		if err := l.pin.Out(pgpio.Low); err != nil {
			return fmt.Errorf("drive %s low: %w", l.name, err)
		}
	}
	if err := l.pin.In(pgpio.PullDown, pgpio.NoEdge); err != nil {
		return fmt.Errorf("reconfigure %s: %w", l.name, err)
	}
	return nil
}

func toPull(b Bias) pgpio.Pull {
	switch b {
	case BiasPullUp:
		return pgpio.PullUp
	case BiasPullDown:
		return pgpio.PullDown
	default:
		return pgpio.Float
	}
}

// OpenPeriph initialises the periph host drivers and configures the lines.
func OpenPeriph(specs []LineSpec) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	b := NewBoard()
	for _, spec := range specs {
		pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", spec.Offset))
		if pin == nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: no such pin", spec.Name, spec.Offset)
		}

		l := &periphLine{name: spec.Name, pin: pin, output: spec.Direction == DirOutput}
		if l.output {
			if err := pin.Out(pgpio.Low); err != nil {
				b.Close()
				return nil, fmt.Errorf("request %s pin %d: %w", spec.Name, spec.Offset, err)
			}
			b.AddOutput(spec.Name, l)
			continue
		}
		if err := pin.In(toPull(spec.Bias), pgpio.NoEdge); err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", spec.Name, spec.Offset, err)
		}
		b.AddInput(spec.Name, l)
	}
	return b, nil
}
