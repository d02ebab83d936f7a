//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "gate"

// cdevLine is a single line requested from the GPIO character device.
type cdevLine struct {
	name   string
	line   *gpiocdev.Line
	output bool
}

func (l *cdevLine) Read() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", l.name, err)
	}
	return v == 1, nil
}

func (l *cdevLine) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("set %s: %w", l.name, err)
	}
	return nil
}

// Close drives outputs low and returns the line to input with pull-down
// (Raspberry Pi boot default) before releasing it, so a relay is never left
// energised by a stopped process.
func (l *cdevLine) Close() error {
	var errs []error
	if l.output {
		if err := l.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive %s low: %w", l.name, err))
		}
	}
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure %s: %w", l.name, err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", l.name, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

type chipCloser struct{ chip *gpiocdev.Chip }

func (c chipCloser) Close() error { return c.chip.Close() }

// OpenCdev requests the given lines from a Linux GPIO chip (e.g. "gpiochip0").
// Failure to claim any line releases everything already claimed.
func OpenCdev(chipName string, specs []LineSpec) (*Board, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := NewBoard()
	// The chip is registered first so it is closed last.
	b.closers = append(b.closers, chipCloser{chip: chip})

	for _, spec := range specs {
		opts := []gpiocdev.LineReqOption{}
		if spec.Direction == DirOutput {
			opts = append(opts, gpiocdev.AsOutput(0))
		} else {
			opts = append(opts, gpiocdev.AsInput)
			switch spec.Bias {
			case BiasPullUp:
				opts = append(opts, gpiocdev.WithPullUp)
			case BiasPullDown:
				opts = append(opts, gpiocdev.WithPullDown)
			default:
				opts = append(opts, gpiocdev.WithBiasDisabled)
			}
		}

		line, err := chip.RequestLine(spec.Offset, opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", spec.Name, spec.Offset, err)
		}

		l := &cdevLine{name: spec.Name, line: line, output: spec.Direction == DirOutput}
		if l.output {
			b.AddOutput(spec.Name, l)
		} else {
			b.AddInput(spec.Name, l)
		}
	}
	return b, nil
}
