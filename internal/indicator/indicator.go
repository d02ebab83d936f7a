// Package indicator drives the status LED from the node's control state.
package indicator

import (
	"sync"

	"github.com/vpetryaev/GateRTO-1000/internal/gpio"
	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

// Display shows a color.
type Display interface {
	Show(c logic.Color) error
}

// RGBLED is a common-cathode RGB LED on three output lines.
type RGBLED struct {
	red, green, blue gpio.Output
}

// NewRGBLED takes ownership of the three channel outputs.
func NewRGBLED(red, green, blue gpio.Output) *RGBLED {
	return &RGBLED{red: red, green: green, blue: blue}
}

// Show drives all three channels.
func (l *RGBLED) Show(c logic.Color) error {
	r, g, b := c.RGB()
	if err := l.red.Set(r); err != nil {
		return err
	}
	if err := l.green.Set(g); err != nil {
		return err
	}
	return l.blue.Set(b)
}

// LogDisplay logs color changes; used on nodes without an LED.
type LogDisplay struct {
	Log *logger.Logger
}

func (d LogDisplay) Show(c logic.Color) error {
	d.Log.Infow("indicator", "color", c)
	return nil
}

// Indicator holds the control flags and re-renders the display whenever the
// derived color changes.
type Indicator struct {
	mu       sync.Mutex
	in       logic.IndicatorInput
	color    logic.Color
	display  Display
	log      *logger.Logger
	onChange func(logic.Color)
}

// New shows the initial (disconnected) color immediately. onChange may be
// nil.
func New(display Display, log *logger.Logger, onChange func(logic.Color)) *Indicator {
	ind := &Indicator{
		in:       logic.IndicatorInput{Link: logic.LinkDisconnected},
		color:    logic.ColorOff,
		display:  display,
		log:      log,
		onChange: onChange,
	}
	ind.update(func(*logic.IndicatorInput) {})
	return ind
}

func (ind *Indicator) SetLink(phase logic.LinkPhase) {
	ind.update(func(in *logic.IndicatorInput) { in.Link = phase })
}

// Associate marks the link associated and sets the weak-signal flag in one
// render.
func (ind *Indicator) Associate(weakSignal bool) {
	ind.update(func(in *logic.IndicatorInput) {
		in.Link = logic.LinkAssociated
		in.WeakSignalOpen = weakSignal
	})
}

func (ind *Indicator) SetCooldown(on bool) {
	ind.update(func(in *logic.IndicatorInput) { in.Cooldown = on })
}

func (ind *Indicator) SetWeakSignalOpen(on bool) {
	ind.update(func(in *logic.IndicatorInput) { in.WeakSignalOpen = on })
}

func (ind *Indicator) SetBusy(on bool) {
	ind.update(func(in *logic.IndicatorInput) { in.Busy = on })
}

// Color returns the color currently shown.
func (ind *Indicator) Color() logic.Color {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return ind.color
}

func (ind *Indicator) update(apply func(*logic.IndicatorInput)) {
	ind.mu.Lock()
	apply(&ind.in)
	c := logic.IndicatorColor(ind.in)
	if c == ind.color {
		ind.mu.Unlock()
		return
	}
	ind.color = c
	if err := ind.display.Show(c); err != nil {
		ind.log.Warnw("indicator_write_failed", "color", c, "err", err)
	}
	ind.mu.Unlock()

	if ind.onChange != nil {
		ind.onChange(c)
	}
}
