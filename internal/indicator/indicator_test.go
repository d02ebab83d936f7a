package indicator

import (
	"reflect"
	"testing"

	"github.com/vpetryaev/GateRTO-1000/internal/gpio"
	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

type recordingDisplay struct {
	shown []logic.Color
}

func (d *recordingDisplay) Show(c logic.Color) error {
	d.shown = append(d.shown, c)
	return nil
}

func TestIndicatorSequence(t *testing.T) {
	d := &recordingDisplay{}
	var changes []logic.Color
	ind := New(d, logger.Nop(), func(c logic.Color) { changes = append(changes, c) })

	ind.SetLink(logic.LinkScanning)     // still amber, no write
	ind.SetLink(logic.LinkAssociated)   // green
	ind.SetWeakSignalOpen(true)         // red
	ind.SetWeakSignalOpen(false)        // green
	ind.SetBusy(true)                   // blue
	ind.SetBusy(false)                  // green
	ind.SetLink(logic.LinkDisconnected) // amber
	ind.SetCooldown(true)               // violet
	ind.SetCooldown(false)              // amber

	want := []logic.Color{
		logic.ColorAmber, logic.ColorGreen, logic.ColorRed, logic.ColorGreen,
		logic.ColorBlue, logic.ColorGreen, logic.ColorAmber, logic.ColorViolet, logic.ColorAmber,
	}
	if !reflect.DeepEqual(d.shown, want) {
		t.Errorf("expected %v, got %v", want, d.shown)
	}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("expected change hook %v, got %v", want, changes)
	}
	if ind.Color() != logic.ColorAmber {
		t.Errorf("expected AMBER, got %v", ind.Color())
	}
}

func TestRGBLEDDrivesChannels(t *testing.T) {
	r, g, b := gpio.NewFakeOutput(), gpio.NewFakeOutput(), gpio.NewFakeOutput()
	led := NewRGBLED(r, g, b)

	if err := led.Show(logic.ColorViolet); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Level() || g.Level() || !b.Level() {
		t.Errorf("expected red+blue, got r=%v g=%v b=%v", r.Level(), g.Level(), b.Level())
	}
	if err := led.Show(logic.ColorOff); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Level() || g.Level() || b.Level() {
		t.Error("expected all channels low")
	}
}

func TestIndicatorAssociateWeakSkipsGreen(t *testing.T) {
	d := &recordingDisplay{}
	ind := New(d, logger.Nop(), nil)

	ind.SetLink(logic.LinkConnecting)
	ind.Associate(true)
	ind.SetWeakSignalOpen(false)

	want := []logic.Color{logic.ColorAmber, logic.ColorRed, logic.ColorGreen}
	if !reflect.DeepEqual(d.shown, want) {
		t.Errorf("expected %v, got %v", want, d.shown)
	}
}
