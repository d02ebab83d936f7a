package logic

// Color is a discrete status indicator color.
type Color string

const (
	ColorOff    Color = "OFF"
	ColorAmber  Color = "AMBER"
	ColorRed    Color = "RED"
	ColorGreen  Color = "GREEN"
	ColorBlue   Color = "BLUE"
	ColorViolet Color = "VIOLET"
)

// RGB returns the channel mix for a three-line RGB LED.
func (c Color) RGB() (r, g, b bool) {
	switch c {
	case ColorAmber:
		return true, true, false
	case ColorRed:
		return true, false, false
	case ColorGreen:
		return false, true, false
	case ColorBlue:
		return false, false, true
	case ColorViolet:
		return true, false, true
	default:
		return false, false, false
	}
}

// IndicatorInput is the control state the indicator reflects.
type IndicatorInput struct {
	Link LinkPhase
	// Cooldown is set while the node waits after link loss before reconnecting.
	Cooldown bool
	// WeakSignalOpen is set while the weak-signal auto-open is in progress.
	WeakSignalOpen bool
	// Busy is set while a button-triggered dispatch is held (trigger node)
	// or a pulse is in flight (actuator node).
	Busy bool
}

// IndicatorColor maps control state to a color. Precedence, highest first:
// cooldown violet, not associated amber, weak-signal open red, busy blue,
// otherwise green.
func IndicatorColor(in IndicatorInput) Color {
	switch {
	case in.Cooldown:
		return ColorViolet
	case in.Link != LinkAssociated:
		return ColorAmber
	case in.WeakSignalOpen:
		return ColorRed
	case in.Busy:
		return ColorBlue
	default:
		return ColorGreen
	}
}
