package logic

// Estimate derives the gate position from the electrical levels of the two
// active-low sensors (true = electrically high).
//
// The opened sensor wins when high, then the closed sensor; any other
// combination, including both low, is Intermediate. Every input maps to a
// defined position so a faulty sensor pair never fails a read.
func Estimate(openedHigh, closedHigh bool) GatePosition {
	if openedHigh {
		return PositionOpen
	}
	if closedHigh {
		return PositionClosed
	}
	return PositionIntermediate
}
