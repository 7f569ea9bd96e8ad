package calc

// Reference voltages of a 3-cell series Li-ion pack (4.2V and 3.0V per cell).
const (
	FullVoltage3S  = 12.6
	EmptyVoltage3S = 9.0
)

// StateOfCharge estimates the remaining capacity from the pack terminal voltage
// by linear interpolation between the empty and full reference voltages.
type StateOfCharge struct {
	Full  float64
	Empty float64
}

func Default3S() StateOfCharge {
	return StateOfCharge{
		Full:  FullVoltage3S,
		Empty: EmptyVoltage3S,
	}
}

// Percent returns the state of charge in [0,100].
// The fractional part is truncated, not rounded.
func (s StateOfCharge) Percent(voltage float64) int {
	switch {
	case voltage >= s.Full:
		return 100
	case voltage <= s.Empty:
		return 0
	}

	return int((voltage - s.Empty) / (s.Full - s.Empty) * 100)
}

// Critical reports whether the pack reached its minimum safe voltage.
func (s StateOfCharge) Critical(voltage float64) bool {
	return voltage <= s.Empty
}
