package sensor

// Battery scales the divided pack voltage back to the series voltage of the cells.
func Battery(dividerRatio float64, cells int) Conversion {
	return func(mv int) float64 {
		return float64(mv) / 1000 * dividerRatio * float64(cells)
	}
}

// Voltage undoes a resistor divider.
func Voltage(dividerRatio float64) Conversion {
	return func(mv int) float64 {
		return float64(mv) / 1000 * dividerRatio
	}
}

// Current converts the amplified voltage across a shunt resistor to amperes.
func Current(shuntOhms, gain float64) Conversion {
	return func(mv int) float64 {
		return float64(mv) / 1000 / (shuntOhms * gain)
	}
}
