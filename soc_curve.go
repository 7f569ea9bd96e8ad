package rfboard

import (
	"errors"

	"github.com/mdouchement/rfboard/calc"
)

var ErrInvalidRange = errors.New("invalid voltage range")

type CurvePoint struct {
	Voltage float64 `json:"voltage"`
	Percent int     `json:"percent"`
}

// SoCCurve samples the state-of-charge curve between from and to volts (inclusive) every step volts.
func SoCCurve(soc calc.StateOfCharge, from, to, step float64) ([]CurvePoint, error) {
	if step <= 0 || to < from {
		return nil, ErrInvalidRange
	}

	n := int((to-from)/step+0.5) + 1
	points := make([]CurvePoint, 0, n)
	for i := range n {
		// Computed from the index to avoid accumulating float errors.
		v := from + float64(i)*step
		points = append(points, CurvePoint{
			Voltage: v,
			Percent: soc.Percent(v),
		})
	}

	return points, nil
}

// CurveRange returns a voltage window around the usable range of the battery.
func CurveRange(soc calc.StateOfCharge) (from, to float64) {
	margin := (soc.Full - soc.Empty) / 10
	return soc.Empty - margin, soc.Full + margin
}
