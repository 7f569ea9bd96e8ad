package rfboard

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/mdouchement/rfboard/sensor"
)

// A DummyADC should only be used for dev & tests.
// It returns fixed millivolts with an optional jitter.
type DummyADC struct {
	sync     sync.Mutex
	inputs   map[sensor.ID]int
	failures map[sensor.ID]error
	jitter   int
}

func NewDummyADC() *DummyADC {
	return &DummyADC{
		inputs: map[sensor.ID]int{
			sensor.BatteryVoltage: 1900, // 11.4V on a 3S pack
			sensor.LoadVoltage:    1200, // 12V
			sensor.LoadCurrent1:   15,   // 50mA
			sensor.LoadCurrent2:   9,    // 30mA
		},
		failures: make(map[sensor.ID]error),
	}
}

// SetJitter adds a uniform noise of ±mv to every reading.
func (a *DummyADC) SetJitter(mv int) {
	a.sync.Lock()
	defer a.sync.Unlock()

	a.jitter = max(mv, 0)
}

func (a *DummyADC) Set(id sensor.ID, mv int) {
	a.sync.Lock()
	defer a.sync.Unlock()

	a.inputs[id] = mv
	delete(a.failures, id)
}

// Fail makes every reading of id fail until the next Set.
func (a *DummyADC) Fail(id sensor.ID, err error) {
	a.sync.Lock()
	defer a.sync.Unlock()

	a.failures[id] = err
}

func (a *DummyADC) ReadRaw(id sensor.ID) (int, error) {
	a.sync.Lock()
	defer a.sync.Unlock()

	if err := a.failures[id]; err != nil {
		return 0, fmt.Errorf("%w: %w", sensor.ErrHardwareUnavailable, err)
	}

	mv, ok := a.inputs[id]
	if !ok {
		return 0, fmt.Errorf("%s: %w", id, sensor.ErrHardwareUnavailable)
	}

	if a.jitter > 0 {
		mv += rand.IntN(2*a.jitter+1) - a.jitter
	}
	return mv, nil
}
