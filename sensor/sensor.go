package sensor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/rfboard/debounce"
)

var ErrHardwareUnavailable = errors.New("hardware unavailable")

type ID uint8

const (
	BatteryVoltage ID = iota
	LoadVoltage
	LoadCurrent1
	LoadCurrent2
)

// IDs lists every channel of the board in a stable order.
var IDs = []ID{BatteryVoltage, LoadVoltage, LoadCurrent1, LoadCurrent2}

func (id ID) String() string {
	switch id {
	case BatteryVoltage:
		return "battery_voltage"
	case LoadVoltage:
		return "load_voltage"
	case LoadCurrent1:
		return "load_current_1"
	case LoadCurrent2:
		return "load_current_2"
	default:
		return fmt.Sprintf("channel_%d", uint8(id))
	}
}

func ParseID(s string) (ID, error) {
	for _, id := range IDs {
		if id.String() == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown channel: %q", s)
}

type Unit string

const (
	Volt   Unit = "V"
	Ampere Unit = "A"
)

// A Reader gives access to the analog front-end.
// Errors must wrap ErrHardwareUnavailable.
type Reader interface {
	ReadRaw(id ID) (millivolts int, err error)
}

// Conversion turns a calibrated ADC reading into the channel's unit.
type Conversion func(millivolts int) float64

// A Channel owns one analog measurement stream and its debounce filter.
// Update must only be called by the owning activity; readers may call
// Raw, Debounced and Primed from any goroutine.
type Channel struct {
	mu      sync.RWMutex
	id      ID
	unit    Unit
	convert Conversion
	reader  Reader
	log     logger.Logger
	filter  *debounce.Filter[float64]
	raw     float64
}

func NewChannel(id ID, unit Unit, convert Conversion, reader Reader, log logger.Logger) *Channel {
	return &Channel{
		id:      id,
		unit:    unit,
		convert: convert,
		reader:  reader,
		log:     log,
		filter:  debounce.New[float64](),
	}
}

func (c *Channel) ID() ID {
	return c.id
}

func (c *Channel) Unit() Unit {
	return c.unit
}

// Update samples the hardware once and pushes the value into the filter.
// On a hardware error the previous raw value (0 before the first success) is pushed instead.
func (c *Channel) Update() float64 {
	raw, err := c.sample()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		raw = c.raw
		if c.log != nil {
			c.log.WithError(err).Warnf("%s: using fallback value %.3f%s", c.id, raw, c.unit)
		}
	}

	c.raw = raw
	c.filter.Push(raw)
	return raw
}

func (c *Channel) sample() (float64, error) {
	mv, err := c.reader.ReadRaw(c.id)
	if err != nil {
		if !errors.Is(err, ErrHardwareUnavailable) {
			err = fmt.Errorf("%w: %w", ErrHardwareUnavailable, err)
		}
		return 0, err
	}

	return c.convert(mv), nil
}

func (c *Channel) Raw() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.raw
}

func (c *Channel) Debounced() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.filter.Average()
}

func (c *Channel) Primed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.filter.Primed()
}
