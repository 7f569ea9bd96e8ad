package sensor

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mdouchement/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReader struct {
	values []int
	errs   []error
	i      int
}

func (r *scriptedReader) ReadRaw(ID) (int, error) {
	i := r.i
	r.i++
	if i < len(r.errs) && r.errs[i] != nil {
		return 0, r.errs[i]
	}
	if i < len(r.values) {
		return r.values[i], nil
	}
	return r.values[len(r.values)-1], nil
}

func discard() logger.Logger {
	return logger.WrapSlogHandler(slog.NewTextHandler(io.Discard, nil))
}

func TestChannel_Update(t *testing.T) {
	r := &scriptedReader{values: []int{1000}}
	c := NewChannel(LoadVoltage, Volt, Voltage(10), r, discard())

	raw := c.Update()
	assert.InDelta(t, 10.0, raw, 1e-9)
	assert.InDelta(t, 10.0, c.Raw(), 1e-9)
	assert.InDelta(t, 2.0, c.Debounced(), 1e-9) // cold-start bias
	assert.False(t, c.Primed())

	for range 4 {
		c.Update()
	}
	assert.InDelta(t, 10.0, c.Debounced(), 1e-9)
	assert.True(t, c.Primed())
}

func TestChannel_HardwareErrorFallsBackToPreviousRaw(t *testing.T) {
	r := &scriptedReader{
		values: []int{2100, 0, 2100},
		errs:   []error{nil, ErrHardwareUnavailable, nil},
	}
	c := NewChannel(BatteryVoltage, Volt, Battery(2.0, 3), r, discard())

	first := c.Update()
	require.InDelta(t, 12.6, first, 1e-9)

	second := c.Update()
	assert.InDelta(t, first, second, 1e-9)
	assert.InDelta(t, first, c.Raw(), 1e-9)
}

func TestChannel_HardwareErrorBeforeFirstSample(t *testing.T) {
	r := &scriptedReader{
		values: []int{0},
		errs:   []error{errors.New("adc timeout")},
	}
	c := NewChannel(LoadCurrent1, Ampere, Current(0.015, 20), r, nil)

	assert.Equal(t, 0.0, c.Update())
	assert.Equal(t, 0.0, c.Debounced())
}

func TestChannel_SampleWrapsForeignErrors(t *testing.T) {
	r := &scriptedReader{values: []int{0}, errs: []error{errors.New("boom")}}
	c := NewChannel(LoadCurrent2, Ampere, Current(0.015, 20), r, nil)

	_, err := c.sample()
	assert.ErrorIs(t, err, ErrHardwareUnavailable)
}

func TestChannel_ConcurrentReaders(t *testing.T) {
	r := &scriptedReader{values: []int{300}}
	c := NewChannel(LoadCurrent1, Ampere, Current(0.015, 20), r, nil)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				v := c.Debounced()
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0+1e-9)
			}
		}()
	}

	for range 100 {
		c.Update()
	}
	wg.Wait()
}

func TestConversions(t *testing.T) {
	tests := []struct {
		name    string
		convert Conversion
		mv      int
		want    float64
	}{
		{name: "battery full", convert: Battery(2.0, 3), mv: 2100, want: 12.6},
		{name: "battery empty", convert: Battery(2.0, 3), mv: 1500, want: 9.0},
		{name: "load voltage", convert: Voltage(10.0), mv: 480, want: 4.8},
		{name: "current 100mA", convert: Current(0.015, 20.0), mv: 30, want: 0.1},
		{name: "zero", convert: Current(0.015, 20.0), mv: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.convert(tt.mv), 1e-9)
		})
	}
}

func TestID_String(t *testing.T) {
	assert.Equal(t, "battery_voltage", BatteryVoltage.String())
	assert.Equal(t, "load_current_2", LoadCurrent2.String())
	assert.Equal(t, "channel_9", ID(9).String())
}

func TestParseID(t *testing.T) {
	for _, id := range IDs {
		parsed, err := ParseID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}

	_, err := ParseID("temperature")
	assert.Error(t, err)
}
