// Package adc reads analog inputs exposed by the Linux Industrial I/O subsystem.
//
// Voltage channels follow the IIO sysfs ABI:
// https://www.kernel.org/doc/Documentation/ABI/testing/sysfs-bus-iio
// processed value = (in_voltageX_raw + in_voltageX_offset) * in_voltageX_scale, in millivolts.
package adc

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/mdouchement/rfboard/sensor"
)

var (
	ErrDeviceNotFound = errors.New("iio device not found")
	ErrUnknownChannel = errors.New("unknown channel")
)

type Device struct {
	Key      string   `json:"key"`  // e.g. iio:device0
	Name     string   `json:"name"` // e.g. ads1015
	Path     string   `json:"path"`
	Channels []string `json:"channels"` // e.g. in_voltage0_raw
}

type input struct {
	filename string
	offset   float64
	scale    float64
}

// Sysfs is a sensor.Reader over one IIO device.
type Sysfs struct {
	device Device
	inputs map[sensor.ID]input
}

// Devices lists the IIO devices of the host.
func Devices() ([]Device, error) {
	// e.g. /sys/bus/iio/devices/iio:device0 /sys/bus/iio/devices/iio:device1
	directories, err := filepath.Glob(sysPath("bus", "iio", "devices", "iio:device*"))
	if err != nil {
		return nil, err
	}

	var errs []error
	devices := make([]Device, 0, len(directories))
	for _, directory := range directories {
		device := Device{
			Key:  filepath.Base(directory),
			Path: directory,
		}

		raw, err := os.ReadFile(filepath.Join(directory, "name"))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		device.Name = strings.TrimSpace(string(raw))

		files, err := filepath.Glob(filepath.Join(directory, "in_voltage*_raw"))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, file := range files {
			device.Channels = append(device.Channels, filepath.Base(file))
		}
		slices.Sort(device.Channels)

		devices = append(devices, device)
	}

	return devices, errors.Join(errs...)
}

// Open resolves the IIO device by key (iio:deviceN) or by driver name
// and binds every sensor channel to its voltage input index.
func Open(device string, channels map[sensor.ID]int) (*Sysfs, error) {
	devices, err := Devices()
	if len(devices) == 0 && err != nil {
		return nil, fmt.Errorf("adc: %w", err)
	}

	i := slices.IndexFunc(devices, func(d Device) bool {
		return d.Key == device || d.Name == device
	})
	if i < 0 {
		return nil, fmt.Errorf("adc: %s: %w", device, ErrDeviceNotFound)
	}

	s := &Sysfs{
		device: devices[i],
		inputs: make(map[sensor.ID]input, len(channels)),
	}

	var errs []error
	for id, index := range channels {
		basepath := filepath.Join(s.device.Path, fmt.Sprintf("in_voltage%d", index))

		in := input{
			filename: basepath + "_raw",
			offset:   optionalValueReadFromFile(basepath + "_offset"),
			scale:    optionalValueReadFromFile(basepath + "_scale"),
		}
		if _, err := os.Stat(in.filename); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if in.scale == 0 {
			// Shared scale of all voltage inputs.
			in.scale = optionalValueReadFromFile(filepath.Join(s.device.Path, "in_voltage_scale"))
		}
		if in.scale == 0 {
			in.scale = 1
		}

		s.inputs[id] = in
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("adc: %w", errors.Join(errs...))
	}
	return s, nil
}

func (s *Sysfs) Device() Device {
	return s.device
}

// ReadRaw returns the voltage of the channel's input in millivolts.
func (s *Sysfs) ReadRaw(id sensor.ID) (int, error) {
	in, ok := s.inputs[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s: %w", sensor.ErrHardwareUnavailable, id, ErrUnknownChannel)
	}

	raw, err := os.ReadFile(in.filename)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", sensor.ErrHardwareUnavailable, err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", sensor.ErrHardwareUnavailable, in.filename, err)
	}

	return int(math.Round((value + in.offset) * in.scale)), nil
}

func optionalValueReadFromFile(filename string) float64 {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return 0
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0
	}

	return value
}
