package rfboard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdouchement/rfboard/calc"
	"github.com/mdouchement/rfboard/command"
	"github.com/mdouchement/rfboard/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "rfboard.yml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))
	return filename
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Watchdog.Timeout.Duration)
	assert.Equal(t, calc.SafeCurrentLimit, cfg.Current.Ceiling)
	assert.Equal(t, 12.6, cfg.Battery.Full)
	assert.Equal(t, 9.0, cfg.Battery.Empty)
	assert.Equal(t, command.MatchToken, cfg.Commands.Matching)
	assert.Empty(t, cfg.Link.Port)
	assert.Empty(t, cfg.MQTT.Broker)
}

func TestLoad(t *testing.T) {
	filename := writeConfig(t, `
debug: true
socket: /tmp/rfboard.sock
watchdog:
  timeout: 3s
  touch_dir: /run/rfboard/watchdog
battery:
  full: 8.4
  empty: 6.0
  cells: 2
current:
  ceiling: 0.08
link:
  port: /dev/rfcomm0
mqtt:
  broker: tcp://localhost:1883
commands:
  matching: prefix
`)

	cfg, err := Load(filename)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "/tmp/rfboard.sock", cfg.Socket)
	assert.Equal(t, 3*time.Second, cfg.Watchdog.Timeout.Duration)
	assert.Equal(t, "/run/rfboard/watchdog", cfg.Watchdog.TouchDir)
	assert.Equal(t, 8.4, cfg.Battery.Full)
	assert.Equal(t, 2, cfg.Battery.Cells)
	assert.Equal(t, 2.0, cfg.Battery.DividerRatio) // default
	assert.Equal(t, 0.08, cfg.Current.Ceiling)
	assert.Equal(t, "/dev/rfcomm0", cfg.Link.Port)
	assert.Equal(t, 115200, cfg.Link.Baud) // default
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "rfboard", cfg.MQTT.Topic) // default
	assert.Equal(t, command.MatchPrefix, cfg.Commands.Matching)
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "yaml", content: "battery: [", want: ""},
		{name: "timeout", content: "watchdog:\n  timeout: 0s\n", want: "watchdog.timeout"},
		{name: "timeout below battery period", content: "watchdog:\n  timeout: 1s\n", want: "watchdog.timeout"},
		{name: "duration", content: "watchdog:\n  timeout: soon\n", want: ""},
		{name: "battery range", content: "battery:\n  full: 9\n  empty: 12\n", want: "battery"},
		{name: "ceiling above safety", content: "current:\n  ceiling: 0.5\n", want: "current.ceiling"},
		{name: "negative ceiling", content: "current:\n  ceiling: -1\n", want: "current.ceiling"},
		{name: "unknown channel", content: "adc:\n  channels:\n    temperature: 4\n", want: "adc"},
		{name: "shared input", content: "adc:\n  channels:\n    load_current_2: 0\n", want: "adc"},
		{name: "matching", content: "commands:\n  matching: fuzzy\n", want: "commands.matching"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestADCConfig_Mapping(t *testing.T) {
	mapping, err := Default().ADC.Mapping()
	require.NoError(t, err)
	assert.Equal(t, map[sensor.ID]int{
		sensor.BatteryVoltage: 0,
		sensor.LoadVoltage:    1,
		sensor.LoadCurrent1:   2,
		sensor.LoadCurrent2:   3,
	}, mapping)

	_, err = ADCConfig{Channels: map[string]int{"battery_voltage": 0}}.Mapping()
	assert.Error(t, err)
}
