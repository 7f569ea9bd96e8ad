package monitor

import (
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/mdouchement/rfboard"
	"github.com/mdouchement/rfboard/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRows(t *testing.T) {
	status := rfboard.Status{
		Uptime: rfboard.Duration{Duration: time.Minute},
		Channels: []rfboard.ChannelStatus{
			{ID: "battery_voltage", Unit: "V", Raw: 8.7, Debounced: 8.7, Primed: true},
			{ID: "load_current_1", Unit: "A", Raw: 0.15, Debounced: 0.06},
		},
		StateOfCharge:   0,
		BatteryCritical: true,
		CurrentLimit:    0.05,
		CurrentCeiling:  0.1,
		Overcurrent:     []string{"load_current_1"},
		Watchdog:        "running",
		Activities: []scheduler.Stat{
			{Name: "sensing", Core: 1, Period: 10 * time.Millisecond, Cycles: 42, LastError: "adc timeout"},
		},
	}

	got := rows(status)
	require.Len(t, got, 6)

	assert.Equal(t, table.Row{"battery_voltage", "  8.700V (raw   8.700V)"}, got[0])
	assert.Contains(t, got[1][1], "warming up")
	assert.Equal(t, table.Row{"state_of_charge", "  0% CRITICAL"}, got[2])
	assert.Equal(t, table.Row{"current_limit", "0.050A / 0.100A EXCEEDED by load_current_1"}, got[3])
	assert.Equal(t, table.Row{"watchdog", "running (uptime 1m0s)"}, got[4])
	assert.Equal(t, "activity.sensing", got[5][0])
	assert.Contains(t, got[5][1], "42 cycles every 10ms on core 1")
	assert.Contains(t, got[5][1], "adc timeout")
}
