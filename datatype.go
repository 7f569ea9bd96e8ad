package rfboard

import (
	"time"

	"github.com/mdouchement/rfboard/scheduler"
	"github.com/mdouchement/rfboard/sensor"
)

// A Link exchanges text frames with a remote client.
type Link interface {
	ReadFrames() ([]string, error)
	WriteFrame(text string) error
}

type ChannelStatus struct {
	ID        string  `json:"id"`
	Unit      string  `json:"unit"`
	Raw       float64 `json:"raw"`
	Debounced float64 `json:"debounced"`
	Primed    bool    `json:"primed"`
}

// Status is a point-in-time snapshot of the board.
type Status struct {
	Timestamp       time.Time        `json:"timestamp"`
	Uptime          Duration         `json:"uptime"`
	Channels        []ChannelStatus  `json:"channels"`
	StateOfCharge   int              `json:"state_of_charge"`
	BatteryCritical bool             `json:"battery_critical"`
	CurrentLimit    float64          `json:"current_limit"`
	CurrentCeiling  float64          `json:"current_ceiling"`
	Overcurrent     []string         `json:"overcurrent,omitempty"`
	Frequency       string           `json:"frequency,omitempty"`
	LastCommand     string           `json:"last_command,omitempty"`
	Watchdog        string           `json:"watchdog"`
	Activities      []scheduler.Stat `json:"activities,omitempty"`
}

func (s Status) Channel(id sensor.ID) (ChannelStatus, bool) {
	for _, c := range s.Channels {
		if c.ID == id.String() {
			return c, true
		}
	}
	return ChannelStatus{}, false
}

type LimitRequest struct {
	Limit float64 `json:"limit"`
}

type LimitResponse struct {
	Requested float64 `json:"requested"`
	Applied   float64 `json:"applied"`
}

func ToPtr[T any](v T) *T {
	return &v
}

const (
	eventRefreshWatchers = "refresh-watchers"
	eventWatch           = "watch"
	eventUnwatch         = "unwatch"
)

type event struct {
	name      string
	monitorID int64
	monitor   chan<- []byte
}

func genID() int64 {
	time.Sleep(time.Nanosecond)
	return time.Now().UnixNano()
}
