// Package telemetry publishes the board status and events to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"time"
)

const (
	SuffixStatus = "/status"
	SuffixEvents = "/events"
)

const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventOffline     = "OFFLINE"
	EventCritical    = "BATTERY_CRITICAL"
	EventOvercurrent = "OVERCURRENT"
	EventCommand     = "COMMAND"
)

// A Publisher sends telemetry. Publishing failures must never stop the caller.
type Publisher interface {
	// PublishStatus sends a pre-formatted status snapshot.
	PublishStatus(payload []byte) error
	PublishEvent(event Event) error
	Close() error
}

type Event struct {
	Timestamp time.Time `json:"-"`
	Event     string    `json:"event"`
	Source    string    `json:"source,omitempty"`
	Message   string    `json:"message,omitempty"`
}

type eventPayload struct {
	Timestamp string `json:"timestamp"`
	Event
}

func FormatEvent(event Event) ([]byte, error) {
	return json.Marshal(eventPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event,
	})
}

// Discard drops everything, it is used when no broker is configured.
type Discard struct{}

func (Discard) PublishStatus([]byte) error { return nil }
func (Discard) PublishEvent(Event) error   { return nil }
func (Discard) Close() error               { return nil }
