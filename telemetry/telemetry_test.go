package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEvent(t *testing.T) {
	payload, err := FormatEvent(Event{
		Timestamp: time.Date(2026, 3, 4, 10, 11, 12, 0, time.FixedZone("CET", 3600)),
		Event:     EventOvercurrent,
		Source:    "load_current_1",
		Message:   "0.120 A above 0.100 A",
	})
	require.NoError(t, err)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(payload, &parsed))
	assert.Equal(t, map[string]string{
		"timestamp": "2026-03-04T09:11:12Z",
		"event":     "OVERCURRENT",
		"source":    "load_current_1",
		"message":   "0.120 A above 0.100 A",
	}, parsed)
}

func TestFormatEvent_OmitsEmpty(t *testing.T) {
	payload, err := FormatEvent(Event{Timestamp: time.Unix(0, 0), Event: EventStartup})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"1970-01-01T00:00:00Z","event":"STARTUP"}`, string(payload))
}

func TestFake(t *testing.T) {
	var p Publisher = NewFake()
	f := p.(*Fake)

	require.NoError(t, p.PublishStatus([]byte(`{"soc":50}`)))
	require.NoError(t, p.PublishEvent(Event{Event: EventCritical}))
	require.NoError(t, p.Close())

	assert.Equal(t, [][]byte{[]byte(`{"soc":50}`)}, f.Statuses())
	assert.Equal(t, EventCritical, f.Events()[0].Event)
	assert.True(t, f.Closed())

	f.PublishError = errors.New("broker down")
	assert.Error(t, p.PublishStatus(nil))
	assert.Len(t, f.Statuses(), 1)
}

func TestNewMQTT_MissingBroker(t *testing.T) {
	_, err := NewMQTT(Config{})
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	var p Publisher = Discard{}
	assert.NoError(t, p.PublishStatus(nil))
	assert.NoError(t, p.PublishEvent(Event{}))
	assert.NoError(t, p.Close())
}
