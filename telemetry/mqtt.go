package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type Config struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
}

// MQTT publishes to an actual broker.
type MQTT struct {
	client paho.Client
	topic  string
}

func NewMQTT(c Config) (*MQTT, error) {
	if c.Broker == "" {
		return nil, errors.New("mqtt: missing broker")
	}
	if c.ClientID == "" {
		c.ClientID = "rfboard"
	}
	topic := strings.TrimSuffix(c.Topic, "/")
	if topic == "" {
		topic = "rfboard"
	}

	will, err := FormatEvent(Event{Timestamp: time.Now(), Event: EventOffline})
	if err != nil {
		return nil, fmt.Errorf("mqtt: format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(c.Broker).
		SetClientID(c.ClientID).
		SetUsername(c.Username).
		SetPassword(c.Password).
		SetBinaryWill(topic+SuffixEvents, will, 1, false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("mqtt: connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to broker: %w", err)
	}

	return &MQTT{
		client: client,
		topic:  topic,
	}, nil
}

// PublishStatus sends a retained snapshot so late subscribers get the latest status.
func (p *MQTT) PublishStatus(payload []byte) error {
	return p.publish(p.topic+SuffixStatus, 0, true, payload)
}

func (p *MQTT) PublishEvent(event Event) error {
	payload, err := FormatEvent(event)
	if err != nil {
		return fmt.Errorf("format event: %w", err)
	}

	return p.publish(p.topic+SuffixEvents, 1, false, payload)
}

func (p *MQTT) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("publish %s: not connected", topic)
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}

func (p *MQTT) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

func (p *MQTT) Close() error {
	p.client.Disconnect(1000)
	return nil
}
