package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopicPrefix is where MQTT mirrors are published: <prefix>/<event>.
const DefaultTopicPrefix = "sensorlink/events"

// MQTT mirrors events to a broker. Actuator state is retained so a late
// subscriber immediately receives the current map.
type MQTT struct {
	client paho.Client
	prefix string
}

// NewMQTT connects to broker and returns a publisher.
func NewMQTT(broker, clientID, prefix string) (*MQTT, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	return connectMQTT(paho.NewClient(opts), 10*time.Second, prefix)
}

// connectMQTT waits up to wait for the first connection. A broker that is
// still unreachable is not an error: the client keeps retrying in the
// background and publishes fail until it connects.
func connectMQTT(client paho.Client, wait time.Duration, prefix string) (*MQTT, error) {
	token := client.Connect()
	if !token.WaitTimeout(wait) {
		return newMQTT(client, prefix), nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return newMQTT(client, prefix), nil
}

func newMQTT(client paho.Client, prefix string) *MQTT {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTT{client: client, prefix: strings.TrimRight(prefix, "/")}
}

// Topic returns the topic used for event.
func (m *MQTT) Topic(event string) string {
	return m.prefix + "/" + event
}

// Publish sends the event with QoS 0.
func (m *MQTT) Publish(_ context.Context, event string, payload any) error {
	msg, err := Encode(event, payload)
	if err != nil {
		return err
	}

	retained := event == EventActuatorStates
	token := m.client.Publish(m.Topic(event), 0, retained, msg)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish %s timeout", event)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", event, err)
	}
	return nil
}

// IsConnected reports the broker connection state.
func (m *MQTT) IsConnected() bool {
	return m.client.IsConnected()
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(1000)
	return nil
}
