package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultKafkaTopic receives the event stream when Kafka is enabled.
const DefaultKafkaTopic = "sensorlink.events"

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka mirrors events to a topic for downstream consumers. Messages are
// keyed by event name so each event keeps its order within a partition.
type Kafka struct {
	w       messageWriter
	timeout time.Duration
}

// NewKafka creates a publisher writing to topic on the given brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Kafka{w: w, timeout: 5 * time.Second}
}

func (k *Kafka) Publish(ctx context.Context, event string, payload any) error {
	msg, err := Encode(event, payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if err := k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event),
		Value: msg,
		Time:  time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("kafka publish %s: %w", event, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
