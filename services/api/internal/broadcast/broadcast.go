// Package broadcast fans named events out to whoever is listening: dashboard
// websockets, an MQTT broker, a Kafka topic. Delivery is best-effort.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Event names understood by the dashboard.
const (
	EventSensorData      = "sensorData"
	EventSavedSensorData = "savedSensorData"
	EventActuatorStates  = "ledStates"
	EventCommandUpdate   = "commandUpdate"
)

// Broadcaster publishes an event to every current subscriber.
// Errors are informational; callers never roll back on them.
type Broadcaster interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Envelope is the wire shape shared by all transports.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode wraps payload into an Envelope and marshals it.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Multi publishes to every broadcaster and joins their errors.
type Multi []Broadcaster

func (m Multi) Publish(ctx context.Context, event string, payload any) error {
	var errs []error
	for _, b := range m {
		if b == nil {
			continue
		}
		if err := b.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrorHook calls fn for every failed publish and passes the error through.
type ErrorHook struct {
	Next    Broadcaster
	OnError func(event string, err error)
}

func (h ErrorHook) Publish(ctx context.Context, event string, payload any) error {
	err := h.Next.Publish(ctx, event, payload)
	if err != nil && h.OnError != nil {
		h.OnError(event, err)
	}
	return err
}

// Nop drops everything.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Message is one event captured by a Recorder.
type Message struct {
	Event   string
	Payload any
}

// Recorder keeps published events in memory for test assertions.
type Recorder struct {
	mu       sync.Mutex
	messages []Message

	// PublishError, if set, is returned by Publish after recording.
	PublishError error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Event: event, Payload: payload})
	return r.PublishError
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Events returns only the recorded messages with the given name.
func (r *Recorder) Events(event string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// Reset clears recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.PublishError = nil
	r.mu.Unlock()
}
