package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
)

func TestEncode(t *testing.T) {
	raw, err := Encode(EventActuatorStates, map[string]bool{"led1": true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if env.Event != "ledStates" {
		t.Errorf("event: got %s", env.Event)
	}
	if string(env.Data) != `{"led1":true}` {
		t.Errorf("data: got %s", env.Data)
	}

	if _, err := Encode("bad", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable payload")
	}
}

func TestMultiPublishesToAll(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	b.PublishError = errors.New("broker down")

	m := Multi{a, nil, b}
	err := m.Publish(context.Background(), EventCommandUpdate, "led1_on")
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.Messages()) != 1 || len(b.Messages()) != 1 {
		t.Errorf("expected both recorders to receive the event, got %d and %d", len(a.Messages()), len(b.Messages()))
	}
}

func TestErrorHook(t *testing.T) {
	rec := NewRecorder()
	rec.PublishError = errors.New("boom")

	var got []string
	h := ErrorHook{Next: rec, OnError: func(event string, err error) { got = append(got, event) }}

	if err := h.Publish(context.Background(), EventSensorData, 1); err == nil {
		t.Fatal("expected error to pass through")
	}
	rec.Reset()
	if err := h.Publish(context.Background(), EventSensorData, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != EventSensorData {
		t.Errorf("hook calls: %v", got)
	}
}

func TestRecorderEvents(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()
	_ = rec.Publish(ctx, EventSensorData, 1)
	_ = rec.Publish(ctx, EventSavedSensorData, 2)
	_ = rec.Publish(ctx, EventSensorData, 3)

	got := rec.Events(EventSensorData)
	if len(got) != 2 || got[0].Payload != 1 || got[1].Payload != 3 {
		t.Errorf("unexpected events: %+v", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDeliversToClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conns := make([]*websocket.Conn, 2)
	for i := range conns {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()
		conns[i] = conn
	}
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	if err := hub.Publish(context.Background(), EventActuatorStates, map[string]bool{"led2": true}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for i, conn := range conns {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d read: %v", i, err)
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("client %d invalid JSON: %v", i, err)
		}
		if env.Event != EventActuatorStates || string(env.Data) != `{"led2":true}` {
			t.Errorf("client %d got %s %s", i, env.Event, env.Data)
		}
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

// fakeToken completes immediately.
type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// pendingToken never completes, like a connect to an unreachable broker.
type pendingToken struct{ fakeToken }

func (pendingToken) WaitTimeout(time.Duration) bool { return false }

// fakeClient implements the parts of paho.Client the publisher uses.
type fakeClient struct {
	paho.Client
	mu      sync.Mutex
	msgs    []published
	err     error
	connect paho.Token
}

func (f *fakeClient) Connect() paho.Token {
	if f.connect == nil {
		return fakeToken{}
	}
	return f.connect
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return fakeToken{err: f.err}
}

func (f *fakeClient) IsConnected() bool { return true }
func (f *fakeClient) Disconnect(uint)   {}

func TestMQTTPublish(t *testing.T) {
	fc := &fakeClient{}
	m := newMQTT(fc, "home/esp/")

	ctx := context.Background()
	if err := m.Publish(ctx, EventSensorData, map[string]float64{"temperature": 21}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := m.Publish(ctx, EventActuatorStates, map[string]bool{"led1": false}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(fc.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(fc.msgs))
	}
	if fc.msgs[0].topic != "home/esp/sensorData" || fc.msgs[0].retained {
		t.Errorf("sensor message: %+v", fc.msgs[0])
	}
	if fc.msgs[1].topic != "home/esp/ledStates" || !fc.msgs[1].retained {
		t.Errorf("actuator states should be retained: %+v", fc.msgs[1])
	}
	if !m.IsConnected() {
		t.Error("expected connected")
	}
}

func TestMQTTPublishError(t *testing.T) {
	fc := &fakeClient{err: errors.New("not connected")}
	m := newMQTT(fc, "")
	if m.Topic("x") != DefaultTopicPrefix+"/x" {
		t.Errorf("default prefix not applied: %s", m.Topic("x"))
	}
	if err := m.Publish(context.Background(), EventCommandUpdate, "led1_on"); err == nil {
		t.Error("expected publish error")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublish(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{w: w, timeout: time.Second}

	if err := k.Publish(context.Background(), EventSavedSensorData, map[string]int{"a": 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != EventSavedSensorData {
		t.Errorf("key: got %s", w.msgs[0].Key)
	}

	w.err = errors.New("leader not available")
	if err := k.Publish(context.Background(), EventSavedSensorData, 1); err == nil {
		t.Error("expected error")
	}
}

func TestConnectMQTTUnreachableBrokerIsNotFatal(t *testing.T) {
	m, err := connectMQTT(&fakeClient{connect: pendingToken{}}, 10*time.Millisecond, "")
	if err != nil || m == nil {
		t.Fatalf("a broker that is still connecting should not fail startup: %v", err)
	}

	_, err = connectMQTT(&fakeClient{connect: fakeToken{err: errors.New("bad credentials")}}, time.Second, "")
	if err == nil {
		t.Error("a refused connection should be reported")
	}
}

// stallWriter blocks like a writer whose brokers are unreachable.
type stallWriter struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (w *stallWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.release:
		return nil
	}
}

func (w *stallWriter) Close() error { return nil }

func TestAsyncDoesNotWaitForStalledSink(t *testing.T) {
	w := &stallWriter{release: make(chan struct{})}
	k := &Kafka{w: w, timeout: 5 * time.Second}

	var mu sync.Mutex
	dropped := 0
	a := NewAsync(k, 4, func(event string, err error) {
		if errors.Is(err, ErrQueueFull) {
			mu.Lock()
			dropped++
			mu.Unlock()
		}
	})

	start := time.Now()
	for i := 0; i < 20; i++ {
		if err := a.Publish(context.Background(), EventSensorData, i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("publish waited on the sink for %v", elapsed)
	}
	if a.Pending() > 4 {
		t.Errorf("queue exceeded its bound: %d", a.Pending())
	}

	close(w.release)
	a.Close()

	mu.Lock()
	defer mu.Unlock()
	if dropped == 0 {
		t.Error("overflow should drop and report old events")
	}
}

func TestAsyncDeliversInOrder(t *testing.T) {
	rec := NewRecorder()
	a := NewAsync(rec, 0, nil)
	for i := 0; i < 10; i++ {
		_ = a.Publish(context.Background(), EventActuatorStates, i)
	}
	a.Close()

	msgs := rec.Messages()
	if len(msgs) != 10 {
		t.Fatalf("expected 10 deliveries, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Payload.(int) != i {
			t.Fatalf("delivery %d out of order: %v", i, m.Payload)
		}
	}

	if err := a.Publish(context.Background(), EventSensorData, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("publish after close: %v", err)
	}
}

func TestAsyncReportsSinkErrors(t *testing.T) {
	rec := NewRecorder()
	rec.PublishError = errors.New("broker gone")
	got := make(chan string, 1)
	a := NewAsync(rec, 1, func(event string, err error) { got <- event })

	if err := a.Publish(context.Background(), EventCommandUpdate, "led1_on"); err != nil {
		t.Fatalf("publish should not surface sink errors: %v", err)
	}
	a.Close()
	if ev := <-got; ev != EventCommandUpdate {
		t.Errorf("reported event: %s", ev)
	}
}
