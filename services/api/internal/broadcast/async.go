package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is reported for an event dropped to make room for a newer one.
var ErrQueueFull = errors.New("broadcast queue full")

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("broadcaster closed")

// DefaultQueueSize bounds how many events wait for a slow sink.
const DefaultQueueSize = 256

type queued struct {
	event   string
	payload any
}

// Async hands events to next from a single goroutine so a slow or
// unreachable sink never blocks the caller. When the queue is full the
// oldest event is dropped. Delivery order is publish order.
type Async struct {
	next        Broadcaster
	onError     func(event string, err error)
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan queued
	done   chan struct{}
}

// NewAsync starts the delivery goroutine. onError may be nil.
func NewAsync(next Broadcaster, size int, onError func(event string, err error)) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	a := &Async{
		next:        next,
		onError:     onError,
		sendTimeout: 10 * time.Second,
		queue:       make(chan queued, size),
		done:        make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish queues the event and returns immediately.
func (a *Async) Publish(_ context.Context, event string, payload any) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	q := queued{event: event, payload: payload}
	select {
	case a.queue <- q:
		return nil
	default:
	}

	select {
	case old := <-a.queue:
		a.report(old.event, ErrQueueFull)
	default:
	}
	select {
	case a.queue <- q:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued events.
func (a *Async) Pending() int {
	return len(a.queue)
}

// Close stops accepting events and waits for the queue to drain.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for q := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.sendTimeout)
		if err := a.next.Publish(ctx, q.event, q.payload); err != nil {
			a.report(q.event, err)
		}
		cancel()
	}
}

func (a *Async) report(event string, err error) {
	if a.onError != nil {
		a.onError(event, err)
	}
}
