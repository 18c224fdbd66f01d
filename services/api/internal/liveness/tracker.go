// Package liveness infers whether the device is connected from the timing of
// its traffic.
package liveness

import (
	"sync"
	"time"
)

// DefaultWindow is how long the device may stay silent and still count as active.
const DefaultWindow = 30 * time.Second

// Status is the view served to dashboards.
type Status struct {
	Active   bool       `json:"active"`
	LastPing *time.Time `json:"lastPing"`
}

// Tracker holds the last observed activity behind an RWMutex.
type Tracker struct {
	window time.Duration

	mu   sync.RWMutex
	last time.Time
	seen bool
}

// NewTracker creates a Tracker. A non-positive window falls back to DefaultWindow.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{window: window}
}

// RecordActivity marks the device as seen at now. Older timestamps never
// move the record backwards.
func (t *Tracker) RecordActivity(now time.Time) {
	t.mu.Lock()
	if !t.seen || now.After(t.last) {
		t.last = now
		t.seen = true
	}
	t.mu.Unlock()
}

// IsActive reports whether activity was seen within the window before now.
func (t *Tracker) IsActive(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.seen {
		return false
	}
	return now.Sub(t.last) < t.window
}

// Status returns a point-in-time view for the given instant.
func (t *Tracker) Status(now time.Time) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.seen {
		return Status{}
	}
	last := t.last
	return Status{
		Active:   now.Sub(last) < t.window,
		LastPing: &last,
	}
}
