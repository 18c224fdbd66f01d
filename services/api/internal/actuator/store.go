// Package actuator owns the authoritative on/off state of the board's
// actuators. At most one actuator may be on after any acknowledgment: the
// hardware shares one driver between them.
package actuator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/02loveslollipop/sensorlink/services/api/internal/broadcast"
	"github.com/02loveslollipop/sensorlink/services/api/internal/metrics"
)

// Row is one persisted actuator state.
type Row struct {
	ID ID
	On bool
}

// Gateway is the persistence the store needs.
type Gateway interface {
	LoadActuatorStates(ctx context.Context) ([]Row, error)
	UpsertActuatorState(ctx context.Context, id ID, on bool, updatedAt time.Time) error
}

// Store keeps the in-memory map, which is the source of truth for the
// process lifetime. Durability is best-effort: a failed write is logged and
// the in-memory transition stands.
type Store struct {
	set     Set
	gw      Gateway
	bc      broadcast.Broadcaster
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	// emitMu serializes transition+persist+publish so ledStates events
	// leave in the order transitions were applied. Readers only take mu.
	emitMu sync.Mutex

	mu     sync.RWMutex
	states States
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics attaches counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore creates a store with every actuator off. Call Initialize to load
// persisted states.
func NewStore(set Set, gw Gateway, bc broadcast.Broadcaster, opts ...Option) *Store {
	s := &Store{
		set:    set,
		gw:     gw,
		bc:     bc,
		log:    slog.Default(),
		now:    time.Now,
		states: Off(set),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bc == nil {
		s.bc = broadcast.Nop{}
	}
	return s
}

// Initialize loads persisted states. Rows for unknown ids are ignored. Any
// load failure leaves every actuator off; it is logged, never returned.
func (s *Store) Initialize(ctx context.Context) {
	rows, err := s.gw.LoadActuatorStates(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states = Off(s.set)
	if err != nil {
		s.metrics.StorageError("load_actuators")
		s.log.Error("actuator_load_failed", "err", err)
		return
	}
	for _, row := range rows {
		if _, ok := s.set.Lookup(string(row.ID)); !ok {
			s.log.Warn("actuator_load_unknown", "id", string(row.ID))
			continue
		}
		s.states[row.ID] = row.On
	}
	s.log.Info("actuator_states_loaded", "states", s.states.Clone(), "on", s.states.OnCount())
}

// ApplyAck records that the device switched id to on. Turning one actuator
// on turns every other one off in the same step, so no subscriber ever sees
// two on at once.
func (s *Store) ApplyAck(ctx context.Context, rawID string, on bool) (States, error) {
	id, ok := s.set.Lookup(rawID)
	if !ok {
		s.metrics.Ack("invalid")
		return nil, fmt.Errorf("%w: %q", ErrInvalidActuator, rawID)
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.states[id] = on
	if on {
		for other := range s.states {
			if other != id {
				s.states[other] = false
			}
		}
	}
	snap := s.states.Clone()
	s.mu.Unlock()

	s.metrics.Ack("ok")
	s.log.Info("actuator_ack", "id", string(id), "on", on)
	s.persistAndPublish(ctx, snap)
	return snap, nil
}

// SyncFullState overwrites the map with a full report from the device, sent
// at boot or after a reconnect. Unknown ids are skipped. Mutual exclusion is
// deliberately not re-applied: the device reports what is physically on.
// A report naming no known actuator is rejected.
func (s *Store) SyncFullState(ctx context.Context, reported map[string]bool) (States, error) {
	known := make(map[ID]bool, len(reported))
	for raw, on := range reported {
		id, ok := s.set.Lookup(raw)
		if !ok {
			s.log.Warn("actuator_sync_unknown", "id", raw)
			continue
		}
		known[id] = on
	}
	if len(known) == 0 {
		s.metrics.Ack("invalid")
		return nil, fmt.Errorf("%w: report names no configured actuator", ErrInvalidActuator)
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	for id, on := range known {
		s.states[id] = on
	}
	snap := s.states.Clone()
	s.mu.Unlock()

	s.metrics.Ack("sync")
	if snap.OnCount() > 1 {
		s.log.Warn("actuator_sync_multiple_on", "states", snap)
	}
	s.log.Info("actuator_sync", "states", snap)
	s.persistAndPublish(ctx, snap)
	return snap, nil
}

// All returns a copy of the current map.
func (s *Store) All() States {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states.Clone()
}

// persistTimeout bounds the writes that follow an accepted transition.
const persistTimeout = 10 * time.Second

// persistAndPublish writes every entry, since others may have just been
// forced off, then broadcasts the full map. Failures never undo the transition.
// The writes outlive the caller's context: once the map has changed, a
// disconnected device must not leave storage half updated.
func (s *Store) persistAndPublish(ctx context.Context, snap States) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	at := s.now().UTC()
	for _, id := range s.set.ids {
		if err := s.gw.UpsertActuatorState(ctx, id, snap[id], at); err != nil {
			s.metrics.StorageError("upsert_actuator")
			s.log.Error("actuator_persist_failed", "id", string(id), "on", snap[id], "err", err)
		}
	}
	if err := s.bc.Publish(ctx, broadcast.EventActuatorStates, snap); err != nil {
		s.log.Warn("actuator_broadcast_failed", "err", err)
	}
}
