package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/02loveslollipop/sensorlink/services/api/internal/actuator"
	"github.com/02loveslollipop/sensorlink/services/api/internal/sensor"
)

// MemoryStore keeps everything in process. It backs STORAGE=memory and the
// tests; data does not survive a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	samples    []sensor.Sample
	actuators  map[actuator.ID]bool
	lastUpdate *time.Time

	// Fail, when set, is returned wrapped in a StorageError by every call.
	Fail error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actuators: map[actuator.ID]bool{}}
}

func (m *MemoryStore) err(op string) error {
	if m.Fail != nil {
		return storageErr(op, m.Fail)
	}
	return nil
}

func (m *MemoryStore) LoadActuatorStates(context.Context) ([]actuator.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.err("load actuator states"); err != nil {
		return nil, err
	}
	rows := make([]actuator.Row, 0, len(m.actuators))
	for id, on := range m.actuators {
		rows = append(rows, actuator.Row{ID: id, On: on})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (m *MemoryStore) UpsertActuatorState(_ context.Context, id actuator.ID, on bool, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("upsert actuator state"); err != nil {
		return err
	}
	m.actuators[id] = on
	return nil
}

func (m *MemoryStore) LatestSample(context.Context) (*sensor.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.err("latest sample"); err != nil {
		return nil, err
	}
	if len(m.samples) == 0 {
		return nil, nil
	}
	s := m.samples[len(m.samples)-1]
	return &s, nil
}

// InsertSample keeps samples ordered by timestamp; equal timestamps keep
// insertion order.
func (m *MemoryStore) InsertSample(_ context.Context, s sensor.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("insert sample"); err != nil {
		return err
	}
	idx := sort.Search(len(m.samples), func(i int) bool {
		return m.samples[i].Timestamp().After(s.Timestamp())
	})
	m.samples = append(m.samples, sensor.Sample{})
	copy(m.samples[idx+1:], m.samples[idx:])
	m.samples[idx] = s

	ts := s.Timestamp().UTC()
	m.lastUpdate = &ts
	return nil
}

func (m *MemoryStore) ListSamples(_ context.Context, q SampleQuery) ([]sensor.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.err("list samples"); err != nil {
		return nil, err
	}
	out := make([]sensor.Sample, 0, len(m.samples))
	for _, s := range m.samples {
		ts := s.Timestamp()
		if q.Since != nil && ts.Before(*q.Since) {
			continue
		}
		if q.Until != nil && ts.After(*q.Until) {
			continue
		}
		out = append(out, s)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

func (m *MemoryStore) LastUpdate(context.Context) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.err("last update"); err != nil {
		return nil, err
	}
	if m.lastUpdate == nil {
		return nil, nil
	}
	ts := *m.lastUpdate
	return &ts, nil
}

// SampleCount reports how many samples are stored.
func (m *MemoryStore) SampleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples)
}

func (m *MemoryStore) Close() {}

var _ Gateway = (*MemoryStore)(nil)
