// Package ingest runs every device reading through the spike filter, stores
// the significant ones and tells dashboards about all of them.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/02loveslollipop/sensorlink/services/api/internal/broadcast"
	"github.com/02loveslollipop/sensorlink/services/api/internal/liveness"
	"github.com/02loveslollipop/sensorlink/services/api/internal/metrics"
	"github.com/02loveslollipop/sensorlink/services/api/internal/sensor"
)

// SampleStore is the persistence the ingestor needs.
type SampleStore interface {
	LatestSample(ctx context.Context) (*sensor.Sample, error)
	InsertSample(ctx context.Context, s sensor.Sample) error
}

// Result describes what happened to one reading.
type Result struct {
	Sample    sensor.Sample
	Persisted bool
}

// Ingestor owns the watermark: the last stored sample, used as the
// comparison baseline for the next reading.
type Ingestor struct {
	store    SampleStore
	filter   *sensor.Filter
	liveness *liveness.Tracker
	bc       broadcast.Broadcaster
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time

	// mu makes "read watermark, decide, insert, advance watermark" one step.
	mu        sync.Mutex
	watermark *sensor.Sample
	loaded    bool
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

// WithMetrics attaches counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingestor) { i.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) { i.log = l }
}

// New creates an Ingestor. The watermark is loaded from store on first use.
func New(store SampleStore, filter *sensor.Filter, tracker *liveness.Tracker, bc broadcast.Broadcaster, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:    store,
		filter:   filter,
		liveness: tracker,
		bc:       bc,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.bc == nil {
		i.bc = broadcast.Nop{}
	}
	return i
}

// Ingest handles one reading. A storage failure is returned so the device
// can retry the whole reading; in that case nothing is broadcast and the
// watermark does not move.
func (i *Ingestor) Ingest(ctx context.Context, s sensor.Sample) (Result, error) {
	persist, err := i.record(ctx, s)
	if err != nil {
		return Result{}, err
	}

	// mu is not held here.
	if err := i.bc.Publish(ctx, broadcast.EventSensorData, s); err != nil {
		i.log.Warn("sensor_broadcast_failed", "event", broadcast.EventSensorData, "err", err)
	}
	if persist {
		if err := i.bc.Publish(ctx, broadcast.EventSavedSensorData, s); err != nil {
			i.log.Warn("sensor_broadcast_failed", "event", broadcast.EventSavedSensorData, "err", err)
		}
	}

	i.log.Debug("sample_ingested", "persisted", persist, "channels", len(s.Channels()), "fan_on", s.FanOn())
	return Result{Sample: s, Persisted: persist}, nil
}

// record runs the filter against the watermark and stores s if it is
// significant.
func (i *Ingestor) record(ctx context.Context, s sensor.Sample) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.loaded {
		latest, err := i.store.LatestSample(ctx)
		if err != nil {
			i.metrics.StorageError("latest_sample")
			return false, fmt.Errorf("load watermark: %w", err)
		}
		i.watermark = latest
		i.loaded = true
	}

	now := i.now()
	persist := i.filter.ShouldPersist(s, i.watermark, now)
	if persist {
		if err := i.store.InsertSample(ctx, s); err != nil {
			i.metrics.StorageError("insert_sample")
			return false, fmt.Errorf("insert sample: %w", err)
		}
		stored := s
		i.watermark = &stored
		i.metrics.SamplePersisted()
	}

	i.metrics.SampleReceived()
	i.liveness.RecordActivity(now)
	return persist, nil
}

// Watermark returns the current baseline, or nil if nothing was stored yet.
func (i *Ingestor) Watermark() *sensor.Sample {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.watermark == nil {
		return nil
	}
	w := *i.watermark
	return &w
}
