package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/02loveslollipop/sensorlink/services/api/internal/actuator"
	"github.com/02loveslollipop/sensorlink/services/api/internal/sensor"
)

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const loadActuatorStatesSQL = `
    SELECT led, state
    FROM led_states
    ORDER BY led
`

// LoadActuatorStates returns every persisted actuator row.
func (s *Store) LoadActuatorStates(ctx context.Context) ([]actuator.Row, error) {
	rows, err := s.pool.Query(ctx, loadActuatorStatesSQL)
	if err != nil {
		return nil, storageErr("load actuator states", err)
	}
	defer rows.Close()

	out := make([]actuator.Row, 0)
	for rows.Next() {
		var id string
		var on bool
		if err := rows.Scan(&id, &on); err != nil {
			return nil, storageErr("load actuator states", err)
		}
		out = append(out, actuator.Row{ID: actuator.ID(id), On: on})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load actuator states", err)
	}
	return out, nil
}

const upsertActuatorStateSQL = `
    INSERT INTO led_states (led, state, updated_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (led) DO UPDATE
    SET state = EXCLUDED.state,
        updated_at = EXCLUDED.updated_at
`

// UpsertActuatorState stores one actuator state; repeating it is harmless.
func (s *Store) UpsertActuatorState(ctx context.Context, id actuator.ID, on bool, updatedAt time.Time) error {
	if _, err := s.pool.Exec(ctx, upsertActuatorStateSQL, string(id), on, updatedAt); err != nil {
		return storageErr("upsert actuator state", err)
	}
	return nil
}

const latestSampleSQL = `
    SELECT ts, readings, fan_on, motion
    FROM sensor_data
    ORDER BY ts DESC, id DESC
    LIMIT 1
`

// LatestSample returns the most recently stored sample, or nil when the
// table is empty.
func (s *Store) LatestSample(ctx context.Context) (*sensor.Sample, error) {
	row := s.pool.QueryRow(ctx, latestSampleSQL)

	var (
		ts       time.Time
		readings []byte
		fanOn    bool
		motion   bool
	)
	if err := row.Scan(&ts, &readings, &fanOn, &motion); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("latest sample", err)
	}

	values, err := decodeReadings(readings)
	if err != nil {
		return nil, storageErr("latest sample", err)
	}
	sample := sensor.NewSample(values, fanOn, motion, ts)
	return &sample, nil
}

const insertSampleSQL = `INSERT INTO sensor_data (ts, readings, fan_on, motion)
VALUES ($1, $2, $3, $4)`

const touchLastUpdateSQL = `INSERT INTO last_update (id, last_updated)
VALUES (1, $1)
ON CONFLICT (id) DO UPDATE
SET last_updated = EXCLUDED.last_updated`

// InsertSample appends a sample and stamps the last_update row.
func (s *Store) InsertSample(ctx context.Context, sample sensor.Sample) error {
	readings, err := encodeReadings(sample)
	if err != nil {
		return storageErr("insert sample", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(insertSampleSQL, sample.Timestamp().UTC(), readings, sample.FanOn(), sample.Motion())
	batch.Queue(touchLastUpdateSQL, sample.Timestamp().UTC())

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := res.Exec(); err != nil {
			return storageErr("insert sample", err)
		}
	}
	return nil
}

const listSamplesBase = `
    SELECT ts, readings, fan_on, motion
    FROM sensor_data
    WHERE TRUE
`

// listSamplesSQL builds the history query. Rows come newest first so LIMIT
// keeps the most recent ones; callers reverse them.
func listSamplesSQL(q SampleQuery) (string, []any) {
	args := []any{}
	clause := ""
	argPos := 1
	if q.Since != nil {
		clause += " AND ts >= $" + strconv.Itoa(argPos)
		args = append(args, *q.Since)
		argPos++
	}
	if q.Until != nil {
		clause += " AND ts <= $" + strconv.Itoa(argPos)
		args = append(args, *q.Until)
		argPos++
	}
	order := " ORDER BY ts DESC, id DESC"
	limit := ""
	if q.Limit > 0 {
		limit = " LIMIT $" + strconv.Itoa(argPos)
		args = append(args, q.Limit)
	}
	return strings.TrimRight(listSamplesBase, " \n") + clause + order + limit, args
}

// ListSamples returns stored samples matching q, oldest first.
func (s *Store) ListSamples(ctx context.Context, q SampleQuery) ([]sensor.Sample, error) {
	sql, args := listSamplesSQL(q)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageErr("list samples", err)
	}
	defer rows.Close()

	samples := make([]sensor.Sample, 0)
	for rows.Next() {
		var (
			ts       time.Time
			readings []byte
			fanOn    bool
			motion   bool
		)
		if err := rows.Scan(&ts, &readings, &fanOn, &motion); err != nil {
			return nil, storageErr("list samples", err)
		}
		values, err := decodeReadings(readings)
		if err != nil {
			return nil, storageErr("list samples", err)
		}
		samples = append(samples, sensor.NewSample(values, fanOn, motion, ts))
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list samples", err)
	}

	reverse(samples)
	return samples, nil
}

const lastUpdateSQL = `SELECT last_updated FROM last_update WHERE id = 1`

// LastUpdate returns when a sample was last stored, or nil if never.
func (s *Store) LastUpdate(ctx context.Context) (*time.Time, error) {
	var ts time.Time
	if err := s.pool.QueryRow(ctx, lastUpdateSQL).Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("last update", err)
	}
	return &ts, nil
}

// encodeReadings stores only the channels the sample actually reported, so
// a missing channel stays missing after a round trip.
func encodeReadings(s sensor.Sample) ([]byte, error) {
	values := s.Values()
	out := make(map[string]float64, len(values))
	for ch, v := range values {
		out[string(ch)] = v
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode readings: %w", err)
	}
	return b, nil
}

func decodeReadings(raw []byte) (map[sensor.Channel]float64, error) {
	if len(raw) == 0 {
		return map[sensor.Channel]float64{}, nil
	}
	var in map[string]*float64
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode readings: %w", err)
	}
	out := make(map[sensor.Channel]float64, len(in))
	for k, v := range in {
		if v != nil {
			out[sensor.Channel(k)] = *v
		}
	}
	return out, nil
}

func reverse(samples []sensor.Sample) {
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
}

var _ Gateway = (*Store)(nil)
