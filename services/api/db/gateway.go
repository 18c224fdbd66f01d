package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/02loveslollipop/sensorlink/services/api/internal/actuator"
	"github.com/02loveslollipop/sensorlink/services/api/internal/sensor"
)

// ErrStorage matches every persistence failure.
var ErrStorage = errors.New("storage error")

// StorageError records which operation failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Gateway is everything the API needs from persistence.
type Gateway interface {
	LoadActuatorStates(ctx context.Context) ([]actuator.Row, error)
	UpsertActuatorState(ctx context.Context, id actuator.ID, on bool, updatedAt time.Time) error
	LatestSample(ctx context.Context) (*sensor.Sample, error)
	InsertSample(ctx context.Context, s sensor.Sample) error
	ListSamples(ctx context.Context, q SampleQuery) ([]sensor.Sample, error)
	LastUpdate(ctx context.Context) (*time.Time, error)
	Close()
}

// SampleQuery filters stored samples. Results are oldest first; Limit keeps
// the most recent Limit rows.
type SampleQuery struct {
	Limit int
	Since *time.Time
	Until *time.Time
}
