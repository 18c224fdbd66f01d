package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SampleReceived()
	m.SampleReceived()
	m.SamplePersisted()
	m.CommandSet()
	m.CommandDelivered()
	m.Ack("ok")
	m.Ack("ok")
	m.Ack("invalid")
	m.StorageError("upsert_actuator")
	m.BroadcastError("ledStates")

	if got := testutil.ToFloat64(m.samplesReceived); got != 2 {
		t.Fatalf("expected received 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.samplesPersisted); got != 1 {
		t.Fatalf("expected persisted 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.acks.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected ok acks 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.acks.WithLabelValues("invalid")); got != 1 {
		t.Fatalf("expected invalid acks 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.storageErrors.WithLabelValues("upsert_actuator")); got != 1 {
		t.Fatalf("expected storage errors 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.broadcastErrors.WithLabelValues("ledStates")); got != 1 {
		t.Fatalf("expected broadcast errors 1, got %f", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SampleReceived()
	m.SamplePersisted()
	m.CommandSet()
	m.CommandDelivered()
	m.Ack("ok")
	m.StorageError("x")
	m.BroadcastError("y")
}

func TestDeviceActiveGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	active := false
	RegisterDeviceActive(reg, func() bool { return active })

	if n, err := testutil.GatherAndCount(reg, "sensorlink_device_active"); err != nil || n != 1 {
		t.Fatalf("expected one gauge series, got %d (%v)", n, err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if v := families[0].GetMetric()[0].GetGauge().GetValue(); v != 0 {
		t.Fatalf("expected 0 while inactive, got %f", v)
	}

	active = true
	families, _ = reg.Gather()
	if v := families[0].GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Fatalf("expected 1 while active, got %f", v)
	}
}
