// Package metrics exposes Prometheus counters for the device bridge. All
// methods are safe on a nil *Metrics so components can run without metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge counters. A nil *Metrics records nothing.
type Metrics struct {
	samplesReceived   prometheus.Counter
	samplesPersisted  prometheus.Counter
	commandsSet       prometheus.Counter
	commandsDelivered prometheus.Counter
	acks              *prometheus.CounterVec
	storageErrors     *prometheus.CounterVec
	broadcastErrors   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samplesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorlink_samples_received_total",
			Help: "Sensor readings accepted from the device.",
		}),
		samplesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorlink_samples_persisted_total",
			Help: "Sensor readings stored after passing the spike filter.",
		}),
		commandsSet: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorlink_commands_set_total",
			Help: "Actuator commands queued by dashboards.",
		}),
		commandsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorlink_commands_delivered_total",
			Help: "Pending commands handed to the polling device.",
		}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorlink_acks_total",
			Help: "Actuator acknowledgments and state syncs by result.",
		}, []string{"result"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorlink_storage_errors_total",
			Help: "Failed persistence calls by operation.",
		}, []string{"op"}),
		broadcastErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorlink_broadcast_errors_total",
			Help: "Failed event publications by event name.",
		}, []string{"event"}),
	}

	reg.MustRegister(
		m.samplesReceived,
		m.samplesPersisted,
		m.commandsSet,
		m.commandsDelivered,
		m.acks,
		m.storageErrors,
		m.broadcastErrors,
	)
	return m
}

// RegisterDeviceActive exposes the liveness state as a 0/1 gauge evaluated at scrape time.
func RegisterDeviceActive(reg prometheus.Registerer, active func() bool) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sensorlink_device_active",
		Help: "1 if the device was heard from within the liveness window.",
	}, func() float64 {
		if active() {
			return 1
		}
		return 0
	}))
}

// SampleReceived counts a reading accepted from the device.
func (m *Metrics) SampleReceived() {
	if m != nil {
		m.samplesReceived.Inc()
	}
}

// SamplePersisted counts a reading that passed the spike filter and was stored.
func (m *Metrics) SamplePersisted() {
	if m != nil {
		m.samplesPersisted.Inc()
	}
}

// CommandSet counts a command queued for the device.
func (m *Metrics) CommandSet() {
	if m != nil {
		m.commandsSet.Inc()
	}
}

// CommandDelivered counts a pending command handed to a poll.
func (m *Metrics) CommandDelivered() {
	if m != nil {
		m.commandsDelivered.Inc()
	}
}

// Ack counts an acknowledgment outcome ("ok", "invalid", "sync").
func (m *Metrics) Ack(result string) {
	if m != nil {
		m.acks.WithLabelValues(result).Inc()
	}
}

// StorageError counts a failed persistence call, labelled by op.
func (m *Metrics) StorageError(op string) {
	if m != nil {
		m.storageErrors.WithLabelValues(op).Inc()
	}
}

// BroadcastError counts a failed publication of event.
func (m *Metrics) BroadcastError(event string) {
	if m != nil {
		m.broadcastErrors.WithLabelValues(event).Inc()
	}
}
