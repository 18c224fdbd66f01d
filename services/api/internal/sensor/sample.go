// Package sensor holds the sensor reading model, the ingestion parser and the
// spike filter that decides which readings are worth storing.
package sensor

import (
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// ErrMalformedSample is returned when a reading misses a required field.
var ErrMalformedSample = errors.New("malformed sample")

// Channel names one optional numeric measurement (temperature, humidity, ...).
type Channel string

// ChannelSpec describes a configured channel: the request field it is read
// from and the minimum change that makes a new reading significant.
// A Threshold <= 0 keeps the channel out of spike detection.
type ChannelSpec struct {
	Name      Channel
	Field     string
	Threshold float64
}

// DefaultChannels matches the stock ESP32 firmware payload.
func DefaultChannels() []ChannelSpec {
	return []ChannelSpec{
		{Name: "temperature", Field: "temperature1", Threshold: 2.0},
		{Name: "humidity", Field: "humidity1", Threshold: 5.0},
		{Name: "voltage", Field: "voltage", Threshold: 2.0},
	}
}

// Sample is an immutable sensor reading. A channel missing from values is
// "not reported", which is different from a reported zero.
type Sample struct {
	values    map[Channel]float64
	fanOn     bool
	motion    bool
	timestamp time.Time
}

// NewSample copies values so later changes to the map do not leak in.
func NewSample(values map[Channel]float64, fanOn, motion bool, ts time.Time) Sample {
	cp := make(map[Channel]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Sample{values: cp, fanOn: fanOn, motion: motion, timestamp: ts}
}

// Value returns the channel value and whether it was reported.
func (s Sample) Value(ch Channel) (float64, bool) {
	v, ok := s.values[ch]
	return v, ok
}

// Values returns a copy of the reported channels.
func (s Sample) Values() map[Channel]float64 {
	cp := make(map[Channel]float64, len(s.values))
	for k, v := range s.values {
		cp[k] = v
	}
	return cp
}

// WithValue returns a copy of s with ch set to v.
func (s Sample) WithValue(ch Channel, v float64) Sample {
	values := s.Values()
	values[ch] = v
	return Sample{values: values, fanOn: s.fanOn, motion: s.motion, timestamp: s.timestamp}
}

// WithTimestamp returns a copy of s stamped with ts.
func (s Sample) WithTimestamp(ts time.Time) Sample {
	return Sample{values: s.Values(), fanOn: s.fanOn, motion: s.motion, timestamp: ts}
}

// FanOn reports the fan flag sent with the reading.
func (s Sample) FanOn() bool { return s.fanOn }

// Motion reports the motion flag sent with the reading.
func (s Sample) Motion() bool { return s.motion }

// Timestamp is when the reading was taken.
func (s Sample) Timestamp() time.Time { return s.timestamp }

// Channels lists the reported channels in name order.
func (s Sample) Channels() []Channel {
	out := make([]Channel, 0, len(s.values))
	for ch := range s.values {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON flattens channels next to the flags, as dashboards expect:
// {"temperature":25.1,"fanOn":true,"motion":false,"timestamp":"..."}.
func (s Sample) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.values)+3)
	for ch, v := range s.values {
		out[string(ch)] = v
	}
	out["fanOn"] = s.fanOn
	out["motion"] = s.motion
	out["timestamp"] = s.timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}
