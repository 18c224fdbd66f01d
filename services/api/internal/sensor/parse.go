package sensor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field names of the device payload that are not numeric channels.
const (
	FieldFanOn     = "fanOn"
	FieldMotion    = "motion"
	FieldTimestamp = "timestamp"
)

// ParseReading turns a raw device payload into a Sample stamped with now.
// fanOn and timestamp must be present; the device clock is not trusted so
// the timestamp value itself is ignored. Numeric channels that are null,
// non-numeric, NaN or infinite are dropped rather than coerced to zero.
func ParseReading(body []byte, channels []ChannelSpec, now time.Time) (Sample, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrMalformedSample, err)
	}
	if raw == nil {
		return Sample{}, fmt.Errorf("%w: empty body", ErrMalformedSample)
	}

	fan, ok := raw[FieldFanOn]
	if !ok {
		return Sample{}, fmt.Errorf("%w: missing %s", ErrMalformedSample, FieldFanOn)
	}
	if _, ok := raw[FieldTimestamp]; !ok {
		return Sample{}, fmt.Errorf("%w: missing %s", ErrMalformedSample, FieldTimestamp)
	}

	values := make(map[Channel]float64, len(channels))
	for _, spec := range channels {
		field := spec.Field
		if field == "" {
			field = string(spec.Name)
		}
		if v, ok := parseNumber(raw[field]); ok {
			values[spec.Name] = v
		}
	}

	return Sample{
		values:    values,
		fanOn:     ParseFlag(fan),
		motion:    ParseFlag(raw[FieldMotion]),
		timestamp: now,
	}, nil
}

func parseNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseFlag interprets the boolean-like values the firmware sends:
// true, "true", "on", "1" and non-zero numbers are on, anything else is off.
func ParseFlag(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "on", "1":
			return true
		}
		return false
	case json.Number:
		f, err := b.Float64()
		return err == nil && f != 0
	case float64:
		return b != 0
	default:
		return false
	}
}
