package sensor

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseReading(t *testing.T) {
	now := time.Date(2026, 2, 11, 13, 0, 0, 0, time.UTC)
	body := `{"temperature1": 24.5, "humidity1": "61.2", "voltage": null, "fanOn": "on", "motion": true, "timestamp": 123}`

	s, err := ParseReading([]byte(body), DefaultChannels(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v, ok := s.Value("temperature"); !ok || v != 24.5 {
		t.Errorf("temperature: got %v (%v), want 24.5", v, ok)
	}
	if v, ok := s.Value("humidity"); !ok || v != 61.2 {
		t.Errorf("humidity: got %v (%v), want 61.2", v, ok)
	}
	if _, ok := s.Value("voltage"); ok {
		t.Error("null voltage should be absent")
	}
	if !s.FanOn() {
		t.Error("fanOn \"on\" should parse as true")
	}
	if !s.Motion() {
		t.Error("motion should be true")
	}
	if !s.Timestamp().Equal(now) {
		t.Errorf("timestamp: got %v, want server time %v", s.Timestamp(), now)
	}
}

func TestParseReadingKeepsZeroDistinctFromMissing(t *testing.T) {
	body := `{"temperature1": 0, "humidity1": "not-a-number", "voltage": "", "fanOn": false, "timestamp": "x"}`
	s, err := ParseReading([]byte(body), DefaultChannels(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := s.Value("temperature"); !ok || v != 0 {
		t.Errorf("zero temperature should be kept, got %v (%v)", v, ok)
	}
	if _, ok := s.Value("humidity"); ok {
		t.Error("garbage humidity should be absent, not zero")
	}
	if _, ok := s.Value("voltage"); ok {
		t.Error("empty voltage should be absent, not zero")
	}
}

func TestParseReadingMissingRequired(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no fanOn", `{"temperature1": 20, "timestamp": 1}`},
		{"no timestamp", `{"temperature1": 20, "fanOn": true}`},
		{"not an object", `[1,2,3]`},
		{"null", `null`},
		{"broken json", `{"fanOn":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReading([]byte(tt.body), DefaultChannels(), time.Now())
			if !errors.Is(err, ErrMalformedSample) {
				t.Errorf("expected ErrMalformedSample, got %v", err)
			}
		})
	}
}

func TestParseReadingFieldDefaultsToName(t *testing.T) {
	channels := []ChannelSpec{{Name: "current", Threshold: 0.5}}
	s, err := ParseReading([]byte(`{"current": 1.25, "fanOn": 1, "timestamp": 0}`), channels, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := s.Value("current"); !ok || v != 1.25 {
		t.Errorf("current: got %v (%v)", v, ok)
	}
	if !s.FanOn() {
		t.Error("numeric 1 should be on")
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{true, true},
		{false, false},
		{"true", true},
		{"ON", true},
		{"1", true},
		{"off", false},
		{"false", false},
		{json.Number("1"), true},
		{json.Number("0"), false},
		{float64(2), true},
		{nil, false},
	}
	for _, tt := range tests {
		if got := ParseFlag(tt.in); got != tt.want {
			t.Errorf("ParseFlag(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSampleIsImmutable(t *testing.T) {
	values := map[Channel]float64{"temperature": 20}
	s := NewSample(values, false, false, time.Now())
	values["temperature"] = 99

	if v, _ := s.Value("temperature"); v != 20 {
		t.Errorf("sample changed through source map: %v", v)
	}

	got := s.Values()
	got["temperature"] = 50
	if v, _ := s.Value("temperature"); v != 20 {
		t.Errorf("sample changed through Values copy: %v", v)
	}

	s2 := s.WithValue("temperature", 30)
	if v, _ := s.Value("temperature"); v != 20 {
		t.Errorf("WithValue mutated receiver: %v", v)
	}
	if v, _ := s2.Value("temperature"); v != 30 {
		t.Errorf("WithValue copy: got %v, want 30", v)
	}
}

func TestSampleMarshalJSON(t *testing.T) {
	ts := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)
	s := NewSample(map[Channel]float64{"temperature": 25}, true, false, ts)

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["temperature"] != 25.0 {
		t.Errorf("temperature: got %v", got["temperature"])
	}
	if got["fanOn"] != true {
		t.Errorf("fanOn: got %v", got["fanOn"])
	}
	if got["timestamp"] != "2026-02-11T12:00:00Z" {
		t.Errorf("timestamp: got %v", got["timestamp"])
	}
	if _, ok := got["humidity"]; ok {
		t.Error("unreported channel should not be serialized")
	}
}
