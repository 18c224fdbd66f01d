package sensor

import (
	"math"
	"time"
)

// DefaultStalenessWindow bounds how long the store may go without a new row
// under a perfectly stable signal.
const DefaultStalenessWindow = 30 * time.Minute

// Filter decides whether a reading differs enough from the last stored one.
type Filter struct {
	thresholds map[Channel]float64
	staleness  time.Duration
}

// NewFilter builds a filter from channel specs. Channels with a non-positive
// threshold are ignored. A non-positive staleness falls back to the default.
func NewFilter(channels []ChannelSpec, staleness time.Duration) *Filter {
	if staleness <= 0 {
		staleness = DefaultStalenessWindow
	}
	thresholds := make(map[Channel]float64, len(channels))
	for _, ch := range channels {
		if ch.Threshold > 0 {
			thresholds[ch.Name] = ch.Threshold
		}
	}
	return &Filter{thresholds: thresholds, staleness: staleness}
}

// Staleness returns the configured staleness window.
func (f *Filter) Staleness() time.Duration {
	return f.staleness
}

// ShouldPersist reports whether candidate must be stored given the last
// stored sample. It is a pure function of its inputs.
func (f *Filter) ShouldPersist(candidate Sample, baseline *Sample, now time.Time) bool {
	if baseline == nil {
		return true
	}
	if now.Sub(baseline.Timestamp()) > f.staleness {
		return true
	}

	for ch, threshold := range f.thresholds {
		cur, ok := candidate.Value(ch)
		if !ok {
			continue
		}
		prev, ok := baseline.Value(ch)
		if !ok {
			continue
		}
		if math.Abs(cur-prev) >= threshold {
			return true
		}
	}
	return false
}
