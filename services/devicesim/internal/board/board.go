// Package board models the sensor/actuator board: it produces readings and
// applies action tokens such as "led2_on".
package board

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"
)

// ErrUnknownAction is returned for tokens the board cannot apply.
var ErrUnknownAction = errors.New("unknown action")

// dropoutSentinel is what a failed sensor read returns on the board.
const dropoutSentinel = -999.0

// Reading is the JSON body the firmware posts. A nil channel is sent as null.
type Reading struct {
	Temperature *float64 `json:"temperature1"`
	Humidity    *float64 `json:"humidity1"`
	Voltage     *float64 `json:"voltage"`
	FanOn       bool     `json:"fanOn"`
	Motion      bool     `json:"motion"`
	Timestamp   int64    `json:"timestamp"`
}

// Board holds simulated sensor drift and actuator outputs. It is not safe
// for concurrent use.
type Board struct {
	rng     *rand.Rand
	dropout float64

	temperature float64
	humidity    float64
	voltage     float64
	fanOn       bool

	leds  []string
	state map[string]bool
}

// New creates a board with all actuators off.
func New(leds []string, seed int64, dropout float64) *Board {
	b := &Board{
		rng:         rand.New(rand.NewSource(seed)),
		dropout:     dropout,
		temperature: 22,
		humidity:    55,
		voltage:     12,
		leds:        append([]string(nil), leds...),
		state:       make(map[string]bool, len(leds)),
	}
	for _, id := range leds {
		b.state[id] = false
	}
	return b
}

// Next advances the random walk and returns a reading stamped with now.
func (b *Board) Next(now time.Time) Reading {
	b.temperature = clamp(b.temperature+b.rng.NormFloat64()*0.8, -10, 50)
	b.humidity = clamp(b.humidity+b.rng.NormFloat64()*2, 0, 100)
	b.voltage = clamp(b.voltage+b.rng.NormFloat64()*0.5, 0, 15)
	// the fan follows temperature with some hysteresis
	if b.temperature > 28 {
		b.fanOn = true
	} else if b.temperature < 25 {
		b.fanOn = false
	}

	return Reading{
		Temperature: NormalizeValue(b.sample(b.temperature)),
		Humidity:    NormalizeValue(b.sample(b.humidity)),
		Voltage:     NormalizeValue(b.sample(b.voltage)),
		FanOn:       b.fanOn,
		Motion:      b.rng.Float64() < 0.1,
		Timestamp:   now.UnixMilli(),
	}
}

func (b *Board) sample(v float64) float64 {
	if b.rng.Float64() < b.dropout {
		return dropoutSentinel
	}
	return math.Round(v*10) / 10
}

// NormalizeValue turns the dropout sentinel into a missing value.
func NormalizeValue(v float64) *float64 {
	if v <= -900 || math.IsNaN(v) {
		return nil
	}
	return &v
}

// ParseAction splits "led2_on" into ("led2", true).
func ParseAction(action string) (string, bool, error) {
	action = strings.ToLower(strings.TrimSpace(action))
	idx := strings.LastIndex(action, "_")
	if idx <= 0 {
		return "", false, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	id, verb := action[:idx], action[idx+1:]
	switch verb {
	case "on":
		return id, true, nil
	case "off":
		return id, false, nil
	default:
		return "", false, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Apply switches an actuator. The outputs share one driver, so switching
// one on releases the others.
func (b *Board) Apply(action string) (string, bool, error) {
	id, on, err := ParseAction(action)
	if err != nil {
		return "", false, err
	}
	if _, ok := b.state[id]; !ok {
		return "", false, fmt.Errorf("%w: no actuator %q", ErrUnknownAction, id)
	}
	if on {
		for other := range b.state {
			b.state[other] = false
		}
	}
	b.state[id] = on
	return id, on, nil
}

// States returns a copy of the actuator outputs.
func (b *Board) States() map[string]bool {
	out := make(map[string]bool, len(b.state))
	for id, on := range b.state {
		out[id] = on
	}
	return out
}

// OnIDs lists the actuators that are on, sorted.
func (b *Board) OnIDs() []string {
	var ids []string
	for id, on := range b.state {
		if on {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ValueString prints optional values for logging.
func ValueString(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.1f", *v)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
