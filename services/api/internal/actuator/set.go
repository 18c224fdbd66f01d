package actuator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidActuator is returned for ids outside the configured set.
var ErrInvalidActuator = errors.New("invalid actuator id")

// ID names one actuator, e.g. "led1".
type ID string

// DefaultIDs is the stock three-LED board.
var DefaultIDs = []string{"led1", "led2", "led3"}

// Set is the closed collection of actuators fixed at configuration time.
type Set struct {
	ids   []ID
	index map[ID]struct{}
}

// NewSet validates ids: at least one, none empty, no duplicates.
func NewSet(ids ...string) (Set, error) {
	if len(ids) == 0 {
		return Set{}, errors.New("actuator set is empty")
	}
	s := Set{
		ids:   make([]ID, 0, len(ids)),
		index: make(map[ID]struct{}, len(ids)),
	}
	for _, raw := range ids {
		id := ID(strings.TrimSpace(raw))
		if id == "" {
			return Set{}, errors.New("actuator id is empty")
		}
		if _, dup := s.index[id]; dup {
			return Set{}, fmt.Errorf("duplicate actuator id %q", id)
		}
		s.index[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	return s, nil
}

// MustSet is NewSet for static, known-good ids.
func MustSet(ids ...string) Set {
	s, err := NewSet(ids...)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup resolves a raw id against the set.
func (s Set) Lookup(raw string) (ID, bool) {
	id := ID(raw)
	_, ok := s.index[id]
	return id, ok
}

// IDs returns the actuators in configuration order.
func (s Set) IDs() []ID {
	out := make([]ID, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of actuators.
func (s Set) Len() int { return len(s.ids) }

// States maps every actuator to on (true) or off.
type States map[ID]bool

// Clone returns an independent copy.
func (s States) Clone() States {
	out := make(States, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// OnCount returns how many actuators are on.
func (s States) OnCount() int {
	n := 0
	for _, on := range s {
		if on {
			n++
		}
	}
	return n
}

// Off returns an all-off map for set.
func Off(set Set) States {
	out := make(States, set.Len())
	for _, id := range set.ids {
		out[id] = false
	}
	return out
}
