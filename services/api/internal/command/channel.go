// Package command holds the single pending actuator command waiting for the
// device to poll it.
//
// The slot is not a queue: a new command overwrites an undelivered one, and
// a command the device never polls is silently lost. The acknowledgment the
// device posts after applying a command is the only confirmation. One poller
// is assumed; concurrent pollers would each see a command at most once, so
// delivery is never fanned out.
package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/02loveslollipop/sensorlink/services/api/internal/broadcast"
	"github.com/02loveslollipop/sensorlink/services/api/internal/metrics"
)

// ErrEmptyAction rejects a command with no action token.
var ErrEmptyAction = errors.New("missing action")

// Command is an opaque action token such as "led1_on".
type Command struct {
	ID       uuid.UUID `json:"id"`
	Action   string    `json:"action"`
	IssuedAt time.Time `json:"issued_at"`
}

// Channel is the single-slot mailbox between dashboards and the device.
type Channel struct {
	bc      broadcast.Broadcaster
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	// emitMu keeps commandUpdate events in the order the slot was written.
	emitMu sync.Mutex

	mu      sync.Mutex
	pending *Command
}

// Option configures a Channel.
type Option func(*Channel)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

// WithMetrics attaches counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// NewChannel creates an empty channel publishing to bc.
func NewChannel(bc broadcast.Broadcaster, opts ...Option) *Channel {
	c := &Channel{
		bc:  bc,
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bc == nil {
		c.bc = broadcast.Nop{}
	}
	return c
}

// Set replaces whatever is pending with action and tells dashboards about it.
// The device picking the command up is a separate, later event.
func (c *Channel) Set(ctx context.Context, action string) (Command, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return Command{}, ErrEmptyAction
	}

	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	cmd := Command{ID: uuid.New(), Action: action, IssuedAt: c.now().UTC()}

	c.mu.Lock()
	if c.pending != nil {
		c.log.Info("command_overwritten", "previous", c.pending.Action, "action", action)
	}
	c.pending = &cmd
	c.mu.Unlock()

	c.metrics.CommandSet()
	c.log.Info("command_set", "action", action, "id", cmd.ID.String())

	if err := c.bc.Publish(ctx, broadcast.EventCommandUpdate, cmd); err != nil {
		c.log.Warn("command_broadcast_failed", "action", action, "err", err)
	}
	return cmd, nil
}

// PollAndClear hands the pending command to the device and empties the slot.
func (c *Channel) PollAndClear() (Command, bool) {
	c.mu.Lock()
	cmd := c.pending
	c.pending = nil
	c.mu.Unlock()

	if cmd == nil {
		return Command{}, false
	}
	c.metrics.CommandDelivered()
	c.log.Info("command_delivered", "action", cmd.Action, "id", cmd.ID.String(), "waited", c.now().Sub(cmd.IssuedAt).String())
	return *cmd, true
}

// Peek returns the pending command without consuming it.
func (c *Channel) Peek() (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Command{}, false
	}
	return *c.pending, true
}
