// Package stage organises a match's logic into a tree of stages.
//
// Leaves are atomic stages that collect player commands, timeouts and
// departures and decide when every seat is ready. Interior nodes are compound
// stages that own exactly one child at a time and pick its successor when it
// checks out. All stages in a match share one Context.
package stage

import (
	"fmt"
	"time"

	"github.com/minaorangina/gamehost/masker"
	"github.com/minaorangina/gamehost/messenger"
	"github.com/minaorangina/gamehost/timer"
	"go.uber.org/zap"
)

// Options are fixed for the lifetime of a match
type Options struct {
	Seats int
	// HookOnTimeout makes every unready seat temporarily inactive when a stage times out
	HookOnTimeout bool
	// Alerts are the remaining times at which players waiting on a stage are reminded
	Alerts []time.Duration
	// Values are game specific settings
	Values map[string]string
}

// Context is the per-match state every stage reads and writes
type Context struct {
	opts         Options
	masker       *masker.Masker
	transport    messenger.Transport
	timer        timer.Timer
	logger       *zap.Logger
	achievements []map[string]int
	msgID        uint64
	deduction    bool
	guard        func(func())

	// timer bookkeeping: gen is bumped every time the timer is armed or
	// stopped, and ticks carrying an older gen are dropped.
	gen     uint64
	armedBy *Atomic

	serial uint64
	root   Node
}

// NewContext creates the context for one match
func NewContext(opts Options, transport messenger.Transport, t timer.Timer, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	if transport == nil {
		transport = messenger.Discard
	}

	c := &Context{
		opts:         opts,
		masker:       masker.New(opts.Seats),
		timer:        t,
		logger:       logger,
		achievements: make([]map[string]int, opts.Seats),
		guard:        func(fn func()) { fn() },
	}
	for i := range c.achievements {
		c.achievements[i] = map[string]int{}
	}

	c.transport = messenger.TransportFunc(func(to messenger.Target, msg messenger.Message) error {
		err := transport.Deliver(to, msg)
		if err != nil {
			c.logger.Warn("message delivery failed",
				zap.Stringer("to", to),
				zap.Uint64("message_id", msg.ID),
				zap.Error(err))
		}
		return err
	})

	return c
}

// Seats returns the number of seats in the match
func (c *Context) Seats() int {
	return c.opts.Seats
}

// Options returns the match options
func (c *Context) Options() Options {
	return c.opts
}

// Value returns a game setting, or def when it is unset
func (c *Context) Value(key, def string) string {
	if v, ok := c.opts.Values[key]; ok {
		return v
	}
	return def
}

// Masker returns the match's readiness tracker
func (c *Context) Masker() *masker.Masker {
	return c.masker
}

// Logger returns the match logger
func (c *Context) Logger() *zap.Logger {
	return c.logger
}

// SetGuard installs the function every timer callback runs through.
// A match driver uses it to take its lock.
func (c *Context) SetGuard(guard func(func())) {
	c.guard = guard
}

// InDeduction reports whether every seat has left and the match is resolving itself
func (c *Context) InDeduction() bool {
	return c.deduction
}

// Serial increases every time an atomic stage is entered
func (c *Context) Serial() uint64 {
	return c.serial
}

func (c *Context) nextID() uint64 {
	c.msgID++
	return c.msgID
}

func (c *Context) sink(to messenger.Target) *messenger.Sink {
	if c.deduction {
		return messenger.Muted()
	}
	return messenger.NewSink(to, c.transport, c.nextID)
}

// Broadcast returns a sink addressed to every seat
func (c *Context) Broadcast() *messenger.Sink {
	return c.sink(messenger.Broadcast())
}

// Group returns a sink addressed to the match's shared channel
func (c *Context) Group() *messenger.Sink {
	return c.sink(messenger.GroupChannel())
}

// WhisperTo returns a sink addressed to seat alone
func (c *Context) WhisperTo(seat int) *messenger.Sink {
	return c.sink(messenger.Whisper(seat))
}

func (c *Context) replyTo(seat int, public bool) *messenger.Sink {
	if public {
		return c.Group()
	}
	return c.WhisperTo(seat)
}

// Achieve records that seat earned an achievement
func (c *Context) Achieve(seat int, name string) {
	if seat < 0 || seat >= len(c.achievements) {
		panic(fmt.Sprintf("achieve: seat %d out of range", seat))
	}
	c.achievements[seat][name]++
}

// Achievements returns a copy of every seat's achievement counters
func (c *Context) Achievements() []map[string]int {
	out := make([]map[string]int, len(c.achievements))
	for i, a := range c.achievements {
		out[i] = make(map[string]int, len(a))
		for k, v := range a {
			out[i][k] = v
		}
	}
	return out
}

// Begin enters the main stage. It may only be called once.
func (c *Context) Begin(root Node) {
	if c.root != nil {
		panic("stage: context already has a main stage")
	}
	c.root = root
	c.logger.Debug("main stage begins", zap.String("stage", root.Name()))
	root.enter()
}

// End releases the main stage, stopping any armed timer
func (c *Context) End() {
	if c.root == nil || c.root.core().released {
		return
	}
	c.root.release()
}

// markLeft records a departure and switches to deduction once everyone has gone
func (c *Context) markLeft(seat int) {
	c.masker.SetPermanentInactive(seat)
	if !c.deduction && c.masker.AllPermanentlyInactive() {
		c.deduction = true
		c.logger.Info("every seat has left, resolving match without players")
	}
}

func (c *Context) armTimer(a *Atomic, d time.Duration) {
	if c.timer == nil {
		c.logger.Warn("stage wants a timer but the match has none", zap.String("stage", a.name))
		return
	}

	c.gen++
	token := c.gen
	c.armedBy = a

	alerts := []time.Duration{}
	for _, remaining := range c.opts.Alerts {
		if remaining > 0 && remaining < d {
			alerts = append(alerts, d-remaining)
		}
	}

	c.timer.Start(d, alerts, func(elapsed time.Duration) {
		c.guard(func() {
			c.tick(token, d, elapsed)
		})
	})
}

func (c *Context) disarm(a *Atomic) {
	if c.armedBy != a {
		return
	}
	c.gen++
	c.armedBy = nil
	c.timer.Stop()
}

func (c *Context) tick(token uint64, d, elapsed time.Duration) {
	if token != c.gen || c.armedBy == nil {
		c.logger.Debug("dropping stale timer tick", zap.Uint64("token", token))
		return
	}

	if elapsed < d {
		c.armedBy.alert(d - elapsed)
		return
	}

	c.logger.Debug("stage timed out", zap.String("stage", c.armedBy.name))
	c.gen++
	c.armedBy = nil
	if c.root == nil || c.root.Over() {
		return
	}
	c.root.HandleTimeout()
}
