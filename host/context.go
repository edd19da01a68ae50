// Package host runs accelerators on an Akita event engine. It provides the
// simulation context and the memory system an accelerator needs.
package host

import (
	"errors"
	"io"
	"log/slog"
	"math"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/hwaccsim/timing/core"
)

// DefaultTickFrequency is one tick per picosecond.
const DefaultTickFrequency = 1_000_000_000_000

// ErrMaxTick is returned by Run when the tick limit was reached before the
// event queue drained.
var ErrMaxTick = errors.New("simulation reached the tick limit")

// Event is a callback that can be scheduled on a Context any number of
// times.
type Event struct {
	id      uint64
	name    string
	fn      func()
	pending *tickEvent
}

// Name returns the name the event was created with.
func (e *Event) Name() string {
	return e.name
}

// ID returns the id of the event, unique within its Context.
func (e *Event) ID() uint64 {
	return e.id
}

// Scheduled reports whether the event is waiting to fire.
func (e *Event) Scheduled() bool {
	return e.pending != nil
}

// tickEvent is one scheduling of an Event on the Akita engine. Akita events
// cannot be removed once scheduled, so descheduling marks them cancelled.
type tickEvent struct {
	*sim.EventBase
	owner     *Event
	cancelled bool
}

// An Option configures a Context.
type Option func(*Context)

// WithTickFrequency sets the number of ticks per second.
func WithTickFrequency(hz uint64) Option {
	return func(c *Context) {
		c.freq = hz
	}
}

// WithMaxTick drops every event at or after the given tick. 0 disables the
// limit.
func WithMaxTick(tick uint64) Option {
	return func(c *Context) {
		c.maxTick = tick
	}
}

// WithEngine runs on an existing engine instead of a new serial engine.
func WithEngine(engine sim.Engine) Option {
	return func(c *Context) {
		c.engine = engine
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// Context implements core.SimContext on an Akita engine.
type Context struct {
	engine  sim.Engine
	freq    uint64
	maxTick uint64
	logger  *slog.Logger

	nextID   uint64
	timedOut bool
	fired    uint64
}

var _ core.SimContext = (*Context)(nil)

// NewContext creates a Context.
func NewContext(opts ...Option) *Context {
	c := &Context{
		freq:   DefaultTickFrequency,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.engine == nil {
		c.engine = sim.NewSerialEngine()
	}

	return c
}

// Engine returns the underlying Akita engine.
func (c *Context) Engine() sim.Engine {
	return c.engine
}

// TickFrequency returns the number of ticks per second.
func (c *Context) TickFrequency() uint64 {
	return c.freq
}

func (c *Context) timeOf(tick uint64) sim.VTimeInSec {
	return sim.VTimeInSec(float64(tick) / float64(c.freq))
}

// CurrentTick returns the engine time in ticks.
func (c *Context) CurrentTick() uint64 {
	return uint64(math.Round(float64(c.engine.CurrentTime()) * float64(c.freq)))
}

// CreateEvent creates an event that calls fn when it fires.
func (c *Context) CreateEvent(fn func(), name string) core.Event {
	c.nextID++
	return &Event{id: c.nextID, name: name, fn: fn}
}

func (c *Context) event(ev core.Event) *Event {
	e, ok := ev.(*Event)
	if !ok {
		panic("event was not created by this host context")
	}
	return e
}

// Schedule makes ev fire at tick. Ticks in the past fire now.
func (c *Context) Schedule(ev core.Event, tick uint64) {
	e := c.event(ev)
	if e.pending != nil {
		panic("event " + e.name + " is already scheduled")
	}

	if now := c.CurrentTick(); tick < now {
		tick = now
	}

	te := &tickEvent{owner: e}
	te.EventBase = sim.NewEventBase(c.timeOf(tick), c)
	e.pending = te
	c.engine.Schedule(te)
}

// Deschedule cancels the pending firing of ev, if any.
func (c *Context) Deschedule(ev core.Event) {
	e := c.event(ev)
	if e.pending == nil {
		return
	}

	e.pending.cancelled = true
	e.pending = nil
}

// Reschedule moves the pending firing of ev to tick.
func (c *Context) Reschedule(ev core.Event, tick uint64) {
	c.Deschedule(ev)
	c.Schedule(ev, tick)
}

// Handle implements sim.Handler.
func (c *Context) Handle(evt sim.Event) error {
	te := evt.(*tickEvent)
	if te.cancelled {
		return nil
	}

	if c.maxTick > 0 && c.CurrentTick() >= c.maxTick {
		if !c.timedOut {
			c.logger.Warn("tick limit reached",
				"max_tick", c.maxTick, "event", te.owner.name)
		}
		c.timedOut = true
		te.owner.pending = nil
		return nil
	}

	te.owner.pending = nil
	c.fired++
	te.owner.fn()

	return nil
}

// Run processes events until none are left or the tick limit is reached.
func (c *Context) Run() error {
	if err := c.engine.Run(); err != nil {
		return err
	}

	if c.timedOut {
		return ErrMaxTick
	}

	return nil
}

// SetMaxTick changes the tick limit. 0 disables it.
func (c *Context) SetMaxTick(tick uint64) {
	c.maxTick = tick
	c.timedOut = false
}

// TimedOut reports whether the tick limit was reached.
func (c *Context) TimedOut() bool {
	return c.timedOut
}

// EventsFired returns the number of events whose callbacks ran.
func (c *Context) EventsFired() uint64 {
	return c.fired
}
