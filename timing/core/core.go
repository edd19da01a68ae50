// Package core drives an accelerator model from a host simulation context.
// It wraps the scheduler and the statistics engine and advances them one
// cycle per event.
package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/emu"
	"github.com/sarchlab/hwaccsim/timing/latency"
	"github.com/sarchlab/hwaccsim/timing/memaccess"
	"github.com/sarchlab/hwaccsim/timing/pipeline"
	"github.com/sarchlab/hwaccsim/timing/stats"
)

// Event is a callback handle created by a SimContext.
type Event interface {
	Name() string
}

// SimContext is the part of the host simulator the accelerator uses. Ticks
// are the host's time unit.
type SimContext interface {
	CurrentTick() uint64
	Schedule(ev Event, tick uint64)
	Deschedule(ev Event)
	Reschedule(ev Event, tick uint64)
	CreateEvent(fn func(), name string) Event

	// TickFrequency is the number of ticks per second.
	TickFrequency() uint64
}

// MemoryStats is implemented by memory systems that report counters beyond
// what the memory access pipeline sees.
type MemoryStats interface {
	MemoryCounters() stats.MemoryCounters
}

// State is the lifecycle state of an Accelerator.
type State uint8

// Lifecycle states.
const (
	StateCreated State = iota
	StateInitialized
	StateRunning
	StateDraining
	StateDrained
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDrained:
		return "drained"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

var (
	// ErrInvalidState is returned when a lifecycle call does not apply to
	// the current state.
	ErrInvalidState = errors.New("invalid accelerator state")

	// ErrClockTooFast is returned when a cycle is shorter than one host
	// tick.
	ErrClockTooFast = errors.New("clock period shorter than a host tick")

	// ErrFunctionalAccess is returned when an untimed access fails or maps
	// to no memory region.
	ErrFunctionalAccess = errors.New("functional memory access failed")
)

// An Option configures an Accelerator.
type Option func(*Accelerator)

// WithLogger sets the logger of the accelerator and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Accelerator) {
		a.logger = logger
	}
}

// WithMemoryStats sets the source of the memory system counters.
func WithMemoryStats(src MemoryStats) Option {
	return func(a *Accelerator) {
		a.memStats = src
	}
}

// WithRingCapacity sets the number of cycle snapshots kept.
func WithRingCapacity(n int) Option {
	return func(a *Accelerator) {
		a.ringCap = n
	}
}

// WithOnDone sets a function called once the run completes.
func WithOnDone(fn func(*Accelerator)) Option {
	return func(a *Accelerator) {
		a.onDone = fn
	}
}

// Accelerator is one accelerator instance running one graph.
type Accelerator struct {
	ctx    SimContext
	config *latency.Config
	table  *latency.Table
	sched  *pipeline.Scheduler
	engine *stats.Engine
	logger *slog.Logger

	memStats MemoryStats
	ringCap  int
	onDone   func(*Accelerator)

	state         State
	advance       Event
	scheduled     bool
	nextTick      uint64
	ticksPerCycle uint64
	readyTick     uint64
	startTick     uint64
}

// New creates an accelerator. The configuration is validated eagerly and
// ports must hold one port per configured memory region.
func New(
	ctx SimContext,
	graph *cdfg.Graph,
	config *latency.Config,
	ports []memaccess.Port,
	opts ...Option,
) (*Accelerator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if graph == nil {
		return nil, fmt.Errorf("%w: no graph", cdfg.ErrInvalidGraph)
	}

	if len(ports) != len(config.Memory.Regions) {
		return nil, fmt.Errorf("%w: %d ports for %d memory regions",
			latency.ErrInvalidConfig, len(ports), len(config.Memory.Regions))
	}

	a := &Accelerator{
		ctx:    ctx,
		config: config,
		table:  latency.NewTable(config),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.sched = pipeline.NewScheduler(graph, a.table, ports,
		pipeline.WithLogger(a.logger))
	a.engine = stats.NewEngine(config, a.table, graph,
		stats.WithLogger(a.logger),
		stats.WithRingCapacity(a.ringCap))

	return a, nil
}

// Init creates the cycle event. It is separate from New so that a host can
// finish wiring before the accelerator touches the context.
func (a *Accelerator) Init() error {
	if a.state != StateCreated {
		return fmt.Errorf("%w: init while %s", ErrInvalidState, a.state)
	}

	ticks := math.Round(
		float64(a.ctx.TickFrequency()) * a.config.ClockPeriodNS * 1e-9)
	if ticks < 1 {
		return fmt.Errorf("%w: %gns at %d ticks/s",
			ErrClockTooFast, a.config.ClockPeriodNS, a.ctx.TickFrequency())
	}
	a.ticksPerCycle = uint64(ticks)

	name := a.config.Name
	if name == "" {
		name = "accelerator"
	}
	a.advance = a.ctx.CreateEvent(a.tick, name+".advance")
	a.state = StateInitialized
	a.readyTick = a.ctx.CurrentTick()

	return nil
}

// Start launches the top function and schedules the first cycle.
func (a *Accelerator) Start(args ...emu.Value) error {
	if a.state != StateInitialized {
		return fmt.Errorf("%w: start while %s", ErrInvalidState, a.state)
	}

	if err := a.sched.Start(args...); err != nil {
		return err
	}

	a.startTick = a.ctx.CurrentTick()
	a.state = StateRunning
	a.schedule(a.startTick)

	a.logger.Info("accelerator started",
		"name", a.config.Name, "tick", a.startTick,
		"ticks_per_cycle", a.ticksPerCycle)

	return nil
}

func (a *Accelerator) schedule(tick uint64) {
	a.nextTick = tick
	if a.scheduled {
		a.ctx.Reschedule(a.advance, tick)
		return
	}
	a.ctx.Schedule(a.advance, tick)
	a.scheduled = true
}

// tick simulates one cycle.
func (a *Accelerator) tick() {
	a.scheduled = false

	a.engine.OnCycleStart()
	rec := a.sched.Tick()
	a.engine.OnCycleEnd(rec)

	switch {
	case rec.Done:
		a.state = StateStopped
		a.logger.Info("accelerator finished",
			"name", a.config.Name, "cycles", a.sched.Cycle())
		if a.onDone != nil {
			a.onDone(a)
		}
		return
	case a.state == StateDraining && a.sched.Drained():
		a.state = StateDrained
		a.logger.Debug("accelerator drained", "cycle", a.sched.Cycle())
		return
	}

	a.schedule(a.nextTick + a.ticksPerCycle)
}

// Drain stops issuing. Cycles keep running until in-flight work completes.
func (a *Accelerator) Drain() error {
	if a.state != StateRunning {
		return fmt.Errorf("%w: drain while %s", ErrInvalidState, a.state)
	}

	a.sched.Drain()
	a.state = StateDraining

	return nil
}

// Resume continues a drained or draining run.
func (a *Accelerator) Resume() error {
	if a.state != StateDraining && a.state != StateDrained {
		return fmt.Errorf("%w: resume while %s", ErrInvalidState, a.state)
	}

	a.sched.Resume()

	if a.state == StateDrained {
		next := a.nextTick + a.ticksPerCycle
		if now := a.ctx.CurrentTick(); next < now {
			next = now
		}
		a.schedule(next)
	}
	a.state = StateRunning

	return nil
}

// Stop cancels the pending cycle. A stopped run can only be reset.
func (a *Accelerator) Stop() {
	if a.scheduled {
		a.ctx.Deschedule(a.advance)
		a.scheduled = false
	}
	a.state = StateStopped
}

// Reset returns a stopped or initialized accelerator to its initialized
// state so the same graph can run again.
func (a *Accelerator) Reset() error {
	if a.state != StateStopped && a.state != StateInitialized {
		return fmt.Errorf("%w: reset while %s", ErrInvalidState, a.state)
	}

	a.sched.Reset()
	a.engine.Reset()
	if r, ok := a.memStats.(interface{ Reset() }); ok {
		r.Reset()
	}

	a.state = StateInitialized
	a.readyTick = a.ctx.CurrentTick()
	a.startTick = a.readyTick

	return nil
}

// Done reports whether the top function has returned and all work is
// complete.
func (a *Accelerator) Done() bool {
	return a.sched.Done()
}

// State returns the lifecycle state.
func (a *Accelerator) State() State {
	return a.state
}

// Result returns the value returned by the top function.
func (a *Accelerator) Result() emu.Value {
	return a.sched.Result()
}

// Cycles returns the number of cycles simulated.
func (a *Accelerator) Cycles() uint64 {
	return a.sched.Cycle()
}

// TicksPerCycle returns the number of host ticks in one cycle.
func (a *Accelerator) TicksPerCycle() uint64 {
	return a.ticksPerCycle
}

// Scheduler returns the instruction scheduler.
func (a *Accelerator) Scheduler() *pipeline.Scheduler {
	return a.sched
}

// Engine returns the statistics engine.
func (a *Accelerator) Engine() *stats.Engine {
	return a.engine
}

// Functional performs an untimed access through the memory pipeline. A read
// fills a buffer of len(data) bytes and returns it.
func (a *Accelerator) Functional(
	kind memaccess.Kind,
	addr uint64,
	data []byte,
) ([]byte, error) {
	req := a.sched.Memory().LaunchFunctional(kind, addr, data)
	if req.Port < 0 || !req.Success {
		return nil, fmt.Errorf("%w: %s of %d bytes at %#x",
			ErrFunctionalAccess, kind, len(data), addr)
	}
	return req.Data, nil
}

// FlushCaches writes back every dirty cache line of every region.
func (a *Accelerator) FlushCaches() error {
	for _, r := range a.config.Memory.Regions {
		if _, err := a.Functional(memaccess.Flush, r.Base, nil); err != nil {
			return err
		}
	}
	return nil
}

// AcceptHook registers a hook with the scheduler.
func (a *Accelerator) AcceptHook(hook sim.Hook) {
	a.sched.AcceptHook(hook)
}

// Report hands the component counters to the statistics engine and returns
// the summary.
func (a *Accelerator) Report() stats.Report {
	var counters stats.MemoryCounters
	if a.memStats != nil {
		counters = a.memStats.MemoryCounters()
	}

	s := a.sched.Stats()
	a.engine.ObserveFU(a.sched.FUStats())
	a.engine.ObserveMemory(a.sched.Memory().Stats(), counters)
	a.engine.ObserveDataflow(stats.DataflowCounters{
		Instructions: s.Issued,
		CriticalPath: a.sched.CriticalPath(),
		Edges:        a.sched.Edges(),
	})
	a.engine.ObserveScheduler(s)

	r := a.engine.Summarize()
	// Setup time runs from Init or Reset to Start, so it does not depend on
	// how long the context ran before.
	r.Performance.SetupTimeNS = stats.Float(
		float64(a.startTick-a.readyTick) / float64(a.ctx.TickFrequency()) * 1e9)

	return r
}
