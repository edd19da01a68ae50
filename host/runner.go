package host

import (
	"errors"
	"io"
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/emu"
	"github.com/sarchlab/hwaccsim/timing/core"
	"github.com/sarchlab/hwaccsim/timing/latency"
	"github.com/sarchlab/hwaccsim/timing/stats"
)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxCycles bounds every run. 0 means no bound.
func WithMaxCycles(n uint64) RunnerOption {
	return func(r *Runner) {
		r.maxCycles = n
	}
}

// WithHooks registers hooks with the scheduler.
func WithHooks(hooks ...sim.Hook) RunnerOption {
	return func(r *Runner) {
		r.hooks = append(r.hooks, hooks...)
	}
}

// WithRunnerLogger sets the logger of every component.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithContextOptions passes options to the simulation context.
func WithContextOptions(opts ...Option) RunnerOption {
	return func(r *Runner) {
		r.ctxOpts = append(r.ctxOpts, opts...)
	}
}

// Runner owns one accelerator together with its host.
type Runner struct {
	ctx    *Context
	memory *MemorySystem
	acc    *core.Accelerator

	maxCycles uint64
	hooks     []sim.Hook
	logger    *slog.Logger
	ctxOpts   []Option
	runs      int
}

// NewRunner builds the host and the accelerator for a graph.
func NewRunner(
	graph *cdfg.Graph,
	config *latency.Config,
	opts ...RunnerOption,
) (*Runner, error) {
	r := &Runner{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.ctx = NewContext(append([]Option{WithLogger(r.logger)}, r.ctxOpts...)...)
	r.memory = NewMemorySystem(r.ctx, config, WithMemoryLogger(r.logger))

	acc, err := core.New(r.ctx, graph, config, r.memory.Ports(),
		core.WithLogger(r.logger),
		core.WithMemoryStats(r.memory))
	if err != nil {
		return nil, err
	}

	if err := acc.Init(); err != nil {
		return nil, err
	}

	for _, h := range r.hooks {
		acc.AcceptHook(h)
	}

	r.acc = acc

	return r, nil
}

// Context returns the simulation context.
func (r *Runner) Context() *Context {
	return r.ctx
}

// Memory returns the memory system.
func (r *Runner) Memory() *MemorySystem {
	return r.memory
}

// Functional returns untimed access to the memory the accelerator sees.
func (r *Runner) Functional() FunctionalMemory {
	return FunctionalMemory{acc: r.acc}
}

// Accelerator returns the accelerator.
func (r *Runner) Accelerator() *core.Accelerator {
	return r.acc
}

// Run simulates the graph to completion and returns the report. When the
// cycle bound is hit the report is still returned, together with
// ErrMaxTick.
func (r *Runner) Run(args ...emu.Value) (stats.Report, error) {
	if r.runs > 0 {
		if r.acc.State() != core.StateStopped {
			r.acc.Stop()
		}
		if err := r.acc.Reset(); err != nil {
			return stats.Report{}, err
		}
	}
	r.runs++

	origin := r.ctx.CurrentTick()
	tpc := r.acc.TicksPerCycle()
	r.memory.SetClock(Clock{Origin: origin, TicksPerCycle: tpc})

	if r.maxCycles > 0 {
		r.ctx.SetMaxTick(origin + r.maxCycles*tpc)
	} else {
		r.ctx.SetMaxTick(0)
	}

	if err := r.acc.Start(args...); err != nil {
		return stats.Report{}, err
	}

	err := r.ctx.Run()
	if err != nil && !errors.Is(err, ErrMaxTick) {
		return stats.Report{}, err
	}

	if err == nil && !r.acc.Done() {
		r.logger.Warn("event queue drained before the run finished",
			"cycles", r.acc.Cycles())
	}

	return r.acc.Report(), err
}
