// Package pipeline implements the instruction scheduler of the accelerator.
//
// The scheduler walks the control/data-flow graph one cycle at a time.
// Instructions are launched block by block into a window, wait for their
// operands, compete for functional units and memory ports in program order,
// and retire once their results are committed.
//
// Each call to Tick models one cycle in six steps:
//
//  1. commit compute operations that finish this cycle, freeing their units
//  2. commit completed memory requests
//  3. retire completed instructions
//  4. retry queued memory requests
//  5. issue ready instructions in program order
//  6. report the cycle
//
// Blocks entered by a branch are launched at the start of the next cycle.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/emu"
	"github.com/sarchlab/hwaccsim/insts"
	"github.com/sarchlab/hwaccsim/timing/fu"
	"github.com/sarchlab/hwaccsim/timing/hazard"
	"github.com/sarchlab/hwaccsim/timing/latency"
	"github.com/sarchlab/hwaccsim/timing/memaccess"
)

// Hook positions of the scheduler.
var (
	// HookPosInstIssue fires when an instruction issues. The item is an
	// InstEvent.
	HookPosInstIssue = &sim.HookPos{Name: "InstIssue"}

	// HookPosInstRetire fires when an instruction retires. The item is an
	// InstEvent.
	HookPosInstRetire = &sim.HookPos{Name: "InstRetire"}

	// HookPosCycleEnd fires at the end of every cycle. The item is a
	// CycleRecord.
	HookPosCycleEnd = &sim.HookPos{Name: "CycleEnd"}
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Statistics holds scheduler counters.
type Statistics struct {
	// Cycles is the number of cycles ticked, including the final one.
	Cycles uint64
	// ExecutedCycles counts cycles in which at least one instruction issued.
	ExecutedCycles uint64
	// StallCycles counts cycles in which nothing issued.
	StallCycles uint64
	// StallsByCause splits StallCycles by dominant cause.
	StallsByCause [NumStallCauses]uint64

	Launched uint64
	Issued   uint64
	Retired  uint64
	Calls    uint64

	// PoisonedResults counts results derived from failed requests or
	// undefined operations.
	PoisonedResults uint64
	// PoisonedBranches counts branches that took their fallthrough edge
	// because the condition was poisoned.
	PoisonedBranches uint64
	// MissingProducers counts operands that had no dynamic producer.
	MissingProducers uint64
	// RequestFailures counts memory requests that completed unsuccessfully.
	RequestFailures uint64
}

// IPC returns issued instructions per cycle.
func (s Statistics) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Issued) / float64(s.Cycles)
}

// SchedulerOption is a functional option for configuring the Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMaxWindow overrides the window size of the hardware configuration.
func WithMaxWindow(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.maxWindow = n
	}
}

// WithLockstep overrides the execution mode of the hardware configuration.
func WithLockstep(lockstep bool) SchedulerOption {
	return func(s *Scheduler) {
		s.lockstep = lockstep
	}
}

// Scheduler is the cycle-level instruction scheduler.
type Scheduler struct {
	*sim.HookableBase

	graph   *cdfg.Graph
	table   *latency.Table
	tracker *hazard.Tracker
	fus     *fu.Allocator
	mem     *memaccess.Pipeline
	eval    *emu.Evaluator
	logger  *slog.Logger

	lockstep  bool
	maxWindow int

	cycle     uint64
	nextSeq   uint64
	nextFrame uint32

	window      []*instance
	bySeq       map[uint64]*instance
	top         *frame
	completions []memaccess.RequestID
	windowFull  bool

	started   bool
	finishing bool
	done      bool
	draining  bool
	result    emu.Value

	longest hazard.Chain
	stats   Statistics
}

// NewScheduler creates a scheduler for a graph on the hardware described by
// table. ports holds one memory port per configured region, in order.
func NewScheduler(
	graph *cdfg.Graph,
	table *latency.Table,
	ports []memaccess.Port,
	opts ...SchedulerOption,
) *Scheduler {
	config := table.Config()

	s := &Scheduler{
		HookableBase: sim.NewHookableBase(),
		graph:        graph,
		table:        table,
		tracker:      hazard.NewTracker(),
		fus:          fu.NewAllocator(table.FUCounts()),
		eval:         emu.NewEvaluator(),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		lockstep:     table.Lockstep(),
		maxWindow:    config.MaxWindow,
		bySeq:        make(map[uint64]*instance),
	}

	for _, opt := range opts {
		opt(s)
	}

	memOpts := []memaccess.PipelineOption{
		memaccess.WithCompletionHandler(s.onMemoryComplete),
		memaccess.WithLogger(s.logger),
	}
	for i := range config.Memory.Regions {
		memOpts = append(memOpts,
			memaccess.WithPortQueueDepth(i, config.Memory.Regions[i].QueueDepth))
	}

	router := memaccess.RouterFunc(func(addr uint64, size uint32) int {
		i := table.RegionFor(addr)
		if i < 0 || !table.Region(i).Contains(addr, size) {
			return -1
		}
		return i
	})

	s.mem = memaccess.NewPipeline(router, ports, memOpts...)

	return s
}

// Start launches the entry block of the top function with the given
// arguments.
func (s *Scheduler) Start(args ...emu.Value) error {
	if s.started {
		return ErrAlreadyStarted
	}

	top := s.graph.Top()
	if len(args) != top.NumArgs {
		return fmt.Errorf("function %s takes %d arguments, got %d",
			top.Name, top.NumArgs, len(args))
	}

	s.top = s.newFrame(top, args, nil, nil)
	s.started = true

	return nil
}

func (s *Scheduler) newFrame(
	fn *cdfg.Function,
	args []emu.Value,
	call *instance,
	caller *frame,
) *frame {
	f := &frame{
		id:     s.nextFrame,
		fn:     fn,
		args:   append([]emu.Value(nil), args...),
		call:   call,
		caller: caller,
	}
	s.nextFrame++
	s.enter(f, fn.Entry(), cdfg.NoBlock)

	return f
}

// enter points the fetch cursor of f at the start of block.
func (s *Scheduler) enter(f *frame, block, from cdfg.BlockID) {
	f.block = block
	f.index = 0
	f.from = from
	f.iter = s.tracker.NextIteration(f.id, block)
	f.fetching = true
}

// Tick simulates one cycle and describes it.
func (s *Scheduler) Tick() CycleRecord {
	now := s.cycle
	rec := CycleRecord{Cycle: now}

	s.fus.BeginCycle(now)

	if !s.draining {
		s.fetch()
	}

	s.commitCompute(now)
	s.commitMemory(now)
	s.retire(now)

	if s.finishing && len(s.window) == 0 && s.mem.Drained() &&
		len(s.completions) == 0 {
		s.done = true
		rec.Done = true
	} else {
		s.mem.Tick(now)
		s.issue(now, &rec)
		s.account(&rec)
	}

	s.snapshot(&rec)
	s.stats.Cycles++
	s.cycle++

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosCycleEnd,
		Item:   rec,
	})

	return rec
}

// fetch launches instructions from the top frame's cursor while the window
// has room.
func (s *Scheduler) fetch() {
	s.windowFull = false

	for {
		f := s.top
		if f == nil || !f.fetching || f.awaitingCallee {
			return
		}

		if s.maxWindow > 0 && len(s.window) >= s.maxWindow {
			s.windowFull = true
			return
		}

		blk := s.graph.Block(f.block)
		if f.index == 0 {
			f.index = s.launchPhis(f, blk)
		}

		if f.index < len(blk.Insts) {
			inst := s.graph.Inst(blk.Insts[f.index])
			f.index++
			s.launchInst(f, inst)
		}

		if f.index >= len(blk.Insts) {
			f.fetching = false
		}
	}
}

// launchPhis launches the leading phis of a block together. All incoming
// values are bound before any phi is defined, so phis of the same block read
// each other's values from the previous entry.
func (s *Scheduler) launchPhis(f *frame, blk *cdfg.Block) int {
	n := 0
	for n < len(blk.Insts) && s.graph.Inst(blk.Insts[n]).Op == insts.OpPhi {
		n++
	}
	if n == 0 {
		return 0
	}

	bound := make([][]operand, n)
	for i := 0; i < n; i++ {
		id := blk.Insts[i]
		op, ok := hazard.ResolvePhi(s.graph, id, f.from)
		if !ok {
			s.logger.Warn("phi has no value for the entering edge",
				"inst", s.graph.Inst(id).Name, "from", f.from)
			s.stats.MissingProducers++
			bound[i] = []operand{{value: emu.PoisonValue()}}
			continue
		}
		bound[i] = []operand{s.bind(f, op)}
	}

	for i := 0; i < n; i++ {
		s.launch(f, s.graph.Inst(blk.Insts[i]), bound[i])
	}

	return n
}

func (s *Scheduler) launchInst(f *frame, inst *cdfg.Instruction) {
	ops := make([]operand, len(inst.Operands))
	for i, op := range inst.Operands {
		ops[i] = s.bind(f, op)
	}

	s.launch(f, inst, ops)

	if inst.Op == insts.OpCall {
		f.awaitingCallee = true
	}
}

// bind resolves a static operand to a value or to its latest producer.
func (s *Scheduler) bind(f *frame, op cdfg.Operand) operand {
	switch op.Kind {
	case cdfg.OperandConst:
		return operand{value: emu.Value{Bits: op.Imm}}
	case cdfg.OperandArg:
		if op.Arg < 0 || op.Arg >= len(f.args) {
			return operand{value: emu.PoisonValue()}
		}
		return operand{value: f.args[op.Arg]}
	}

	key, found := s.tracker.Latest(f.id, op.Inst)
	if !found {
		s.stats.MissingProducers++
		s.logger.Warn("operand has no producer",
			"inst", s.graph.Inst(op.Inst).Name, "frame", f.id)
		return operand{value: emu.PoisonValue()}
	}

	s.tracker.Bind(key)

	return operand{key: key, bound: true}
}

func (s *Scheduler) launch(f *frame, inst *cdfg.Instruction, ops []operand) {
	in := &instance{
		seq:    s.nextSeq,
		key:    hazard.Key{Frame: f.id, Inst: inst.ID, Iter: f.iter},
		inst:   inst,
		frame:  f,
		ops:    ops,
		fuInst: -1,
		req:    memaccess.NoRequest,
		region: -1,
	}
	s.nextSeq++

	if err := s.tracker.Define(in.key, in.seq); err != nil {
		s.logger.Error("failed to define value", "err", err)
	}

	s.tracker.SetChain(in.key, s.chainOf(in))
	s.tracker.CountControl(1)

	switch {
	case in.isLoad():
		s.tracker.AddAccess(in.seq, hazard.AccessLoad)
	case in.isStore():
		s.tracker.AddAccess(in.seq, hazard.AccessStore)
	}

	s.window = append(s.window, in)
	s.bySeq[in.seq] = in
	s.stats.Launched++
}

// chainOf extends the longest producer chain by the instance.
func (s *Scheduler) chainOf(in *instance) hazard.Chain {
	var c hazard.Chain
	for _, op := range in.ops {
		if !op.bound {
			continue
		}
		if pc := s.tracker.Chain(op.key); pc.Length > c.Length {
			c = pc
		}
	}

	c.Length++
	switch {
	case in.isLoad():
		c.Loads++
	case in.isStore():
		c.Stores++
	case in.inst.Op.Category() == insts.CategoryCompute:
		c.Computes++
	}

	if c.Length > s.longest.Length {
		s.longest = c
	}

	return c
}

func (s *Scheduler) commitCompute(now uint64) {
	for _, in := range s.window {
		if !in.inFlight() {
			continue
		}

		if in.isMemory() {
			in.state = StateExecuting
			continue
		}

		if in.inst.Op == insts.OpCall {
			// Calls complete when the callee returns.
			in.state = StateExecuting
			continue
		}

		if in.readyCycle > now {
			in.state = StateExecuting
			continue
		}

		if in.fuInst >= 0 {
			s.fus.Release(in.fuType, in.fuInst, now)
			in.fuInst = -1
		}
		in.state = StateCompleted
	}
}

func (s *Scheduler) onMemoryComplete(id memaccess.RequestID) {
	s.completions = append(s.completions, id)
}

func (s *Scheduler) commitMemory(now uint64) {
	for _, id := range s.completions {
		req := s.mem.Get(id)
		in := s.bySeq[req.Owner]
		s.mem.Release(id)

		if in == nil {
			s.logger.Error("memory response without an owner", "owner", req.Owner)
			continue
		}

		if !req.Success {
			s.stats.RequestFailures++
			s.logger.Warn("memory request failed",
				"addr", req.Addr, "size", req.Size, "inst", in.inst.Name)
		}

		value := emu.Value{}
		if in.isLoad() {
			if req.Success {
				value = emu.Decode(req.Data, in.inst.Type)
			} else {
				value = emu.PoisonValue()
				s.stats.PoisonedResults++
			}
		}

		in.result = value
		in.readyCycle = now
		in.req = memaccess.NoRequest
		in.state = StateCompleted

		s.tracker.Publish(in.key, value, now)
		s.tracker.RetireAccess(in.seq)
	}

	s.completions = s.completions[:0]
}

func (s *Scheduler) retire(now uint64) {
	kept := s.window[:0]

	for _, in := range s.window {
		if in.state != StateCompleted {
			kept = append(kept, in)
			continue
		}

		in.state = StateRetired
		delete(s.bySeq, in.seq)
		s.stats.Retired++

		s.InvokeHook(sim.HookCtx{
			Domain: s,
			Pos:    HookPosInstRetire,
			Item:   InstEvent{Seq: in.seq, Key: in.key, Inst: in.inst, Cycle: now},
		})
	}

	clear(s.window[len(kept):])
	s.window = kept
}

// account classifies a cycle in which nothing issued.
func (s *Scheduler) account(rec *CycleRecord) {
	if s.windowFull {
		rec.Blocked[StallResourceLimit]++
	}

	if rec.Issued > 0 {
		s.stats.ExecutedCycles++
		return
	}

	rec.Stalled = true
	rec.Cause = rec.Blocked.Dominant()

	if rec.Cause == StallNone && !s.draining {
		rec.Cause = s.idleCause()
	}

	s.stats.StallCycles++
	s.stats.StallsByCause[rec.Cause]++
}

// idleCause explains a stall in which no instruction was blocked.
func (s *Scheduler) idleCause() StallCause {
	if s.mem.InFlight() > 0 {
		return s.outstandingMemoryCause()
	}

	if s.top != nil && s.top.fetching && len(s.window) == 0 {
		return StallControlFlow
	}

	return StallNone
}

func (s *Scheduler) snapshot(rec *CycleRecord) {
	rec.Window = len(s.window)

	for _, in := range s.window {
		if !in.inFlight() {
			continue
		}

		switch {
		case in.isLoad():
			rec.InFlightLoads++
		case in.isStore():
			rec.InFlightStores++
		default:
			rec.InFlightCompute++
		}
	}
}

// Drain stops issuing new instructions. In-flight work still completes.
func (s *Scheduler) Drain() {
	s.draining = true
}

// Drained reports whether a drain has finished.
func (s *Scheduler) Drained() bool {
	if !s.draining || !s.mem.Drained() || len(s.completions) > 0 {
		return false
	}

	for _, in := range s.window {
		if in.inFlight() && in.inst.Op != insts.OpCall {
			return false
		}
	}

	return true
}

// Resume ends a drain.
func (s *Scheduler) Resume() {
	s.draining = false
}

// Draining reports whether issue is blocked by a drain.
func (s *Scheduler) Draining() bool {
	return s.draining
}

// Done reports whether the top function has returned and all work has
// completed.
func (s *Scheduler) Done() bool {
	return s.done
}

// Started reports whether Start has been called.
func (s *Scheduler) Started() bool {
	return s.started
}

// Result returns the value returned by the top function.
func (s *Scheduler) Result() emu.Value {
	return s.result
}

// Cycle returns the number of the next cycle to simulate.
func (s *Scheduler) Cycle() uint64 {
	return s.cycle
}

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() Statistics {
	return s.stats
}

// FUStats returns the functional unit statistics.
func (s *Scheduler) FUStats() []fu.TypeStats {
	return s.fus.Stats()
}

// Memory returns the memory access pipeline.
func (s *Scheduler) Memory() *memaccess.Pipeline {
	return s.mem
}

// Edges returns the dependency edges observed so far.
func (s *Scheduler) Edges() hazard.Edges {
	return s.tracker.Edges()
}

// CriticalPath returns the longest dependency chain launched so far.
func (s *Scheduler) CriticalPath() hazard.Chain {
	return s.longest
}

// Graph returns the graph being executed.
func (s *Scheduler) Graph() *cdfg.Graph {
	return s.graph
}

// Table returns the hardware table.
func (s *Scheduler) Table() *latency.Table {
	return s.table
}

// Reset returns the scheduler to its state before Start. Hooks are kept.
func (s *Scheduler) Reset() {
	s.tracker.Reset()
	s.fus.Reset()
	s.mem.Reset()

	s.cycle = 0
	s.nextSeq = 0
	s.nextFrame = 0
	s.window = nil
	s.bySeq = make(map[uint64]*instance)
	s.top = nil
	s.completions = nil
	s.windowFull = false

	s.started = false
	s.finishing = false
	s.done = false
	s.draining = false
	s.result = emu.Value{}

	s.longest = hazard.Chain{}
	s.stats = Statistics{}
}
