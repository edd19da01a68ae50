package pipeline_test

import (
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/emu"
	"github.com/sarchlab/hwaccsim/insts"
	"github.com/sarchlab/hwaccsim/timing/latency"
	"github.com/sarchlab/hwaccsim/timing/memaccess"
	"github.com/sarchlab/hwaccsim/timing/pipeline"
)

const spmBase = 0x1000_0000

// testPort completes every request a fixed number of cycles after issue.
type testPort struct {
	base     uint64
	latency  uint64
	limit    int
	stalled  bool
	storage  *mem.Storage
	pending  []memaccess.Request
	callback func(memaccess.Response)

	cycle    uint64
	accepted int
}

func newTestPort(base, latency uint64) *testPort {
	return &testPort{
		base:    base,
		latency: latency,
		storage: mem.NewStorage(64 * mem.KB),
	}
}

func (p *testPort) SendTimingRequest(req memaccess.Request) bool {
	if !p.IsReady() {
		return false
	}
	p.accepted++
	p.pending = append(p.pending, req)
	return true
}

func (p *testPort) SendFunctional(req *memaccess.Request) {
	p.access(req)
}

func (p *testPort) IsReady() bool {
	return p.limit == 0 || p.accepted < p.limit
}

func (p *testPort) IsStalled() bool {
	return p.stalled
}

func (p *testPort) SetCompletionCallback(fn func(memaccess.Response)) {
	p.callback = fn
}

func (p *testPort) access(req *memaccess.Request) {
	offset := req.Addr - p.base
	if req.Kind.IsWrite() {
		Expect(p.storage.Write(offset, req.Data)).To(Succeed())
		req.Success = true
		return
	}

	data, err := p.storage.Read(offset, uint64(req.Size))
	Expect(err).ToNot(HaveOccurred())
	req.Data = data
	req.Success = true
}

// deliver completes the requests due by cycle.
func (p *testPort) deliver(cycle uint64) {
	if cycle != p.cycle {
		p.cycle = cycle
		p.accepted = 0
	}

	kept := p.pending[:0]
	var due []memaccess.Request
	for _, req := range p.pending {
		if req.IssueCycle+p.latency <= cycle {
			due = append(due, req)
		} else {
			kept = append(kept, req)
		}
	}
	p.pending = kept

	for _, req := range due {
		p.access(&req)
		p.callback(memaccess.Response{
			ID:      req.ID,
			Data:    req.Data,
			Success: req.Success,
			Cycle:   req.IssueCycle + p.latency,
		})
	}
}

type eventRecorder struct {
	issued  map[string]uint64
	retired []string
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{issued: make(map[string]uint64)}
}

func (r *eventRecorder) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case pipeline.HookPosInstIssue:
		e := ctx.Item.(pipeline.InstEvent)
		r.issued[e.Inst.Name] = e.Cycle
	case pipeline.HookPosInstRetire:
		e := ctx.Item.(pipeline.InstEvent)
		r.retired = append(r.retired, e.Inst.Name)
	}
}

type harness struct {
	sched   *pipeline.Scheduler
	spm     *testPort
	dram    *testPort
	events  *eventRecorder
	records []pipeline.CycleRecord
}

func newHarness(
	g *cdfg.Graph,
	config *latency.Config,
	opts ...pipeline.SchedulerOption,
) *harness {
	Expect(config.Validate()).To(Succeed())

	h := &harness{
		spm: newTestPort(config.Memory.Regions[0].Base,
			uint64(config.Memory.Regions[0].Latency)),
		dram: newTestPort(config.Memory.Regions[1].Base,
			uint64(config.Memory.Regions[1].Latency)),
		events: newEventRecorder(),
	}

	h.sched = pipeline.NewScheduler(g, latency.NewTable(config),
		[]memaccess.Port{h.spm, h.dram}, opts...)
	h.sched.AcceptHook(h.events)

	return h
}

func (h *harness) tick() pipeline.CycleRecord {
	h.spm.deliver(h.sched.Cycle())
	h.dram.deliver(h.sched.Cycle())
	rec := h.sched.Tick()
	h.records = append(h.records, rec)
	return rec
}

func (h *harness) run(args ...emu.Value) pipeline.Statistics {
	Expect(h.sched.Start(args...)).To(Succeed())

	for i := 0; i < 10000 && !h.sched.Done(); i++ {
		h.tick()
	}
	Expect(h.sched.Done()).To(BeTrue())

	stats := h.sched.Stats()
	Expect(stats.Cycles).To(Equal(stats.ExecutedCycles + stats.StallCycles + 1))

	return stats
}

func build(b *cdfg.Builder) *cdfg.Graph {
	g, err := b.Build()
	Expect(err).ToNot(HaveOccurred())
	return g
}

func twoAdds() *cdfg.Graph {
	b := cdfg.NewBuilder()
	fn := b.AddFunction("adds", 2)
	entry := b.AddBlock(fn, "entry")
	b.AddInst(entry, cdfg.Instruction{Name: "a", Op: insts.OpAdd, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Arg(0), cdfg.Const(1)}})
	b.AddInst(entry, cdfg.Instruction{Name: "b", Op: insts.OpAdd, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Arg(1), cdfg.Const(2)}})
	b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet})
	b.SetTop(fn)
	return build(b)
}

func loadAdd() *cdfg.Graph {
	b := cdfg.NewBuilder()
	fn := b.AddFunction("load_add", 0)
	entry := b.AddBlock(fn, "entry")
	ld := b.AddInst(entry, cdfg.Instruction{Name: "ld", Op: insts.OpLoad,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Const(spmBase)}})
	add := b.AddInst(entry, cdfg.Instruction{Name: "add", Op: insts.OpAdd,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(ld), cdfg.Const(1)}})
	b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(add)}})
	b.SetTop(fn)
	return build(b)
}

func storeLoad(storeFirst bool) *cdfg.Graph {
	b := cdfg.NewBuilder()
	fn := b.AddFunction("store_load", 0)
	entry := b.AddBlock(fn, "entry")

	st := cdfg.Instruction{Name: "st", Op: insts.OpStore, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Const(42), cdfg.Const(spmBase)}}
	ld := cdfg.Instruction{Name: "ld", Op: insts.OpLoad, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Const(spmBase)}}

	var ldID cdfg.InstID
	if storeFirst {
		b.AddInst(entry, st)
		ldID = b.AddInst(entry, ld)
	} else {
		ldID = b.AddInst(entry, ld)
		b.AddInst(entry, st)
	}

	b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(ldID)}})
	b.SetTop(fn)
	return build(b)
}

type storeSpec struct {
	name   string
	value  cdfg.Operand
	offset uint64
}

// stores builds a function that stores each value at spmBase plus its
// offset and then returns.
func stores(specs ...storeSpec) *cdfg.Graph {
	b := cdfg.NewBuilder()
	fn := b.AddFunction("stores", 0)
	entry := b.AddBlock(fn, "entry")
	for _, st := range specs {
		b.AddInst(entry, cdfg.Instruction{Name: st.name, Op: insts.OpStore,
			Type: insts.I32, Operands: []cdfg.Operand{st.value, cdfg.Const(spmBase + st.offset)}})
	}
	b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet})
	b.SetTop(fn)
	return build(b)
}

func retiredBefore(h *harness, first, second string) bool {
	i := slices.Index(h.events.retired, first)
	j := slices.Index(h.events.retired, second)
	return i >= 0 && j >= 0 && i < j
}

func (p *testPort) word(offset uint64) uint64 {
	data, err := p.storage.Read(offset, 4)
	Expect(err).ToNot(HaveOccurred())
	return emu.Decode(data, insts.I32).Bits
}

// countingLoop builds: i = 0; do { i++ } while (i < n); return i
func countingLoop() *cdfg.Graph {
	b := cdfg.NewBuilder()
	fn := b.AddFunction("count", 1)
	entry := b.AddBlock(fn, "entry")
	loop := b.AddBlock(fn, "loop")
	exit := b.AddBlock(fn, "exit")

	b.AddInst(entry, cdfg.Instruction{Name: "br0", Op: insts.OpBr,
		Targets: []cdfg.BlockID{loop}})
	b.AddInst(loop, cdfg.Instruction{Name: "i", Op: insts.OpPhi, Type: insts.I32,
		Incoming: []cdfg.PhiIncoming{
			{Block: entry, Value: cdfg.Const(0)},
			{Block: loop, Value: cdfg.Ref(2)},
		}})
	b.AddInst(loop, cdfg.Instruction{Name: "next", Op: insts.OpAdd, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(1), cdfg.Const(1)}})
	b.AddInst(loop, cdfg.Instruction{Name: "cond", Op: insts.OpICmp, Type: insts.I1,
		OperandType: insts.I32, Pred: insts.PredSLT,
		Operands: []cdfg.Operand{cdfg.Ref(2), cdfg.Arg(0)}})
	b.AddInst(loop, cdfg.Instruction{Name: "br1", Op: insts.OpBr,
		Operands: []cdfg.Operand{cdfg.Ref(3)},
		Targets:  []cdfg.BlockID{loop, exit}})
	b.AddInst(exit, cdfg.Instruction{Name: "ret", Op: insts.OpRet, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(2)}})
	b.SetTop(fn)

	return build(b)
}

func callGraph() *cdfg.Graph {
	b := cdfg.NewBuilder()
	main := b.AddFunction("main", 1)
	inc := b.AddFunction("inc", 1)

	mb := b.AddBlock(main, "entry")
	ib := b.AddBlock(inc, "entry")

	one := b.AddInst(ib, cdfg.Instruction{Name: "one", Op: insts.OpAdd,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Arg(0), cdfg.Const(1)}})
	b.AddInst(ib, cdfg.Instruction{Name: "inc_ret", Op: insts.OpRet,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(one)}})

	call := b.AddInst(mb, cdfg.Instruction{Name: "call", Op: insts.OpCall,
		Type: insts.I32, Callee: inc, Operands: []cdfg.Operand{cdfg.Arg(0)}})
	sum := b.AddInst(mb, cdfg.Instruction{Name: "sum", Op: insts.OpAdd,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(call), cdfg.Const(10)}})
	b.AddInst(mb, cdfg.Instruction{Name: "ret", Op: insts.OpRet,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(sum)}})
	b.SetTop(main)

	return build(b)
}

func poisonBranch() *cdfg.Graph {
	b := cdfg.NewBuilder()
	fn := b.AddFunction("poison", 0)
	entry := b.AddBlock(fn, "entry")
	yes := b.AddBlock(fn, "yes")
	no := b.AddBlock(fn, "no")

	ld := b.AddInst(entry, cdfg.Instruction{Name: "ld", Op: insts.OpLoad,
		Type: insts.I1, Operands: []cdfg.Operand{cdfg.Const(0x10)}})
	b.AddInst(entry, cdfg.Instruction{Name: "br", Op: insts.OpBr,
		Operands: []cdfg.Operand{cdfg.Ref(ld)},
		Targets:  []cdfg.BlockID{yes, no}})
	b.AddInst(yes, cdfg.Instruction{Name: "ret_yes", Op: insts.OpRet,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Const(1)}})
	b.AddInst(no, cdfg.Instruction{Name: "ret_no", Op: insts.OpRet,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Const(2)}})
	b.SetTop(fn)

	return build(b)
}

var _ = Describe("Scheduler", func() {
	var config *latency.Config

	BeforeEach(func() {
		config = latency.DefaultConfig()
	})

	Context("with two independent adds", func() {
		It("should issue both in the same cycle with two adders", func() {
			config.SetUnits(insts.FUIntAddSub, 2)
			h := newHarness(twoAdds(), config)

			stats := h.run(emu.IntValue(1, insts.I32), emu.IntValue(2, insts.I32))

			Expect(h.events.issued["a"]).To(Equal(uint64(0)))
			Expect(h.events.issued["b"]).To(Equal(uint64(0)))
			Expect(stats.Cycles).To(Equal(uint64(2)))
			Expect(stats.ExecutedCycles).To(Equal(uint64(1)))
			Expect(stats.StallsByCause[pipeline.StallFUContention]).To(BeZero())

			for _, s := range h.sched.FUStats() {
				Expect(s.Contentions).To(BeZero())
			}
		})

		It("should serialize them on a single adder", func() {
			config.SetUnits(insts.FUIntAddSub, 1)
			h := newHarness(twoAdds(), config)

			stats := h.run(emu.IntValue(1, insts.I32), emu.IntValue(2, insts.I32))

			Expect(h.events.issued["b"] - h.events.issued["a"]).To(Equal(uint64(1)))
			Expect(h.records[0].Blocked[pipeline.StallFUContention]).To(Equal(1))
			Expect(stats.Cycles).To(Equal(uint64(3)))

			contentions := uint64(0)
			for _, s := range h.sched.FUStats() {
				if s.Type == insts.FUIntAddSub {
					contentions = s.Contentions
				}
			}
			Expect(contentions).To(Equal(uint64(1)))
		})
	})

	Context("with a load feeding an add", func() {
		It("should issue the add when the load completes", func() {
			config.Memory.Regions[0].Latency = 4
			h := newHarness(loadAdd(), config)

			stats := h.run()

			Expect(h.events.issued["add"] - h.events.issued["ld"]).
				To(Equal(uint64(4)))
			for c := 1; c < 4; c++ {
				Expect(h.records[c].Stalled).To(BeTrue())
				Expect(h.records[c].Cause).To(Equal(pipeline.StallMemoryLatency))
			}
			Expect(stats.Cycles).To(Equal(uint64(7)))
			Expect(stats.StallsByCause[pipeline.StallMemoryLatency]).
				To(Equal(uint64(3)))
			Expect(h.sched.Memory().Stats().Reads).To(Equal(uint64(1)))
		})

		It("should report DMA waits on uncached DRAM", func() {
			config.Memory.Cache.Enabled = false
			b := cdfg.NewBuilder()
			fn := b.AddFunction("dram", 0)
			entry := b.AddBlock(fn, "entry")
			ld := b.AddInst(entry, cdfg.Instruction{Name: "ld", Op: insts.OpLoad,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Const(0x8000_0000)}})
			b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(ld)}})
			b.SetTop(fn)

			h := newHarness(build(b), config)
			stats := h.run()

			Expect(stats.StallsByCause[pipeline.StallDMAPending]).
				To(Equal(uint64(39)))
		})
	})

	Context("with a store and a load to the same address", func() {
		It("should complete them in program order", func() {
			h := newHarness(storeLoad(true), config)
			Expect(h.spm.storage.Write(0, emu.Encode(emu.Value{Bits: 7}, 4))).
				To(Succeed())

			h.run()

			Expect(h.sched.Result().Bits).To(Equal(uint64(42)))
			Expect(h.events.retired).To(Equal([]string{"st", "ld", "ret"}))
			Expect(h.sched.Edges().Memory).To(Equal(uint64(1)))
		})

		It("should follow the reversed order", func() {
			h := newHarness(storeLoad(false), config)
			Expect(h.spm.storage.Write(0, emu.Encode(emu.Value{Bits: 7}, 4))).
				To(Succeed())

			h.run()

			Expect(h.sched.Result().Bits).To(Equal(uint64(7)))
			Expect(h.events.retired).To(Equal([]string{"ld", "ret", "st"}))
			Expect(h.sched.Edges().WAR).To(Equal(uint64(1)))
		})
	})

	Context("with stores to the same address", func() {
		It("should keep program order when the first store waits on a slow op", func() {
			config.SetLatency(insts.OpSDiv, 6)

			b := cdfg.NewBuilder()
			fn := b.AddFunction("slow_store", 1)
			entry := b.AddBlock(fn, "entry")
			div := b.AddInst(entry, cdfg.Instruction{Name: "div", Op: insts.OpSDiv,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Arg(0), cdfg.Const(2)}})
			b.AddInst(entry, cdfg.Instruction{Name: "st1", Op: insts.OpStore,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(div), cdfg.Const(spmBase)}})
			b.AddInst(entry, cdfg.Instruction{Name: "st2", Op: insts.OpStore,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Const(9), cdfg.Const(spmBase)}})
			b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet})
			b.SetTop(fn)

			h := newHarness(build(b), config)
			h.run(emu.IntValue(10, insts.I32))

			Expect(h.events.issued["st1"]).To(Equal(uint64(6)))
			Expect(h.events.issued["st2"]).To(BeNumerically(">", h.events.issued["st1"]))
			Expect(retiredBefore(h, "st1", "st2")).To(BeTrue())
			for c := 1; c < 6; c++ {
				Expect(h.records[c].Blocked[pipeline.StallWAW]).To(Equal(1))
			}
			Expect(h.spm.word(0)).To(Equal(uint64(9)))
			Expect(h.sched.Edges().WAW).To(Equal(uint64(1)))
		})

		It("should keep program order behind a full retry queue", func() {
			config.Memory.Regions[0].QueueDepth = 1
			g := stores(
				storeSpec{"s0", cdfg.Const(1), 0},
				storeSpec{"s1", cdfg.Const(2), 4},
				storeSpec{"s2", cdfg.Const(3), 8},
				storeSpec{"s3", cdfg.Const(4), 0},
				storeSpec{"s4", cdfg.Const(5), 8},
			)
			h := newHarness(g, config)
			h.spm.limit = 1

			h.run()

			Expect(h.records[0].Blocked[pipeline.StallPortContention]).To(Equal(1))
			Expect(h.records[0].Blocked[pipeline.StallWAW]).To(Equal(2))
			Expect(h.sched.Memory().Stats().Rejected).To(Equal(uint64(1)))

			Expect(retiredBefore(h, "s0", "s3")).To(BeTrue())
			Expect(retiredBefore(h, "s2", "s4")).To(BeTrue())
			Expect(h.spm.word(0)).To(Equal(uint64(4)))
			Expect(h.spm.word(4)).To(Equal(uint64(2)))
			Expect(h.spm.word(8)).To(Equal(uint64(5)))
		})
	})

	Context("while memory requests wait for a port", func() {
		It("should blame the port for requests still queued", func() {
			config.Memory.Regions[0].QueueDepth = 4
			g := stores(
				storeSpec{"s0", cdfg.Const(1), 0},
				storeSpec{"s1", cdfg.Const(2), 4},
				storeSpec{"s2", cdfg.Const(3), 8},
				storeSpec{"s3", cdfg.Const(4), 12},
			)
			h := newHarness(g, config)
			h.spm.limit = 1

			stats := h.run()

			Expect(h.records[1].Cause).To(Equal(pipeline.StallPortContention))
			Expect(h.records[2].Cause).To(Equal(pipeline.StallPortContention))
			Expect(h.records[3].Cause).To(Equal(pipeline.StallMemoryLatency))
			Expect(stats.StallsByCause[pipeline.StallPortContention]).To(Equal(uint64(2)))
			Expect(h.spm.word(12)).To(Equal(uint64(4)))
		})

		It("should blame the port while it reports a stall", func() {
			g := stores(storeSpec{"s0", cdfg.Const(1), 0})

			free := newHarness(g, config)
			freeStats := free.run()
			Expect(freeStats.StallsByCause[pipeline.StallPortContention]).To(BeZero())
			Expect(freeStats.StallsByCause[pipeline.StallMemoryLatency]).
				To(BeNumerically(">", 0))

			busy := newHarness(g, config)
			busy.spm.stalled = true
			busyStats := busy.run()
			Expect(busyStats.StallsByCause[pipeline.StallPortContention]).
				To(Equal(freeStats.StallsByCause[pipeline.StallMemoryLatency]))
			Expect(busyStats.StallsByCause[pipeline.StallMemoryLatency]).To(BeZero())
		})
	})

	Context("with a loop", func() {
		It("should iterate through the phi", func() {
			h := newHarness(countingLoop(), config)

			stats := h.run(emu.IntValue(5, insts.I32))

			Expect(h.sched.Result().Bits).To(Equal(uint64(5)))
			// br0 + 5 iterations of 4 instructions + ret
			Expect(stats.Launched).To(Equal(uint64(22)))
			Expect(stats.Retired).To(Equal(stats.Launched))
			Expect(stats.MissingProducers).To(BeZero())
			Expect(h.sched.CriticalPath().Length).To(BeNumerically(">=", 10))
		})

		It("should run a single iteration", func() {
			h := newHarness(countingLoop(), config)

			h.run(emu.IntValue(0, insts.I32))

			Expect(h.sched.Result().Bits).To(Equal(uint64(1)))
		})
	})

	It("should call and return", func() {
		h := newHarness(callGraph(), config)

		stats := h.run(emu.IntValue(4, insts.I32))

		Expect(h.sched.Result().Bits).To(Equal(uint64(15)))
		Expect(stats.Calls).To(Equal(uint64(1)))
		Expect(h.events.issued["sum"]).To(BeNumerically(">", h.events.issued["one"]))
	})

	It("should take the fallthrough edge on a poisoned condition", func() {
		h := newHarness(poisonBranch(), config)

		stats := h.run()

		Expect(h.sched.Result().Bits).To(Equal(uint64(2)))
		Expect(stats.PoisonedBranches).To(Equal(uint64(1)))
		Expect(stats.RequestFailures).To(Equal(uint64(1)))
		Expect(h.sched.Memory().Stats().Failures).To(Equal(uint64(1)))
	})

	It("should reject a wrong argument count", func() {
		h := newHarness(twoAdds(), config)
		Expect(h.sched.Start(emu.Value{})).ToNot(Succeed())
	})

	It("should reject a second start", func() {
		h := newHarness(loadAdd(), config)
		Expect(h.sched.Start()).To(Succeed())
		Expect(h.sched.Start()).To(MatchError(pipeline.ErrAlreadyStarted))
	})

	It("should produce identical statistics after a reset", func() {
		h := newHarness(countingLoop(), config)
		first := h.run(emu.IntValue(3, insts.I32))

		h.sched.Reset()
		h.records = nil
		second := h.run(emu.IntValue(3, insts.I32))

		Expect(second).To(Equal(first))
	})

	It("should stop issuing while drained and continue after resume", func() {
		config.Memory.Regions[0].Latency = 4
		h := newHarness(loadAdd(), config)
		Expect(h.sched.Start()).To(Succeed())

		h.tick()
		h.sched.Drain()
		Expect(h.sched.Drained()).To(BeFalse())

		for i := 0; i < 6; i++ {
			h.tick()
		}
		Expect(h.sched.Drained()).To(BeTrue())
		_, issued := h.events.issued["add"]
		Expect(issued).To(BeFalse())

		h.sched.Resume()
		for i := 0; i < 20 && !h.sched.Done(); i++ {
			h.tick()
		}
		Expect(h.sched.Done()).To(BeTrue())
		Expect(h.sched.Result().Bits).To(Equal(uint64(1)))

		stats := h.sched.Stats()
		Expect(stats.Cycles).To(Equal(stats.ExecutedCycles + stats.StallCycles + 1))
	})

	Context("in lockstep mode", func() {
		It("should not overlap independent work with a memory access", func() {
			b := cdfg.NewBuilder()
			fn := b.AddFunction("lockstep", 1)
			entry := b.AddBlock(fn, "entry")
			ld := b.AddInst(entry, cdfg.Instruction{Name: "ld", Op: insts.OpLoad,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Const(spmBase)}})
			b.AddInst(entry, cdfg.Instruction{Name: "add", Op: insts.OpAdd,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Arg(0), cdfg.Const(1)}})
			b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(ld)}})
			b.SetTop(fn)
			g := build(b)

			ooo := newHarness(g, config)
			ooo.run(emu.IntValue(1, insts.I32))
			Expect(ooo.events.issued["add"]).To(Equal(uint64(0)))

			lock := newHarness(g, config, pipeline.WithLockstep(true))
			lock.run(emu.IntValue(1, insts.I32))
			Expect(lock.events.issued["add"]).To(Equal(uint64(2)))
			Expect(lock.sched.Stats().Cycles).
				To(BeNumerically(">=", ooo.sched.Stats().Cycles))
			Expect(lock.records[1].Cause).To(Equal(pipeline.StallMemoryLatency))
		})

		It("should not overlap independent work with a long compute op", func() {
			config.SetLatency(insts.OpSDiv, 6)

			b := cdfg.NewBuilder()
			fn := b.AddFunction("lockstep_div", 2)
			entry := b.AddBlock(fn, "entry")
			div := b.AddInst(entry, cdfg.Instruction{Name: "div", Op: insts.OpSDiv,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Arg(0), cdfg.Const(2)}})
			b.AddInst(entry, cdfg.Instruction{Name: "add", Op: insts.OpAdd,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Arg(1), cdfg.Const(1)}})
			b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(div)}})
			b.SetTop(fn)
			g := build(b)

			args := []emu.Value{emu.IntValue(10, insts.I32), emu.IntValue(1, insts.I32)}

			ooo := newHarness(g, config)
			ooo.run(args...)
			Expect(ooo.events.issued["add"]).To(Equal(uint64(0)))

			lock := newHarness(g, config, pipeline.WithLockstep(true))
			lock.run(args...)
			Expect(lock.sched.Result().Bits).To(Equal(uint64(5)))
			Expect(lock.events.issued["div"]).To(Equal(uint64(0)))
			Expect(lock.events.issued["add"]).To(Equal(uint64(6)))
			for c := 1; c < 6; c++ {
				Expect(lock.records[c].Stalled).To(BeTrue())
				Expect(lock.records[c].Cause).To(Equal(pipeline.StallFUContention))
			}
			Expect(lock.sched.Stats().Cycles).
				To(BeNumerically(">", ooo.sched.Stats().Cycles))
		})
	})

	It("should hold launches back when the window is full", func() {
		config.SetUnits(insts.FUIntAddSub, 1)
		h := newHarness(twoAdds(), config, pipeline.WithMaxWindow(1))

		stats := h.run(emu.IntValue(1, insts.I32), emu.IntValue(2, insts.I32))

		Expect(stats.Launched).To(Equal(uint64(3)))
		Expect(h.records[0].Window).To(Equal(1))
		Expect(h.records[0].Blocked[pipeline.StallResourceLimit]).To(Equal(1))
	})
})
