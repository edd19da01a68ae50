package host_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/emu"
	"github.com/sarchlab/hwaccsim/host"
	"github.com/sarchlab/hwaccsim/insts"
	"github.com/sarchlab/hwaccsim/timing/core"
	"github.com/sarchlab/hwaccsim/timing/latency"
)

func mustBuild(b *cdfg.Builder) *cdfg.Graph {
	g, err := b.Build()
	Expect(err).NotTo(HaveOccurred())
	return g
}

// incrementGraph loads a word from the scratchpad, adds one, stores the sum
// next to it and returns it.
func incrementGraph() *cdfg.Graph {
	b := cdfg.NewBuilder()
	fn := b.AddFunction("increment", 0)
	entry := b.AddBlock(fn, "entry")

	ld := b.AddInst(entry, cdfg.Instruction{Name: "x", Op: insts.OpLoad,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Const(spmBase)}})
	sum := b.AddInst(entry, cdfg.Instruction{Name: "sum", Op: insts.OpAdd,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(ld), cdfg.Const(1)}})
	b.AddInst(entry, cdfg.Instruction{Name: "st", Op: insts.OpStore,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(sum), cdfg.Const(spmBase + 4)}})
	b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(sum)}})
	b.SetTop(fn)

	return mustBuild(b)
}

func spinGraph() *cdfg.Graph {
	b := cdfg.NewBuilder()
	fn := b.AddFunction("spin", 0)
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
		Operands: []cdfg.Operand{cdfg.Ref(2), cdfg.Const(1_000_000)}})
	b.AddInst(loop, cdfg.Instruction{Name: "br1", Op: insts.OpBr,
		Operands: []cdfg.Operand{cdfg.Ref(3)},
		Targets:  []cdfg.BlockID{loop, exit}})
	b.AddInst(exit, cdfg.Instruction{Name: "ret", Op: insts.OpRet, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(2)}})
	b.SetTop(fn)

	return mustBuild(b)
}

var _ = Describe("Runner", func() {
	var config *latency.Config

	BeforeEach(func() {
		config = latency.DefaultConfig()
	})

	newRunner := func(g *cdfg.Graph, opts ...host.RunnerOption) *host.Runner {
		r, err := host.NewRunner(g, config, opts...)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	It("should run a graph through the scratchpad", func() {
		r := newRunner(incrementGraph())
		Expect(r.Functional().Write(spmBase, emu.Encode(emu.IntValue(41, insts.I32), 4))).
			To(Succeed())

		report, err := r.Run()
		Expect(err).NotTo(HaveOccurred())

		Expect(r.Accelerator().Result().Bits).To(Equal(uint64(42)))
		Expect(report.Performance.Finished).To(BeTrue())
		Expect(report.Performance.TotalCycles).To(Equal(
			report.Performance.ExecutedNodes + report.Performance.StallCycles + 1))
		Expect(report.MemoryAccess.SPM.Reads).To(Equal(uint64(1)))
		Expect(report.MemoryAccess.SPM.Writes).To(Equal(uint64(1)))
		Expect(report.MemoryAccess.Failures).To(BeZero())

		stored, err := r.Functional().Read(spmBase+4, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(Equal(emu.Encode(emu.IntValue(42, insts.I32), 4)))
	})

	It("should give the same report when run again", func() {
		r := newRunner(incrementGraph())
		Expect(r.Functional().Write(spmBase, emu.Encode(emu.IntValue(7, insts.I32), 4))).
			To(Succeed())

		first, err := r.Run()
		Expect(err).NotTo(HaveOccurred())
		second, err := r.Run()
		Expect(err).NotTo(HaveOccurred())

		a, err := first.Marshal(false)
		Expect(err).NotTo(HaveOccurred())
		b, err := second.Marshal(false)
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(MatchJSON(a))
		Expect(r.Accelerator().Result().Bits).To(Equal(uint64(8)))
	})

	It("should stop at the cycle bound", func() {
		r := newRunner(spinGraph(), host.WithMaxCycles(10))

		report, err := r.Run()
		Expect(err).To(MatchError(host.ErrMaxTick))
		Expect(report.Performance.Finished).To(BeFalse())
		Expect(report.Performance.TotalCycles).To(Equal(uint64(10)))
		Expect(r.Context().TimedOut()).To(BeTrue())
	})

	Context("untimed access", func() {
		It("should reject addresses outside every region", func() {
			r := newRunner(incrementGraph())

			err := r.Functional().Write(0x4, []byte{1})
			Expect(err).To(MatchError(core.ErrFunctionalAccess))
			_, err = r.Functional().Read(0x4, 1)
			Expect(err).To(MatchError(core.ErrFunctionalAccess))
		})

		It("should see stores that are still in the DRAM cache", func() {
			b := cdfg.NewBuilder()
			fn := b.AddFunction("dram_store", 0)
			entry := b.AddBlock(fn, "entry")
			b.AddInst(entry, cdfg.Instruction{Name: "st", Op: insts.OpStore,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Const(9), cdfg.Const(dramBase)}})
			b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet})
			b.SetTop(fn)

			r := newRunner(mustBuild(b))
			fm := r.Functional()
			Expect(fm.Write(dramBase, []byte{1, 1, 1, 1})).To(Succeed())

			_, err := r.Run()
			Expect(err).NotTo(HaveOccurred())

			dram := r.Memory().Port(1)
			Expect(dram.Cache().Contains(dramBase)).To(BeTrue())
			Expect(fm.Flush()).To(Succeed())
			Expect(dram.Cache().Contains(dramBase)).To(BeFalse())

			data, err := fm.Read(dramBase, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(emu.Encode(emu.IntValue(9, insts.I32), 4)))
		})

		It("should drop a cached line on invalidate", func() {
			b := cdfg.NewBuilder()
			fn := b.AddFunction("dram_load", 0)
			entry := b.AddBlock(fn, "entry")
			ld := b.AddInst(entry, cdfg.Instruction{Name: "ld", Op: insts.OpLoad,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Const(dramBase)}})
			b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet,
				Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(ld)}})
			b.SetTop(fn)

			r := newRunner(mustBuild(b))
			_, err := r.Run()
			Expect(err).NotTo(HaveOccurred())

			dram := r.Memory().Port(1)
			Expect(dram.Cache().Contains(dramBase)).To(BeTrue())
			Expect(r.Functional().Invalidate(dramBase, 4)).To(Succeed())
			Expect(dram.Cache().Contains(dramBase)).To(BeFalse())
		})

		It("should leave the memory counters untouched", func() {
			r := newRunner(incrementGraph())
			fm := r.Functional()
			Expect(fm.Write(spmBase, emu.Encode(emu.IntValue(1, insts.I32), 4))).
				To(Succeed())
			Expect(fm.Write(dramBase, []byte{1})).To(Succeed())

			report, err := r.Run()
			Expect(err).NotTo(HaveOccurred())
			Expect(report.MemoryAccess.SPM.Reads).To(Equal(uint64(1)))
			Expect(report.MemoryAccess.SPM.Writes).To(Equal(uint64(1)))
			Expect(report.MemoryAccess.Cache.Misses).To(BeZero())
		})
	})

	It("should keep the cycle identity when the bound cuts the run", func() {
		r := newRunner(spinGraph(), host.WithMaxCycles(50))

		report, err := r.Run()
		Expect(err).To(MatchError(host.ErrMaxTick))

		p := report.Performance
		Expect(p.Finished).To(BeFalse())
		Expect(p.TotalCycles).To(Equal(uint64(50)))
		Expect(p.TotalCycles).To(Equal(p.ExecutedNodes + p.StallCycles + 1))
		Expect(report.StallBreakdown.TotalStallCycles).To(Equal(p.StallCycles))
	})
})
