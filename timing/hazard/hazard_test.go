package hazard_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/emu"
	"github.com/sarchlab/hwaccsim/insts"
	"github.com/sarchlab/hwaccsim/timing/hazard"
)

var _ = Describe("Tracker", func() {
	var t *hazard.Tracker

	BeforeEach(func() {
		t = hazard.NewTracker()
	})

	Describe("values", func() {
		It("should make a value available from its ready cycle", func() {
			key := hazard.Key{Frame: 0, Inst: 3, Iter: 0}
			Expect(t.Define(key, 1)).To(Succeed())
			Expect(t.Available(key, 5)).To(BeFalse())

			t.Publish(key, emu.Value{Bits: 42}, 7)
			Expect(t.Available(key, 6)).To(BeFalse())
			Expect(t.Available(key, 7)).To(BeTrue())
			Expect(t.Value(key).Bits).To(Equal(uint64(42)))
		})

		It("should reject a second definition of a pending key", func() {
			key := hazard.Key{Inst: 1}
			Expect(t.Define(key, 1)).To(Succeed())
			Expect(t.Define(key, 2)).NotTo(Succeed())
		})

		It("should bind consumers to the latest iteration", func() {
			iter0 := t.NextIteration(0, 1)
			iter1 := t.NextIteration(0, 1)
			Expect(iter0).To(Equal(uint32(0)))
			Expect(iter1).To(Equal(uint32(1)))

			k0 := hazard.Key{Inst: 4, Iter: iter0}
			k1 := hazard.Key{Inst: 4, Iter: iter1}
			Expect(t.Define(k0, 1)).To(Succeed())
			t.Publish(k0, emu.Value{Bits: 1}, 0)
			Expect(t.Define(k1, 9)).To(Succeed())

			latest, found := t.Latest(0, 4)
			Expect(found).To(BeTrue())
			Expect(latest).To(Equal(k1))
			Expect(t.Available(latest, 100)).To(BeFalse())

			seq, _ := t.Producer(latest)
			Expect(seq).To(Equal(uint64(9)))
		})

		It("should keep iterations separate per frame", func() {
			t.NextIteration(0, 1)
			Expect(t.NextIteration(1, 1)).To(BeZero())
		})

		It("should drop superseded values once consumers unbind", func() {
			k0 := hazard.Key{Inst: 2, Iter: 0}
			Expect(t.Define(k0, 1)).To(Succeed())
			t.Publish(k0, emu.Value{Bits: 5}, 1)
			t.Bind(k0)

			Expect(t.Define(hazard.Key{Inst: 2, Iter: 1}, 2)).To(Succeed())
			Expect(t.Value(k0).Bits).To(Equal(uint64(5)))
			Expect(t.Live()).To(Equal(2))

			t.Unbind(k0)
			Expect(t.Live()).To(Equal(1))
			Expect(t.Edges().RAW).To(Equal(uint64(1)))
		})

		It("should forget a returned frame", func() {
			key := hazard.Key{Frame: 3, Inst: 2}
			Expect(t.Define(key, 1)).To(Succeed())
			t.Publish(key, emu.Value{}, 0)
			t.DropFrame(3)

			_, found := t.Latest(3, 2)
			Expect(found).To(BeFalse())
			Expect(t.Live()).To(BeZero())
		})

		It("should read unknown values as poison", func() {
			Expect(t.Value(hazard.Key{Inst: 7}).Poison).To(BeTrue())
		})
	})

	Describe("memory ordering", func() {
		It("should hold a load behind an earlier store to the same bytes", func() {
			t.AddAccess(1, hazard.AccessStore)
			t.AddAccess(2, hazard.AccessLoad)
			t.ResolveAddress(1, 0x100, 4)
			t.ResolveAddress(2, 0x102, 4)

			h, blocked := t.MemoryHazard(2)
			Expect(blocked).To(BeTrue())
			Expect(h).To(Equal(hazard.HazardRAW))

			_, blocked = t.MemoryHazard(1)
			Expect(blocked).To(BeFalse())

			t.RetireAccess(1)
			_, blocked = t.MemoryHazard(2)
			Expect(blocked).To(BeFalse())
			Expect(t.Edges().Memory).To(Equal(uint64(1)))
		})

		It("should let disjoint accesses pass", func() {
			t.AddAccess(1, hazard.AccessStore)
			t.AddAccess(2, hazard.AccessStore)
			t.ResolveAddress(1, 0x100, 4)
			t.ResolveAddress(2, 0x104, 4)

			_, blocked := t.MemoryHazard(2)
			Expect(blocked).To(BeFalse())
		})

		It("should order stores", func() {
			t.AddAccess(1, hazard.AccessStore)
			t.AddAccess(2, hazard.AccessStore)
			t.ResolveAddress(2, 0x200, 8)
			t.ResolveAddress(1, 0x204, 4)

			h, blocked := t.MemoryHazard(2)
			Expect(blocked).To(BeTrue())
			Expect(h).To(Equal(hazard.HazardWAW))
			Expect(t.Edges().WAW).To(Equal(uint64(1)))
		})

		It("should hold a store behind an earlier load", func() {
			t.AddAccess(1, hazard.AccessLoad)
			t.AddAccess(2, hazard.AccessStore)
			t.ResolveAddress(1, 0x300, 4)
			t.ResolveAddress(2, 0x300, 4)

			h, _ := t.MemoryHazard(2)
			Expect(h).To(Equal(hazard.HazardWAR))
			Expect(t.Edges().WAR).To(Equal(uint64(1)))
		})

		It("should never hold a load behind a load", func() {
			t.AddAccess(1, hazard.AccessLoad)
			t.AddAccess(2, hazard.AccessLoad)
			t.ResolveAddress(2, 0x300, 4)

			_, blocked := t.MemoryHazard(2)
			Expect(blocked).To(BeFalse())
		})

		It("should treat an unknown earlier store address as a conflict", func() {
			t.AddAccess(1, hazard.AccessStore)
			t.AddAccess(2, hazard.AccessLoad)
			t.ResolveAddress(2, 0x400, 4)

			h, blocked := t.MemoryHazard(2)
			Expect(blocked).To(BeTrue())
			Expect(h).To(Equal(hazard.HazardRAW))

			t.ResolveAddress(1, 0x800, 4)
			_, blocked = t.MemoryHazard(2)
			Expect(blocked).To(BeFalse())
		})

		It("should forget retired accesses", func() {
			t.AddAccess(1, hazard.AccessStore)
			t.RetireAccess(1)
			Expect(t.PendingAccesses()).To(BeZero())
		})
	})

	It("should count control edges", func() {
		t.CountControl(4)
		Expect(t.Edges().Control).To(Equal(uint64(4)))
		Expect(t.Edges().Total()).To(Equal(uint64(4)))
	})

	It("should reset", func() {
		Expect(t.Define(hazard.Key{}, 0)).To(Succeed())
		t.AddAccess(0, hazard.AccessLoad)
		t.Reset()
		Expect(t.Live()).To(BeZero())
		Expect(t.PendingAccesses()).To(BeZero())
	})
})

var _ = Describe("ResolvePhi", func() {
	It("should pick the incoming value of the taken edge", func() {
		b := cdfg.NewBuilder()
		fn := b.AddFunction("f", 1)
		entry := b.AddBlock(fn, "entry")
		left := b.AddBlock(fn, "left")
		right := b.AddBlock(fn, "right")
		join := b.AddBlock(fn, "join")

		cond := b.AddInst(entry, cdfg.Instruction{Op: insts.OpICmp,
			Type: insts.I1, OperandType: insts.I32, Pred: insts.PredEQ,
			Operands: []cdfg.Operand{cdfg.Arg(0), cdfg.Const(0)}})
		b.AddInst(entry, cdfg.Instruction{Op: insts.OpBr,
			Operands: []cdfg.Operand{cdfg.Ref(cond)},
			Targets:  []cdfg.BlockID{left, right}})
		b.AddInst(left, cdfg.Instruction{Op: insts.OpBr,
			Targets: []cdfg.BlockID{join}})
		b.AddInst(right, cdfg.Instruction{Op: insts.OpBr,
			Targets: []cdfg.BlockID{join}})
		phi := b.AddInst(join, cdfg.Instruction{Op: insts.OpPhi, Type: insts.I32,
			Incoming: []cdfg.PhiIncoming{
				{Block: left, Value: cdfg.Const(1)},
				{Block: right, Value: cdfg.Const(2)},
			}})
		b.AddInst(join, cdfg.Instruction{Op: insts.OpRet,
			Operands: []cdfg.Operand{cdfg.Ref(phi)}})
		b.SetTop(fn)
		g, err := b.Build()
		Expect(err).NotTo(HaveOccurred())

		op, ok := hazard.ResolvePhi(g, phi, right)
		Expect(ok).To(BeTrue())
		Expect(op.Imm).To(Equal(uint64(2)))

		_, ok = hazard.ResolvePhi(g, phi, cdfg.NoBlock)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Chain", func() {
	It("should be kept with the value", func() {
		t := hazard.NewTracker()
		key := hazard.Key{Inst: 1}
		Expect(t.Define(key, 0)).To(Succeed())

		t.SetChain(key, hazard.Chain{Length: 3, Loads: 1, Computes: 2})
		Expect(t.Chain(key).Length).To(Equal(uint32(3)))
		Expect(t.Chain(hazard.Key{Inst: 9})).To(Equal(hazard.Chain{}))
	})
})
