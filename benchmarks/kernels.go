package benchmarks

import (
	"fmt"
	"math"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/emu"
	"github.com/sarchlab/hwaccsim/insts"
	"github.com/sarchlab/hwaccsim/timing/latency"
)

// Addresses the kernels place their data at. They fall into the default
// scratchpad and DRAM regions.
const (
	SPMBase  = 0x1000_0000
	DRAMBase = 0x8000_0000
)

// Memory is where kernels place their inputs and read back their outputs.
type Memory interface {
	Write(addr uint64, data []byte) error
	Read(addr uint64, size int) ([]byte, error)
}

// Benchmark is one kernel with its inputs and expected outcome.
type Benchmark struct {
	// Name identifies the benchmark.
	Name string

	// Description explains what the benchmark measures.
	Description string

	// Graph is the kernel. It is shared by all runs.
	Graph *cdfg.Graph

	// Args are the arguments of the top function.
	Args []emu.Value

	// Configure adjusts a copy of the harness configuration.
	Configure func(c *latency.Config)

	// Setup writes the inputs.
	Setup func(m Memory) error

	// Expected is the value the top function returns.
	Expected uint64

	// Verify checks the outputs left in memory.
	Verify func(m Memory) error
}

func mustBuild(b *cdfg.Builder) *cdfg.Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

func writeValues(m Memory, addr uint64, t insts.ValueType, values ...uint64) error {
	size := t.Bytes()
	for i, v := range values {
		data := emu.Encode(emu.Value{Bits: v}, size)
		if err := m.Write(addr+uint64(i)*uint64(size), data); err != nil {
			return err
		}
	}
	return nil
}

func expectValues(m Memory, addr uint64, t insts.ValueType, values ...uint64) error {
	size := t.Bytes()
	for i, want := range values {
		a := addr + uint64(i)*uint64(size)
		data, err := m.Read(a, int(size))
		if err != nil {
			return err
		}
		if got := emu.Decode(data, t).Bits; got != want {
			return fmt.Errorf("value at 0x%x is %d, want %d", a, got, want)
		}
	}
	return nil
}

// GetKernels returns the standard kernels.
func GetKernels() []Benchmark {
	return []Benchmark{
		VectorAdd(8),
		DotProduct(8),
		MatMul2x2(),
	}
}

// GetScenarios returns the scheduling scenarios: independent adds with two
// adders and with one, a load feeding an add, and a store followed by a load
// of the same address.
func GetScenarios() []Benchmark {
	return []Benchmark{
		IndependentAdds("scenario_a_two_adders", 2),
		IndependentAdds("scenario_b_one_adder", 1),
		LoadUse(4),
		StoreLoad(),
	}
}

// GetAll returns the kernels followed by the scenarios.
func GetAll() []Benchmark {
	return append(GetKernels(), GetScenarios()...)
}

// VectorAdd computes c[i] = a[i] + b[i] over n 32-bit integers in the
// scratchpad and returns the last sum.
func VectorAdd(n int) Benchmark {
	const (
		a = SPMBase
		b = SPMBase + 0x400
		c = SPMBase + 0x800
	)

	bld := cdfg.NewBuilder()
	fn := bld.AddFunction("vector_add", 0)
	entry := bld.AddBlock(fn, "entry")
	loop := bld.AddBlock(fn, "loop")
	exit := bld.AddBlock(fn, "exit")

	bld.AddInst(entry, cdfg.Instruction{Op: insts.OpBr, Targets: []cdfg.BlockID{loop}})

	// Ids follow insertion order. The entry branch is 0.
	const (
		idI = cdfg.InstID(iota + 1)
		idPA
		idPB
		idPC
		idX
		idY
		idS
		_
		idNext
		idCond
	)

	bld.AddInst(loop, cdfg.Instruction{Name: "i", Op: insts.OpPhi, Type: insts.I32,
		Incoming: []cdfg.PhiIncoming{
			{Block: entry, Value: cdfg.Const(0)},
			{Block: loop, Value: cdfg.Ref(idNext)},
		}})
	for _, p := range []struct {
		name string
		base uint64
	}{{"pa", a}, {"pb", b}, {"pc", c}} {
		bld.AddInst(loop, cdfg.Instruction{Name: p.name, Op: insts.OpGEP,
			Type: insts.Ptr, OperandType: insts.I32, Strides: []uint64{4},
			Operands: []cdfg.Operand{cdfg.Const(p.base), cdfg.Ref(idI)}})
	}
	bld.AddInst(loop, cdfg.Instruction{Name: "x", Op: insts.OpLoad, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(idPA)}})
	bld.AddInst(loop, cdfg.Instruction{Name: "y", Op: insts.OpLoad, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(idPB)}})
	bld.AddInst(loop, cdfg.Instruction{Name: "s", Op: insts.OpAdd, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(idX), cdfg.Ref(idY)}})
	bld.AddInst(loop, cdfg.Instruction{Op: insts.OpStore, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(idS), cdfg.Ref(idPC)}})
	bld.AddInst(loop, cdfg.Instruction{Name: "next", Op: insts.OpAdd, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(idI), cdfg.Const(1)}})
	bld.AddInst(loop, cdfg.Instruction{Name: "cond", Op: insts.OpICmp, Type: insts.I1,
		OperandType: insts.I32, Pred: insts.PredSLT,
		Operands: []cdfg.Operand{cdfg.Ref(idNext), cdfg.Const(uint64(n))}})
	bld.AddInst(loop, cdfg.Instruction{Op: insts.OpBr,
		Operands: []cdfg.Operand{cdfg.Ref(idCond)},
		Targets:  []cdfg.BlockID{loop, exit}})
	bld.AddInst(exit, cdfg.Instruction{Op: insts.OpRet, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(idS)}})
	bld.SetTop(fn)

	as := make([]uint64, n)
	bs := make([]uint64, n)
	cs := make([]uint64, n)
	for i := range n {
		as[i] = uint64(i)
		bs[i] = uint64(2 * i)
		cs[i] = uint64(3 * i)
	}

	return Benchmark{
		Name:        "vector_add",
		Description: fmt.Sprintf("c[i] = a[i] + b[i] over %d words in the scratchpad", n),
		Graph:       mustBuild(bld),
		Setup: func(m Memory) error {
			if err := writeValues(m, a, insts.I32, as...); err != nil {
				return err
			}
			return writeValues(m, b, insts.I32, bs...)
		},
		Expected: cs[n-1],
		Verify: func(m Memory) error {
			return expectValues(m, c, insts.I32, cs...)
		},
	}
}

// DotProduct sums a[i] * b[i] over n doubles in DRAM.
func DotProduct(n int) Benchmark {
	const (
		a = DRAMBase
		b = DRAMBase + 0x1000
	)

	bld := cdfg.NewBuilder()
	fn := bld.AddFunction("dot_product", 0)
	entry := bld.AddBlock(fn, "entry")
	loop := bld.AddBlock(fn, "loop")
	exit := bld.AddBlock(fn, "exit")

	bld.AddInst(entry, cdfg.Instruction{Op: insts.OpBr, Targets: []cdfg.BlockID{loop}})

	const (
		idI = cdfg.InstID(iota + 1)
		idAcc
		idPA
		idPB
		idX
		idY
		idP
		idSum
		idNext
		idCond
	)

	bld.AddInst(loop, cdfg.Instruction{Name: "i", Op: insts.OpPhi, Type: insts.I32,
		Incoming: []cdfg.PhiIncoming{
			{Block: entry, Value: cdfg.Const(0)},
			{Block: loop, Value: cdfg.Ref(idNext)},
		}})
	bld.AddInst(loop, cdfg.Instruction{Name: "acc", Op: insts.OpPhi, Type: insts.Double,
		Incoming: []cdfg.PhiIncoming{
			{Block: entry, Value: cdfg.Const(math.Float64bits(0))},
			{Block: loop, Value: cdfg.Ref(idSum)},
		}})
	bld.AddInst(loop, cdfg.Instruction{Name: "pa", Op: insts.OpGEP, Type: insts.Ptr,
		OperandType: insts.I32, Strides: []uint64{8},
		Operands: []cdfg.Operand{cdfg.Const(a), cdfg.Ref(idI)}})
	bld.AddInst(loop, cdfg.Instruction{Name: "pb", Op: insts.OpGEP, Type: insts.Ptr,
		OperandType: insts.I32, Strides: []uint64{8},
		Operands: []cdfg.Operand{cdfg.Const(b), cdfg.Ref(idI)}})
	bld.AddInst(loop, cdfg.Instruction{Name: "x", Op: insts.OpLoad, Type: insts.Double,
		Operands: []cdfg.Operand{cdfg.Ref(idPA)}})
	bld.AddInst(loop, cdfg.Instruction{Name: "y", Op: insts.OpLoad, Type: insts.Double,
		Operands: []cdfg.Operand{cdfg.Ref(idPB)}})
	bld.AddInst(loop, cdfg.Instruction{Name: "p", Op: insts.OpFMul, Type: insts.Double,
		Operands: []cdfg.Operand{cdfg.Ref(idX), cdfg.Ref(idY)}})
	bld.AddInst(loop, cdfg.Instruction{Name: "sum", Op: insts.OpFAdd, Type: insts.Double,
		Operands: []cdfg.Operand{cdfg.Ref(idAcc), cdfg.Ref(idP)}})
	bld.AddInst(loop, cdfg.Instruction{Name: "next", Op: insts.OpAdd, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(idI), cdfg.Const(1)}})
	bld.AddInst(loop, cdfg.Instruction{Name: "cond", Op: insts.OpICmp, Type: insts.I1,
		OperandType: insts.I32, Pred: insts.PredSLT,
		Operands: []cdfg.Operand{cdfg.Ref(idNext), cdfg.Const(uint64(n))}})
	bld.AddInst(loop, cdfg.Instruction{Op: insts.OpBr,
		Operands: []cdfg.Operand{cdfg.Ref(idCond)},
		Targets:  []cdfg.BlockID{loop, exit}})
	bld.AddInst(exit, cdfg.Instruction{Op: insts.OpRet, Type: insts.Double,
		Operands: []cdfg.Operand{cdfg.Ref(idSum)}})
	bld.SetTop(fn)

	as := make([]uint64, n)
	bs := make([]uint64, n)
	sum := 0.0
	for i := range n {
		x, y := float64(i+1), 0.5
		as[i] = math.Float64bits(x)
		bs[i] = math.Float64bits(y)
		sum += x * y
	}

	return Benchmark{
		Name:        "dot_product",
		Description: fmt.Sprintf("sum of a[i] * b[i] over %d doubles in cached DRAM", n),
		Graph:       mustBuild(bld),
		Setup: func(m Memory) error {
			if err := writeValues(m, a, insts.Double, as...); err != nil {
				return err
			}
			return writeValues(m, b, insts.Double, bs...)
		},
		Expected: math.Float64bits(sum),
	}
}

// MatMul2x2 multiplies two 2x2 integer matrices, fully unrolled, and returns
// the bottom right element of the product.
func MatMul2x2() Benchmark {
	const (
		a = SPMBase
		b = SPMBase + 0x10
		c = SPMBase + 0x20
	)

	bld := cdfg.NewBuilder()
	fn := bld.AddFunction("matmul_2x2", 0)
	entry := bld.AddBlock(fn, "entry")

	load := func(name string, addr uint64) cdfg.InstID {
		return bld.AddInst(entry, cdfg.Instruction{Name: name, Op: insts.OpLoad,
			Type: insts.I32, Operands: []cdfg.Operand{cdfg.Const(addr)}})
	}

	var av, bv [4]cdfg.InstID
	for i := range 4 {
		av[i] = load(fmt.Sprintf("a%d", i), a+uint64(4*i))
		bv[i] = load(fmt.Sprintf("b%d", i), b+uint64(4*i))
	}

	var last cdfg.InstID
	for r := range 2 {
		for col := range 2 {
			m0 := bld.AddInst(entry, cdfg.Instruction{Op: insts.OpMul, Type: insts.I32,
				Operands: []cdfg.Operand{cdfg.Ref(av[2*r]), cdfg.Ref(bv[col])}})
			m1 := bld.AddInst(entry, cdfg.Instruction{Op: insts.OpMul, Type: insts.I32,
				Operands: []cdfg.Operand{cdfg.Ref(av[2*r+1]), cdfg.Ref(bv[2+col])}})
			last = bld.AddInst(entry, cdfg.Instruction{
				Name: fmt.Sprintf("c%d%d", r, col), Op: insts.OpAdd, Type: insts.I32,
				Operands: []cdfg.Operand{cdfg.Ref(m0), cdfg.Ref(m1)}})
			bld.AddInst(entry, cdfg.Instruction{Op: insts.OpStore, Type: insts.I32,
				Operands: []cdfg.Operand{cdfg.Ref(last),
					cdfg.Const(c + uint64(4*(2*r+col)))}})
		}
	}
	bld.AddInst(entry, cdfg.Instruction{Op: insts.OpRet, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(last)}})
	bld.SetTop(fn)

	return Benchmark{
		Name:        "matmul_2x2",
		Description: "unrolled 2x2 integer matrix multiply in the scratchpad",
		Graph:       mustBuild(bld),
		Setup: func(m Memory) error {
			if err := writeValues(m, a, insts.I32, 1, 2, 3, 4); err != nil {
				return err
			}
			return writeValues(m, b, insts.I32, 5, 6, 7, 8)
		},
		Expected: 50,
		Verify: func(m Memory) error {
			return expectValues(m, c, insts.I32, 19, 22, 43, 50)
		},
	}
}

// IndependentAdds adds two pairs of arguments with the given number of
// single-cycle adders.
func IndependentAdds(name string, adders int) Benchmark {
	bld := cdfg.NewBuilder()
	fn := bld.AddFunction("two_adds", 4)
	entry := bld.AddBlock(fn, "entry")

	x := bld.AddInst(entry, cdfg.Instruction{Name: "x", Op: insts.OpAdd, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Arg(0), cdfg.Arg(1)}})
	y := bld.AddInst(entry, cdfg.Instruction{Name: "y", Op: insts.OpAdd, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Arg(2), cdfg.Arg(3)}})
	r := bld.AddInst(entry, cdfg.Instruction{Name: "r", Op: insts.OpXor, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(x), cdfg.Ref(y)}})
	bld.AddInst(entry, cdfg.Instruction{Op: insts.OpRet, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(r)}})
	bld.SetTop(fn)

	return Benchmark{
		Name:        name,
		Description: fmt.Sprintf("two independent adds on %d adder(s)", adders),
		Graph:       mustBuild(bld),
		Args: []emu.Value{
			emu.IntValue(1, insts.I32), emu.IntValue(2, insts.I32),
			emu.IntValue(3, insts.I32), emu.IntValue(4, insts.I32),
		},
		Configure: func(c *latency.Config) {
			c.SetUnits(insts.FUIntAddSub, adders)
			c.SetLatency(insts.OpAdd, 1)
		},
		Expected: 3 ^ 7,
	}
}

// LoadUse feeds a scratchpad load with the given latency into an add.
func LoadUse(lat int) Benchmark {
	bld := cdfg.NewBuilder()
	fn := bld.AddFunction("load_use", 0)
	entry := bld.AddBlock(fn, "entry")

	x := bld.AddInst(entry, cdfg.Instruction{Name: "x", Op: insts.OpLoad, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Const(SPMBase)}})
	s := bld.AddInst(entry, cdfg.Instruction{Name: "s", Op: insts.OpAdd, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(x), cdfg.Const(1)}})
	bld.AddInst(entry, cdfg.Instruction{Op: insts.OpRet, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(s)}})
	bld.SetTop(fn)

	return Benchmark{
		Name:        "scenario_c_load_use",
		Description: fmt.Sprintf("a %d-cycle load feeding an add", lat),
		Graph:       mustBuild(bld),
		Configure: func(c *latency.Config) {
			for i := range c.Memory.Regions {
				if c.Memory.Regions[i].Kind == latency.RegionSPM {
					c.Memory.Regions[i].Latency = lat
				}
			}
		},
		Setup: func(m Memory) error {
			return writeValues(m, SPMBase, insts.I32, 41)
		},
		Expected: 42,
	}
}

// StoreLoad stores a value and loads it back from the same address.
func StoreLoad() Benchmark {
	bld := cdfg.NewBuilder()
	fn := bld.AddFunction("store_load", 1)
	entry := bld.AddBlock(fn, "entry")

	bld.AddInst(entry, cdfg.Instruction{Op: insts.OpStore, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Arg(0), cdfg.Const(SPMBase + 0x40)}})
	x := bld.AddInst(entry, cdfg.Instruction{Name: "x", Op: insts.OpLoad, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Const(SPMBase + 0x40)}})
	bld.AddInst(entry, cdfg.Instruction{Op: insts.OpRet, Type: insts.I32,
		Operands: []cdfg.Operand{cdfg.Ref(x)}})
	bld.SetTop(fn)

	return Benchmark{
		Name:        "scenario_d_store_load",
		Description: "a store followed by a load of the same address",
		Graph:       mustBuild(bld),
		Args:        []emu.Value{emu.IntValue(7, insts.I32)},
		Setup: func(m Memory) error {
			return writeValues(m, SPMBase+0x40, insts.I32, 1)
		},
		Expected: 7,
		Verify: func(m Memory) error {
			return expectValues(m, SPMBase+0x40, insts.I32, 7)
		},
	}
}
