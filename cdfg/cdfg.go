// Package cdfg holds the static control/data-flow graph an accelerator runs.
//
// The graph is an arena: functions, blocks and instructions live in flat
// slices and refer to each other by integer id. Loops, back-edges and phi
// nodes that name later blocks are therefore plain integers, and a Graph can
// be shared by any number of simulation runs because nothing in it changes
// after Build.
package cdfg

import "github.com/sarchlab/hwaccsim/insts"

// InstID identifies an instruction within a Graph.
type InstID int32

// BlockID identifies a basic block within a Graph.
type BlockID int32

// FuncID identifies a function within a Graph.
type FuncID int32

// Sentinels for absent references.
const (
	NoInst  InstID  = -1
	NoBlock BlockID = -1
	NoFunc  FuncID  = -1
)

// OperandKind tells where an operand's value comes from.
type OperandKind uint8

// Operand kinds.
const (
	OperandConst OperandKind = iota
	OperandArg
	OperandInst
)

// Operand references the producer of a value. It never owns the producer.
type Operand struct {
	Kind OperandKind
	Inst InstID
	Arg  int
	Imm  uint64
}

// Const returns an operand holding raw constant bits.
func Const(bits uint64) Operand {
	return Operand{Kind: OperandConst, Inst: NoInst, Imm: bits}
}

// Arg returns an operand referring to the i-th function argument.
func Arg(i int) Operand {
	return Operand{Kind: OperandArg, Inst: NoInst, Arg: i}
}

// Ref returns an operand referring to another instruction's result.
func Ref(id InstID) Operand {
	return Operand{Kind: OperandInst, Inst: id}
}

// PhiIncoming is one (predecessor, value) pair of a phi node.
type PhiIncoming struct {
	Block BlockID
	Value Operand
}

// Instruction is a static operation in the graph.
//
// Operand layout depends on the opcode:
//   - load: [address]
//   - store: [value, address]
//   - gep: [base, index...] with one stride per index
//   - select: [condition, true value, false value]
//   - br: [] with one target, or [condition] with targets (true, false)
//   - switch: [condition] with targets (default, case...)
//   - call: the arguments
//   - ret: [] or [value]
//   - alloca: [constant address]
type Instruction struct {
	ID   InstID
	Name string
	Op   insts.Opcode

	// Type is the result type. For stores it is the type of the stored value.
	Type insts.ValueType

	// OperandType is the type of the first operand for compares and casts.
	OperandType insts.ValueType

	Operands []Operand
	Incoming []PhiIncoming
	Targets  []BlockID
	Cases    []uint64
	Callee   FuncID
	Pred     insts.Predicate

	// Size is the number of bytes a load or store moves.
	Size uint32

	// Strides holds the byte stride of each GEP index.
	Strides []uint64

	Block BlockID
	Func  FuncID
	Index int
}

// Block is a basic block.
type Block struct {
	ID    BlockID
	Name  string
	Func  FuncID
	Insts []InstID
	Succs []BlockID
	Preds []BlockID
}

// Function is an ordered list of blocks. The first block is the entry.
type Function struct {
	ID      FuncID
	Name    string
	NumArgs int
	Blocks  []BlockID
}

// Entry returns the function's entry block.
func (f *Function) Entry() BlockID {
	return f.Blocks[0]
}

// Graph is an immutable control/data-flow graph.
type Graph struct {
	funcs  []Function
	blocks []Block
	insts  []Instruction
	top    FuncID

	instByName map[FuncID]map[string]InstID
}

// Top returns the function simulation starts from.
func (g *Graph) Top() *Function {
	return &g.funcs[g.top]
}

// Function returns a function by id.
func (g *Graph) Function(id FuncID) *Function {
	return &g.funcs[id]
}

// Block returns a block by id.
func (g *Graph) Block(id BlockID) *Block {
	return &g.blocks[id]
}

// Inst returns an instruction by id. The result must not be modified.
func (g *Graph) Inst(id InstID) *Instruction {
	return &g.insts[id]
}

// NumFunctions returns the number of functions.
func (g *Graph) NumFunctions() int { return len(g.funcs) }

// NumBlocks returns the number of blocks.
func (g *Graph) NumBlocks() int { return len(g.blocks) }

// NumInsts returns the number of instructions.
func (g *Graph) NumInsts() int { return len(g.insts) }

// FunctionByName finds a function.
func (g *Graph) FunctionByName(name string) (FuncID, bool) {
	for i := range g.funcs {
		if g.funcs[i].Name == name {
			return g.funcs[i].ID, true
		}
	}
	return NoFunc, false
}

// InstByName finds a named instruction inside a function.
func (g *Graph) InstByName(fn FuncID, name string) (InstID, bool) {
	id, ok := g.instByName[fn][name]
	return id, ok
}

// Terminator returns the last instruction of a block.
func (g *Graph) Terminator(b BlockID) *Instruction {
	blk := &g.blocks[b]
	return &g.insts[blk.Insts[len(blk.Insts)-1]]
}

// PhiIncoming selects the value a phi takes when control arrives from the
// given block.
func (g *Graph) PhiIncoming(id InstID, from BlockID) (Operand, bool) {
	inst := &g.insts[id]
	for _, in := range inst.Incoming {
		if in.Block == from {
			return in.Value, true
		}
	}
	return Operand{}, false
}

// ValueCount returns the number of instructions that define a value. Each
// such value needs a register in the generated datapath.
func (g *Graph) ValueCount() int {
	n := 0
	for i := range g.insts {
		if g.insts[i].Op.HasResult() && g.insts[i].Type.Kind != insts.KindVoid {
			n++
		}
	}
	return n
}
