package loader

import (
	"fmt"
	"strconv"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/insts"
)

// graphBuilder resolves the names of a File to graph ids. Instruction ids are
// assigned in file order, so references to later instructions are resolved
// before those instructions are added.
type graphBuilder struct {
	f *File
	b *cdfg.Builder

	funcs  map[string]cdfg.FuncID
	blocks []map[string]cdfg.BlockID
	values []map[string]cdfg.InstID
}

// Graph builds and validates the graph of the file.
func (f *File) Graph() (*cdfg.Graph, error) {
	if len(f.Functions) == 0 {
		return nil, invalid("no functions")
	}

	gb := &graphBuilder{
		f:     f,
		b:     cdfg.NewBuilder(),
		funcs: make(map[string]cdfg.FuncID),
	}

	if err := gb.declare(); err != nil {
		return nil, err
	}

	for fi := range f.Functions {
		if err := gb.addFunction(fi); err != nil {
			return nil, err
		}
	}

	top := f.Functions[0].Name
	if f.Top != "" {
		top = f.Top
	}
	id, ok := gb.funcs[top]
	if !ok {
		return nil, invalid("unknown top function %q", top)
	}
	gb.b.SetTop(id)

	return gb.b.Build()
}

// declare adds every function and block and numbers every instruction.
func (gb *graphBuilder) declare() error {
	for _, fn := range gb.f.Functions {
		if _, dup := gb.funcs[fn.Name]; dup || fn.Name == "" {
			return invalid("bad or duplicate function name %q", fn.Name)
		}
		gb.funcs[fn.Name] = gb.b.AddFunction(fn.Name, fn.Args)
	}

	next := cdfg.InstID(0)
	for fi, fn := range gb.f.Functions {
		if len(fn.Blocks) == 0 {
			return invalid("function %s has no blocks", fn.Name)
		}

		blocks := make(map[string]cdfg.BlockID)
		values := make(map[string]cdfg.InstID)

		for _, blk := range fn.Blocks {
			if _, dup := blocks[blk.Name]; dup || blk.Name == "" {
				return invalid("function %s: bad or duplicate block name %q",
					fn.Name, blk.Name)
			}
			blocks[blk.Name] = gb.b.AddBlock(cdfg.FuncID(fi), blk.Name)

			for _, in := range blk.Insts {
				if in.Name != "" {
					if _, dup := values[in.Name]; dup {
						return invalid("function %s: value %%%s defined twice",
							fn.Name, in.Name)
					}
					values[in.Name] = next
				}
				next++
			}
		}

		gb.blocks = append(gb.blocks, blocks)
		gb.values = append(gb.values, values)
	}

	return nil
}

func (gb *graphBuilder) addFunction(fi int) error {
	fn := &gb.f.Functions[fi]

	for _, blk := range fn.Blocks {
		id := gb.blocks[fi][blk.Name]
		for i := range blk.Insts {
			inst, err := gb.inst(fi, &blk.Insts[i])
			if err != nil {
				return invalid("%s/%s: instruction %d: %v", fn.Name, blk.Name, i, err)
			}
			gb.b.AddInst(id, inst)
		}
	}

	return nil
}

func (gb *graphBuilder) inst(fi int, spec *InstSpec) (cdfg.Instruction, error) {
	var err error
	inst := cdfg.Instruction{
		Name:    spec.Name,
		Size:    spec.Size,
		Cases:   spec.Cases,
		Strides: spec.Strides,
		Callee:  cdfg.NoFunc,
	}

	if inst.Op, err = insts.ParseOpcode(spec.Op); err != nil {
		return inst, err
	}
	if inst.Type, err = insts.ParseValueType(spec.Type); err != nil {
		return inst, err
	}
	if inst.OperandType, err = insts.ParseValueType(spec.OperandType); err != nil {
		return inst, err
	}
	if spec.Pred != "" {
		if inst.Pred, err = insts.ParsePredicate(inst.Op, spec.Pred); err != nil {
			return inst, err
		}
	}

	if spec.Callee != "" {
		id, ok := gb.funcs[spec.Callee]
		if !ok {
			return inst, fmt.Errorf("unknown callee %q", spec.Callee)
		}
		inst.Callee = id
	}

	fp := floatType(inst)
	for _, s := range spec.Operands {
		op, err := gb.operand(fi, s, fp)
		if err != nil {
			return inst, err
		}
		inst.Operands = append(inst.Operands, op)
	}

	for _, in := range spec.Incoming {
		blk, ok := gb.blocks[fi][in.Block]
		if !ok {
			return inst, fmt.Errorf("unknown block %q", in.Block)
		}
		v, err := gb.operand(fi, in.Value, fp)
		if err != nil {
			return inst, err
		}
		inst.Incoming = append(inst.Incoming, cdfg.PhiIncoming{Block: blk, Value: v})
	}

	for _, t := range spec.Targets {
		blk, ok := gb.blocks[fi][t]
		if !ok {
			return inst, fmt.Errorf("unknown block %q", t)
		}
		inst.Targets = append(inst.Targets, blk)
	}

	return inst, nil
}

// floatType is the type float constants of an instruction are encoded in.
func floatType(inst cdfg.Instruction) insts.ValueType {
	switch {
	case inst.OperandType.IsFP():
		return inst.OperandType
	case inst.Type.IsFP():
		return inst.Type
	}
	return insts.Double
}

func (gb *graphBuilder) operand(fi int, s string, fp insts.ValueType) (cdfg.Operand, error) {
	if len(s) < 2 {
		return cdfg.Operand{}, fmt.Errorf("bad operand %q", s)
	}

	switch s[0] {
	case '%':
		id, ok := gb.values[fi][s[1:]]
		if !ok {
			return cdfg.Operand{}, fmt.Errorf("unknown value %q", s)
		}
		return cdfg.Ref(id), nil

	case '$':
		i, err := strconv.Atoi(s[1:])
		if err != nil || i < 0 {
			return cdfg.Operand{}, fmt.Errorf("bad argument %q", s)
		}
		return cdfg.Arg(i), nil

	case '#':
		bits, err := parseConst(s[1:], fp)
		if err != nil {
			return cdfg.Operand{}, err
		}
		return cdfg.Const(bits), nil
	}

	return cdfg.Operand{}, fmt.Errorf("bad operand %q", s)
}
