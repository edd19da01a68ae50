package cdfg

import (
	"errors"
	"fmt"

	"github.com/sarchlab/hwaccsim/insts"
)

// Configuration errors reported by Build.
var (
	ErrInvalidGraph     = errors.New("invalid graph")
	ErrCyclicDependency = errors.New("cyclic value dependency")
)

// Builder assembles a Graph. It is not safe for concurrent use.
type Builder struct {
	g   *Graph
	err error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		g: &Graph{
			top:        NoFunc,
			instByName: make(map[FuncID]map[string]InstID),
		},
	}
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("%w: "+format, append([]any{ErrInvalidGraph}, args...)...)
	}
}

// AddFunction appends a function taking numArgs arguments.
func (b *Builder) AddFunction(name string, numArgs int) FuncID {
	id := FuncID(len(b.g.funcs))
	if numArgs < 0 {
		b.fail("function %s: negative argument count", name)
		numArgs = 0
	}

	b.g.funcs = append(b.g.funcs, Function{ID: id, Name: name, NumArgs: numArgs})
	b.g.instByName[id] = make(map[string]InstID)

	return id
}

// AddBlock appends a block to a function. The first block added becomes the
// entry block.
func (b *Builder) AddBlock(fn FuncID, name string) BlockID {
	if int(fn) < 0 || int(fn) >= len(b.g.funcs) {
		b.fail("block %s: unknown function %d", name, fn)
		return NoBlock
	}

	id := BlockID(len(b.g.blocks))
	b.g.blocks = append(b.g.blocks, Block{ID: id, Name: name, Func: fn})
	b.g.funcs[fn].Blocks = append(b.g.funcs[fn].Blocks, id)

	return id
}

// AddInst appends an instruction to a block and returns its id. Id, Block,
// Func and Index are filled in by the builder.
func (b *Builder) AddInst(block BlockID, inst Instruction) InstID {
	if int(block) < 0 || int(block) >= len(b.g.blocks) {
		b.fail("instruction %s: unknown block %d", inst.Name, block)
		return NoInst
	}

	blk := &b.g.blocks[block]
	id := InstID(len(b.g.insts))
	inst.ID = id
	inst.Block = block
	inst.Func = blk.Func
	inst.Index = len(blk.Insts)

	if inst.Op.IsMemory() && inst.Size == 0 {
		inst.Size = inst.Type.Bytes()
	}
	if inst.Op != insts.OpCall {
		inst.Callee = NoFunc
	}

	if inst.Name != "" {
		names := b.g.instByName[blk.Func]
		if _, dup := names[inst.Name]; dup {
			b.fail("instruction %s defined twice", inst.Name)
		}
		names[inst.Name] = id
	}

	b.g.insts = append(b.g.insts, inst)
	blk.Insts = append(blk.Insts, id)

	return id
}

// SetTop marks the function simulation starts from.
func (b *Builder) SetTop(fn FuncID) {
	b.g.top = fn
}

// Build validates the graph and returns it. The builder must not be used
// afterwards.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}

	g := b.g
	v := &validator{g: g}

	if err := v.validate(); err != nil {
		return nil, err
	}

	return g, nil
}
