package cdfg

import (
	"fmt"

	"github.com/sarchlab/hwaccsim/insts"
)

type validator struct {
	g *Graph

	// reach[b] holds every block reachable from b through at least one edge.
	reach []map[BlockID]bool
}

func (v *validator) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidGraph}, args...)...)
}

func (v *validator) validate() error {
	g := v.g

	if g.top == NoFunc || int(g.top) >= len(g.funcs) {
		return v.errorf("no top function")
	}

	for i := range g.funcs {
		if len(g.funcs[i].Blocks) == 0 {
			return v.errorf("function %s has no blocks", g.funcs[i].Name)
		}
	}

	for i := range g.blocks {
		if err := v.checkBlockShape(&g.blocks[i]); err != nil {
			return err
		}
	}

	v.linkEdges()
	v.computeReach()

	for i := range g.insts {
		if err := v.checkInst(&g.insts[i]); err != nil {
			return err
		}
	}

	return v.checkCycles()
}

func (v *validator) checkBlockShape(blk *Block) error {
	if len(blk.Insts) == 0 {
		return v.errorf("block %s is empty", blk.Name)
	}

	seenNonPhi := false
	for i, id := range blk.Insts {
		inst := &v.g.insts[id]
		last := i == len(blk.Insts)-1

		if inst.Op.IsTerminator() != last {
			if last {
				return v.errorf("block %s does not end in a terminator", blk.Name)
			}
			return v.errorf("block %s: terminator %s is not last", blk.Name, inst.Name)
		}

		if inst.Op == insts.OpPhi {
			if seenNonPhi {
				return v.errorf("block %s: phi %s after non-phi", blk.Name, inst.Name)
			}
		} else {
			seenNonPhi = true
		}
	}

	return nil
}

func (v *validator) linkEdges() {
	g := v.g
	for i := range g.blocks {
		blk := &g.blocks[i]
		term := g.Terminator(blk.ID)
		for _, t := range term.Targets {
			if int(t) < 0 || int(t) >= len(g.blocks) {
				continue
			}
			if !containsBlock(blk.Succs, t) {
				blk.Succs = append(blk.Succs, t)
				g.blocks[t].Preds = append(g.blocks[t].Preds, blk.ID)
			}
		}
	}
}

func containsBlock(list []BlockID, b BlockID) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

func (v *validator) computeReach() {
	g := v.g
	v.reach = make([]map[BlockID]bool, len(g.blocks))

	for i := range g.blocks {
		seen := make(map[BlockID]bool)
		work := append([]BlockID(nil), g.blocks[i].Succs...)
		for len(work) > 0 {
			b := work[len(work)-1]
			work = work[:len(work)-1]
			if seen[b] {
				continue
			}
			seen[b] = true
			work = append(work, g.blocks[b].Succs...)
		}
		v.reach[i] = seen
	}
}

func (v *validator) checkInst(inst *Instruction) error {
	if err := v.checkArity(inst); err != nil {
		return err
	}

	if err := v.checkTargets(inst); err != nil {
		return err
	}

	for _, op := range inst.Operands {
		if err := v.checkOperand(inst, op, false); err != nil {
			return err
		}
	}

	if inst.Op == insts.OpPhi {
		return v.checkPhi(inst)
	}

	return nil
}

func (v *validator) checkArity(inst *Instruction) error {
	n := len(inst.Operands)
	want := -1

	switch inst.Op {
	case insts.OpInvalid:
		return v.errorf("instruction %s has no opcode", inst.Name)
	case insts.OpLoad, insts.OpAlloca:
		want = 1
	case insts.OpStore:
		want = 2
	case insts.OpSelect:
		want = 3
	case insts.OpICmp, insts.OpFCmp:
		want = 2
		if inst.Pred == insts.PredNone {
			return v.errorf("compare %s has no predicate", inst.Name)
		}
		if inst.Pred.IsFloat() != (inst.Op == insts.OpFCmp) {
			return v.errorf("compare %s has a predicate of the wrong kind", inst.Name)
		}
	case insts.OpGEP:
		if n < 1 || len(inst.Strides) != n-1 {
			return v.errorf("gep %s needs a base and one stride per index", inst.Name)
		}
	case insts.OpPhi:
		want = 0
		if len(inst.Incoming) == 0 {
			return v.errorf("phi %s has no incoming values", inst.Name)
		}
	case insts.OpBr:
		if n > 1 {
			return v.errorf("br %s takes at most one condition", inst.Name)
		}
	case insts.OpSwitch:
		want = 1
	case insts.OpRet:
		if n > 1 {
			return v.errorf("ret %s returns at most one value", inst.Name)
		}
	case insts.OpUnreachable:
		want = 0
	case insts.OpCall:
		if int(inst.Callee) < 0 || int(inst.Callee) >= len(v.g.funcs) {
			return v.errorf("call %s has no callee", inst.Name)
		}
		want = v.g.funcs[inst.Callee].NumArgs
	case insts.OpTrunc, insts.OpZExt, insts.OpSExt, insts.OpFPTrunc,
		insts.OpFPExt, insts.OpFPToUI, insts.OpFPToSI, insts.OpUIToFP,
		insts.OpSIToFP, insts.OpPtrToInt, insts.OpIntToPtr, insts.OpBitCast:
		want = 1
	default:
		want = 2
	}

	if want >= 0 && n != want {
		return v.errorf("%v %s takes %d operands, got %d", inst.Op, inst.Name, want, n)
	}

	if inst.Op.IsMemory() && inst.Size == 0 {
		return v.errorf("%v %s accesses zero bytes", inst.Op, inst.Name)
	}

	return nil
}

func (v *validator) checkTargets(inst *Instruction) error {
	want := -1

	switch inst.Op {
	case insts.OpBr:
		want = 1 + len(inst.Operands)
	case insts.OpSwitch:
		want = 1 + len(inst.Cases)
	default:
		want = 0
	}

	if len(inst.Targets) != want {
		return v.errorf("%v %s needs %d targets, got %d",
			inst.Op, inst.Name, want, len(inst.Targets))
	}

	for _, t := range inst.Targets {
		if int(t) < 0 || int(t) >= len(v.g.blocks) {
			return v.errorf("%v %s targets unknown block %d", inst.Op, inst.Name, t)
		}
		if v.g.blocks[t].Func != inst.Func {
			return v.errorf("%v %s branches into another function", inst.Op, inst.Name)
		}
	}

	return nil
}

func (v *validator) checkOperand(inst *Instruction, op Operand, viaPhi bool) error {
	switch op.Kind {
	case OperandConst:
		return nil
	case OperandArg:
		if op.Arg < 0 || op.Arg >= v.g.funcs[inst.Func].NumArgs {
			return v.errorf("%s uses argument %d out of range", inst.Name, op.Arg)
		}
		return nil
	case OperandInst:
	default:
		return v.errorf("%s has an operand of unknown kind", inst.Name)
	}

	if int(op.Inst) < 0 || int(op.Inst) >= len(v.g.insts) {
		return v.errorf("%s uses undefined instruction %d", inst.Name, op.Inst)
	}

	prod := &v.g.insts[op.Inst]
	if prod.Func != inst.Func {
		return v.errorf("%s uses %s from another function", inst.Name, prod.Name)
	}
	if !prod.Op.HasResult() || prod.Type.Kind == insts.KindVoid {
		return v.errorf("%s uses %s, which defines no value", inst.Name, prod.Name)
	}

	if viaPhi {
		return nil
	}

	if !v.definedBefore(prod, inst) {
		return v.errorf("%s uses %s before it is defined", inst.Name, prod.Name)
	}

	return nil
}

// definedBefore reports whether prod precedes use in program order or
// reaches it through a back-edge.
func (v *validator) definedBefore(prod, use *Instruction) bool {
	if prod.Block == use.Block {
		if prod.Index < use.Index {
			return true
		}
		return v.reach[use.Block][use.Block]
	}
	return v.reach[prod.Block][use.Block]
}

func (v *validator) checkPhi(inst *Instruction) error {
	blk := &v.g.blocks[inst.Block]

	for _, in := range inst.Incoming {
		if !containsBlock(blk.Preds, in.Block) {
			return v.errorf("phi %s: block %d is not a predecessor", inst.Name, in.Block)
		}
		if err := v.checkOperand(inst, in.Value, true); err != nil {
			return err
		}
	}

	for _, p := range blk.Preds {
		if _, ok := v.g.PhiIncoming(inst.ID, p); !ok {
			return v.errorf("phi %s: no value for predecessor %s",
				inst.Name, v.g.blocks[p].Name)
		}
	}

	return nil
}

// checkCycles looks for value dependency cycles that no phi breaks. Such a
// cycle has no first producer and can never make progress.
func (v *validator) checkCycles() error {
	const (
		white = iota
		grey
		black
	)

	g := v.g
	color := make([]uint8, len(g.insts))

	var visit func(id InstID) error
	visit = func(id InstID) error {
		color[id] = grey
		inst := &g.insts[id]

		if inst.Op != insts.OpPhi {
			for _, op := range inst.Operands {
				if op.Kind != OperandInst {
					continue
				}
				switch color[op.Inst] {
				case grey:
					return fmt.Errorf("%w: %s and %s depend on each other",
						ErrCyclicDependency, inst.Name, g.insts[op.Inst].Name)
				case white:
					if err := visit(op.Inst); err != nil {
						return err
					}
				}
			}
		}

		color[id] = black
		return nil
	}

	for i := range g.insts {
		if color[i] == white {
			if err := visit(InstID(i)); err != nil {
				return err
			}
		}
	}

	return nil
}
