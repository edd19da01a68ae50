package emu

import (
	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/insts"
)

// Evaluator computes the result of a datapath instruction from its operand
// values. It holds no state.
type Evaluator struct {
	alu ALU
	fpu FPU
}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate returns the value an instruction produces. Loads, stores, calls
// and terminators are handled by the scheduler and are not accepted here;
// phi returns its single resolved operand.
func (e *Evaluator) Evaluate(inst *cdfg.Instruction, ops []Value) Value {
	switch inst.Op {
	case insts.OpAdd, insts.OpSub, insts.OpMul, insts.OpUDiv, insts.OpSDiv,
		insts.OpURem, insts.OpSRem, insts.OpAnd, insts.OpOr, insts.OpXor,
		insts.OpShl, insts.OpLShr, insts.OpAShr:
		return e.alu.Binary(inst.Op, ops[0], ops[1], inst.Type)
	case insts.OpFAdd, insts.OpFSub, insts.OpFMul, insts.OpFDiv, insts.OpFRem:
		return e.fpu.Binary(inst.Op, ops[0], ops[1], inst.Type)
	case insts.OpICmp:
		return e.alu.Compare(inst.Pred, ops[0], ops[1], operandType(inst))
	case insts.OpFCmp:
		return e.fpu.Compare(inst.Pred, ops[0], ops[1], operandType(inst))
	case insts.OpSelect:
		return e.selectValue(ops)
	case insts.OpGEP:
		return e.Address(inst, ops)
	case insts.OpAlloca, insts.OpPhi:
		return ops[0]
	case insts.OpTrunc, insts.OpZExt, insts.OpSExt, insts.OpFPTrunc,
		insts.OpFPExt, insts.OpFPToUI, insts.OpFPToSI, insts.OpUIToFP,
		insts.OpSIToFP, insts.OpPtrToInt, insts.OpIntToPtr, insts.OpBitCast:
		return Convert(inst.Op, ops[0], operandType(inst), inst.Type)
	}

	return PoisonValue()
}

func operandType(inst *cdfg.Instruction) insts.ValueType {
	if inst.OperandType.Kind == insts.KindVoid {
		return inst.Type
	}
	return inst.OperandType
}

func (e *Evaluator) selectValue(ops []Value) Value {
	if ops[0].Poison {
		return PoisonValue()
	}
	if ops[0].Bool() {
		return ops[1]
	}
	return ops[2]
}

// Address computes base + sum(index * stride) for a GEP. Indices are
// sign-extended from the operand type.
func (e *Evaluator) Address(inst *cdfg.Instruction, ops []Value) Value {
	if ops[0].Poison {
		return PoisonValue()
	}

	addr := ops[0].Bits
	idxType := operandType(inst)
	if idxType.Kind == insts.KindPtr {
		idxType = insts.I64
	}

	for i, stride := range inst.Strides {
		idx := ops[i+1]
		if idx.Poison {
			return PoisonValue()
		}
		addr += uint64(idx.Signed(idxType)) * stride
	}

	return Value{Bits: addr}
}

// BranchTarget picks the successor of a br or switch given its condition
// operand. A poisoned condition takes the fallthrough target, which is the
// false edge of br and the default of switch; the second result reports it.
func BranchTarget(inst *cdfg.Instruction, cond Value) (cdfg.BlockID, bool) {
	switch inst.Op {
	case insts.OpBr:
		if len(inst.Operands) == 0 {
			return inst.Targets[0], false
		}
		if cond.Poison {
			return inst.Targets[1], true
		}
		if cond.Bool() {
			return inst.Targets[0], false
		}
		return inst.Targets[1], false
	case insts.OpSwitch:
		if cond.Poison {
			return inst.Targets[0], true
		}
		t := operandType(inst)
		for i, c := range inst.Cases {
			if cond.Bits&t.Mask() == c&t.Mask() {
				return inst.Targets[i+1], false
			}
		}
		return inst.Targets[0], false
	}

	return cdfg.NoBlock, false
}
