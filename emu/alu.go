package emu

import (
	"github.com/sarchlab/hwaccsim/insts"
)

// ALU implements the integer datapath operations.
type ALU struct{}

// Binary computes an integer binary operation on values of type t.
// Division or remainder by zero yields poison.
func (ALU) Binary(op insts.Opcode, a, b Value, t insts.ValueType) Value {
	if a.Poison || b.Poison {
		return PoisonValue()
	}

	x := a.Bits & t.Mask()
	y := b.Bits & t.Mask()
	bits := uint64(t.Bits)
	if bits == 0 {
		bits = 64
	}

	var r uint64

	switch op {
	case insts.OpAdd:
		r = x + y
	case insts.OpSub:
		r = x - y
	case insts.OpMul:
		r = x * y
	case insts.OpUDiv:
		if y == 0 {
			return PoisonValue()
		}
		r = x / y
	case insts.OpURem:
		if y == 0 {
			return PoisonValue()
		}
		r = x % y
	case insts.OpSDiv:
		if y == 0 {
			return PoisonValue()
		}
		r = uint64(a.Signed(t) / b.Signed(t))
	case insts.OpSRem:
		if y == 0 {
			return PoisonValue()
		}
		r = uint64(a.Signed(t) % b.Signed(t))
	case insts.OpAnd:
		r = x & y
	case insts.OpOr:
		r = x | y
	case insts.OpXor:
		r = x ^ y
	case insts.OpShl:
		if y >= bits {
			return PoisonValue()
		}
		r = x << y
	case insts.OpLShr:
		if y >= bits {
			return PoisonValue()
		}
		r = x >> y
	case insts.OpAShr:
		if y >= bits {
			return PoisonValue()
		}
		r = uint64(a.Signed(t) >> y)
	default:
		return PoisonValue()
	}

	return IntValue(r, t)
}

// Compare evaluates an integer comparison and returns an i1.
func (ALU) Compare(p insts.Predicate, a, b Value, t insts.ValueType) Value {
	if a.Poison || b.Poison {
		return PoisonValue()
	}

	x, y := a.Bits&t.Mask(), b.Bits&t.Mask()
	sx, sy := a.Signed(t), b.Signed(t)

	var r bool

	switch p {
	case insts.PredEQ:
		r = x == y
	case insts.PredNE:
		r = x != y
	case insts.PredUGT:
		r = x > y
	case insts.PredUGE:
		r = x >= y
	case insts.PredULT:
		r = x < y
	case insts.PredULE:
		r = x <= y
	case insts.PredSGT:
		r = sx > sy
	case insts.PredSGE:
		r = sx >= sy
	case insts.PredSLT:
		r = sx < sy
	case insts.PredSLE:
		r = sx <= sy
	default:
		return PoisonValue()
	}

	return boolValue(r)
}

func boolValue(b bool) Value {
	if b {
		return Value{Bits: 1}
	}
	return Value{}
}
