package emu

import (
	"math"

	"github.com/sarchlab/hwaccsim/insts"
)

// FPU implements the floating point datapath operations. Single precision
// arithmetic is rounded to float32 after every operation.
type FPU struct{}

// Binary computes a floating point binary operation of type t.
func (FPU) Binary(op insts.Opcode, a, b Value, t insts.ValueType) Value {
	if a.Poison || b.Poison {
		return PoisonValue()
	}

	if t.Kind == insts.KindFloat {
		x, y := a.Float32(), b.Float32()
		switch op {
		case insts.OpFAdd:
			return Float32Value(x + y)
		case insts.OpFSub:
			return Float32Value(x - y)
		case insts.OpFMul:
			return Float32Value(x * y)
		case insts.OpFDiv:
			return Float32Value(x / y)
		case insts.OpFRem:
			return Float32Value(float32(math.Mod(float64(x), float64(y))))
		}
		return PoisonValue()
	}

	x, y := a.Float64(), b.Float64()
	switch op {
	case insts.OpFAdd:
		return Float64Value(x + y)
	case insts.OpFSub:
		return Float64Value(x - y)
	case insts.OpFMul:
		return Float64Value(x * y)
	case insts.OpFDiv:
		return Float64Value(x / y)
	case insts.OpFRem:
		return Float64Value(math.Mod(x, y))
	}

	return PoisonValue()
}

// Compare evaluates an fcmp predicate and returns an i1.
func (FPU) Compare(p insts.Predicate, a, b Value, t insts.ValueType) Value {
	if a.Poison || b.Poison {
		return PoisonValue()
	}

	x, y := FloatOf(a, t), FloatOf(b, t)
	unordered := math.IsNaN(x) || math.IsNaN(y)

	var r bool

	switch p {
	case insts.PredFalse:
		r = false
	case insts.PredTrue:
		r = true
	case insts.PredORD:
		r = !unordered
	case insts.PredUNO:
		r = unordered
	case insts.PredOEQ:
		r = !unordered && x == y
	case insts.PredOGT:
		r = !unordered && x > y
	case insts.PredOGE:
		r = !unordered && x >= y
	case insts.PredOLT:
		r = !unordered && x < y
	case insts.PredOLE:
		r = !unordered && x <= y
	case insts.PredONE:
		r = !unordered && x != y
	case insts.PredUEQ:
		r = unordered || x == y
	case insts.PredFUGT:
		r = unordered || x > y
	case insts.PredFUGE:
		r = unordered || x >= y
	case insts.PredFULT:
		r = unordered || x < y
	case insts.PredFULE:
		r = unordered || x <= y
	case insts.PredUNE:
		r = unordered || x != y
	default:
		return PoisonValue()
	}

	return boolValue(r)
}
