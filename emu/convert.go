package emu

import (
	"math"

	"github.com/sarchlab/hwaccsim/insts"
)

// Convert applies a cast from type from to type to.
func Convert(op insts.Opcode, v Value, from, to insts.ValueType) Value {
	if v.Poison {
		return PoisonValue()
	}

	switch op {
	case insts.OpTrunc, insts.OpZExt, insts.OpPtrToInt, insts.OpIntToPtr:
		return IntValue(v.Bits&from.Mask(), to)
	case insts.OpSExt:
		return IntValue(uint64(v.Signed(from)), to)
	case insts.OpBitCast:
		return Value{Bits: v.Bits & to.Mask()}
	case insts.OpFPTrunc, insts.OpFPExt:
		return MakeFloat(FloatOf(v, from), to)
	case insts.OpFPToUI:
		return fpToInt(FloatOf(v, from), to, false)
	case insts.OpFPToSI:
		return fpToInt(FloatOf(v, from), to, true)
	case insts.OpUIToFP:
		return MakeFloat(float64(v.Bits&from.Mask()), to)
	case insts.OpSIToFP:
		return MakeFloat(float64(v.Signed(from)), to)
	}

	return PoisonValue()
}

// fpToInt truncates toward zero. Values that do not fit are poison.
func fpToInt(f float64, to insts.ValueType, signed bool) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return PoisonValue()
	}

	f = math.Trunc(f)
	bits := to.Bits
	if bits == 0 || bits > 64 {
		bits = 64
	}

	if signed {
		limit := math.Ldexp(1, int(bits)-1)
		if f < -limit || f >= limit {
			return PoisonValue()
		}
		return IntValue(uint64(int64(f)), to)
	}

	limit := math.Ldexp(1, int(bits))
	if f < 0 || f >= limit {
		return PoisonValue()
	}

	return IntValue(uint64(f), to)
}
