package insts

import "fmt"

// FUType identifies a class of functional units.
type FUType uint8

// Functional unit types. The names match the keys used by hardware
// configuration files and the statistics report.
const (
	FUCounter FUType = iota
	FUIntAddSub
	FUIntMulDiv
	FUIntShift
	FUIntBitwise
	FUFloatAddSub
	FUFloatMulDiv
	FUDoubleAddSub
	FUDoubleMulDiv
	FUZeroCycle
	FUGEP
	FUConversion
	FUOther

	NumFUTypes
)

var fuNames = [NumFUTypes]string{
	FUCounter:      "counter",
	FUIntAddSub:    "int_addsub",
	FUIntMulDiv:    "int_muldiv",
	FUIntShift:     "int_shift",
	FUIntBitwise:   "int_bitwise",
	FUFloatAddSub:  "fp_float_addsub",
	FUFloatMulDiv:  "fp_float_muldiv",
	FUDoubleAddSub: "fp_double_addsub",
	FUDoubleMulDiv: "fp_double_muldiv",
	FUZeroCycle:    "zero_cycle",
	FUGEP:          "gep",
	FUConversion:   "conversion",
	FUOther:        "other",
}

func (t FUType) String() string {
	if t >= NumFUTypes {
		return fmt.Sprintf("fu(%d)", uint8(t))
	}
	return fuNames[t]
}

// ParseFUType looks up a functional unit type by name.
func ParseFUType(name string) (FUType, error) {
	for t := FUType(0); t < NumFUTypes; t++ {
		if fuNames[t] == name {
			return t, nil
		}
	}
	return FUOther, fmt.Errorf("unknown functional unit type %q", name)
}

// DefaultFUType returns the functional unit an opcode runs on when the
// hardware configuration does not say otherwise. Floating point opcodes pick
// the single or double precision unit from the operand type.
func DefaultFUType(op Opcode, t ValueType) FUType {
	double := t.Kind == KindDouble

	switch op {
	case OpAdd, OpSub, OpICmp:
		return FUIntAddSub
	case OpMul, OpUDiv, OpSDiv, OpURem, OpSRem:
		return FUIntMulDiv
	case OpShl, OpLShr, OpAShr:
		return FUIntShift
	case OpAnd, OpOr, OpXor:
		return FUIntBitwise
	case OpFAdd, OpFSub, OpFCmp:
		if double {
			return FUDoubleAddSub
		}
		return FUFloatAddSub
	case OpFMul, OpFDiv, OpFRem:
		if double {
			return FUDoubleMulDiv
		}
		return FUFloatMulDiv
	case OpGEP:
		return FUGEP
	case OpTrunc, OpZExt, OpSExt, OpFPTrunc, OpFPExt, OpFPToUI, OpFPToSI,
		OpUIToFP, OpSIToFP, OpPtrToInt, OpIntToPtr, OpBitCast:
		return FUConversion
	case OpPhi, OpBr, OpSwitch, OpCall, OpRet, OpUnreachable, OpAlloca,
		OpSelect:
		return FUZeroCycle
	}
	return FUOther
}

// DefaultLatency returns the cycle count of an opcode on its default unit.
// Loads and stores report their address-generation cost; the memory system
// decides the rest.
func DefaultLatency(op Opcode, t ValueType) uint64 {
	double := t.Kind == KindDouble

	switch op {
	case OpFAdd, OpFSub:
		return 5
	case OpFMul:
		if double {
			return 5
		}
		return 4
	case OpFDiv, OpFRem:
		if double {
			return 32
		}
		return 16
	case OpFCmp:
		return 1
	case OpPhi, OpBr, OpSwitch, OpCall, OpRet, OpUnreachable, OpAlloca,
		OpSelect, OpBitCast, OpPtrToInt, OpIntToPtr:
		return 0
	}
	return 1
}
