// Package insts provides the opcode set understood by the accelerator model.
//
// The opcodes mirror the LLVM IR instructions that a high-level-synthesis
// flow lowers into datapath operations. Each opcode belongs to a Category and
// maps to a default functional-unit type. The latency table in
// timing/latency can override both.
//
// Usage:
//
//	op, err := insts.ParseOpcode("fmul")
//	fu := insts.DefaultFUType(op, insts.Double)
//	fmt.Printf("%v runs on %v\n", op, fu)
package insts

import "fmt"

// Opcode identifies an instruction kind.
type Opcode uint8

// Supported opcodes.
const (
	OpInvalid Opcode = iota

	// Integer arithmetic
	OpAdd
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem

	// Floating point arithmetic
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFRem

	// Bitwise and shifts
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr

	// Comparison and selection
	OpICmp
	OpFCmp
	OpSelect

	// Memory
	OpLoad
	OpStore
	OpGEP
	OpAlloca

	// Conversions
	OpTrunc
	OpZExt
	OpSExt
	OpFPTrunc
	OpFPExt
	OpFPToUI
	OpFPToSI
	OpUIToFP
	OpSIToFP
	OpPtrToInt
	OpIntToPtr
	OpBitCast

	// Control
	OpPhi
	OpBr
	OpSwitch
	OpCall
	OpRet
	OpUnreachable

	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	OpInvalid:     "invalid",
	OpAdd:         "add",
	OpSub:         "sub",
	OpMul:         "mul",
	OpUDiv:        "udiv",
	OpSDiv:        "sdiv",
	OpURem:        "urem",
	OpSRem:        "srem",
	OpFAdd:        "fadd",
	OpFSub:        "fsub",
	OpFMul:        "fmul",
	OpFDiv:        "fdiv",
	OpFRem:        "frem",
	OpAnd:         "and",
	OpOr:          "or",
	OpXor:         "xor",
	OpShl:         "shl",
	OpLShr:        "lshr",
	OpAShr:        "ashr",
	OpICmp:        "icmp",
	OpFCmp:        "fcmp",
	OpSelect:      "select",
	OpLoad:        "load",
	OpStore:       "store",
	OpGEP:         "gep",
	OpAlloca:      "alloca",
	OpTrunc:       "trunc",
	OpZExt:        "zext",
	OpSExt:        "sext",
	OpFPTrunc:     "fptrunc",
	OpFPExt:       "fpext",
	OpFPToUI:      "fptoui",
	OpFPToSI:      "fptosi",
	OpUIToFP:      "uitofp",
	OpSIToFP:      "sitofp",
	OpPtrToInt:    "ptrtoint",
	OpIntToPtr:    "inttoptr",
	OpBitCast:     "bitcast",
	OpPhi:         "phi",
	OpBr:          "br",
	OpSwitch:      "switch",
	OpCall:        "call",
	OpRet:         "ret",
	OpUnreachable: "unreachable",
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, numOpcodes)
	for op := OpAdd; op < numOpcodes; op++ {
		m[opcodeNames[op]] = op
	}
	m["getelementptr"] = OpGEP
	return m
}()

func (op Opcode) String() string {
	if op >= numOpcodes {
		return fmt.Sprintf("opcode(%d)", uint8(op))
	}
	return opcodeNames[op]
}

// ParseOpcode looks up an opcode by its lower-case IR name.
func ParseOpcode(name string) (Opcode, error) {
	op, ok := opcodeByName[name]
	if !ok {
		return OpInvalid, fmt.Errorf("unknown opcode %q", name)
	}
	return op, nil
}

// AllOpcodes returns every valid opcode in declaration order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, numOpcodes-1)
	for op := OpAdd; op < numOpcodes; op++ {
		ops = append(ops, op)
	}
	return ops
}

// Category groups opcodes by how the scheduler treats them.
type Category uint8

// Instruction categories.
const (
	CategoryCompute Category = iota
	CategoryLoad
	CategoryStore
	CategoryControl
	CategoryPhi
	CategoryCall
)

func (c Category) String() string {
	switch c {
	case CategoryCompute:
		return "compute"
	case CategoryLoad:
		return "load"
	case CategoryStore:
		return "store"
	case CategoryControl:
		return "control"
	case CategoryPhi:
		return "phi"
	case CategoryCall:
		return "call"
	}
	return "unknown"
}

// Category returns the scheduling category of the opcode.
func (op Opcode) Category() Category {
	switch op {
	case OpLoad:
		return CategoryLoad
	case OpStore:
		return CategoryStore
	case OpBr, OpSwitch, OpRet, OpUnreachable:
		return CategoryControl
	case OpPhi:
		return CategoryPhi
	case OpCall:
		return CategoryCall
	}
	return CategoryCompute
}

// IsTerminator reports whether the opcode ends a basic block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpBr, OpSwitch, OpRet, OpUnreachable:
		return true
	}
	return false
}

// IsMemory reports whether the opcode accesses memory.
func (op Opcode) IsMemory() bool {
	return op == OpLoad || op == OpStore
}

// HasResult reports whether the opcode defines an SSA value. Calls and
// returns depend on the result type and are reported true here.
func (op Opcode) HasResult() bool {
	switch op {
	case OpStore, OpBr, OpSwitch, OpUnreachable:
		return false
	}
	return true
}

// IsFloat reports whether the opcode computes in floating point.
func (op Opcode) IsFloat() bool {
	switch op {
	case OpFAdd, OpFSub, OpFMul, OpFDiv, OpFRem, OpFCmp:
		return true
	}
	return false
}
