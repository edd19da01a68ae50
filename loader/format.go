package loader

// File is the on-disk form of a workload: a graph plus the inputs of one run.
// It is read from JSON, or from YAML when the path ends in .yaml or .yml.
//
// Operands are strings:
//   - "%name" refers to the result of a named instruction of the same
//     function;
//   - "$i" refers to the i-th function argument;
//   - "#lit" is a constant. Integer literals (decimal, 0x, negative) are raw
//     bits. Literals with a decimal point or exponent, inf and nan are floats
//     encoded in the floating point type of the instruction.
type File struct {
	// Top names the function simulation starts from. It defaults to the first
	// function.
	Top       string         `json:"top,omitempty" yaml:"top,omitempty"`
	Functions []FunctionSpec `json:"functions" yaml:"functions"`

	Args     []ArgSpec     `json:"args,omitempty" yaml:"args,omitempty"`
	Segments []SegmentSpec `json:"segments,omitempty" yaml:"segments,omitempty"`
}

// FunctionSpec is one function. The first block is the entry.
type FunctionSpec struct {
	Name   string      `json:"name" yaml:"name"`
	Args   int         `json:"args" yaml:"args"`
	Blocks []BlockSpec `json:"blocks" yaml:"blocks"`
}

// BlockSpec is one basic block.
type BlockSpec struct {
	Name  string     `json:"name" yaml:"name"`
	Insts []InstSpec `json:"insts" yaml:"insts"`
}

// InstSpec is one instruction. Only the fields the opcode uses need to be
// set.
type InstSpec struct {
	Name        string    `json:"name,omitempty" yaml:"name,omitempty"`
	Op          string    `json:"op" yaml:"op"`
	Type        string    `json:"type,omitempty" yaml:"type,omitempty"`
	OperandType string    `json:"operand_type,omitempty" yaml:"operand_type,omitempty"`
	Operands    []string  `json:"operands,omitempty" yaml:"operands,omitempty"`
	Incoming    []PhiSpec `json:"incoming,omitempty" yaml:"incoming,omitempty"`
	Targets     []string  `json:"targets,omitempty" yaml:"targets,omitempty"`
	Cases       []uint64  `json:"cases,omitempty" yaml:"cases,omitempty"`
	Callee      string    `json:"callee,omitempty" yaml:"callee,omitempty"`
	Pred        string    `json:"pred,omitempty" yaml:"pred,omitempty"`
	Size        uint32    `json:"size,omitempty" yaml:"size,omitempty"`
	Strides     []uint64  `json:"strides,omitempty" yaml:"strides,omitempty"`
}

// PhiSpec is one incoming edge of a phi.
type PhiSpec struct {
	Block string `json:"block" yaml:"block"`
	Value string `json:"value" yaml:"value"`
}

// ArgSpec is one argument of the top function.
type ArgSpec struct {
	Type  string `json:"type" yaml:"type"`
	Value string `json:"value" yaml:"value"`
}

// SegmentSpec is memory content written before the run starts. Values are
// laid out back to back, each taking the size of Type.
type SegmentSpec struct {
	Addr   uint64   `json:"addr" yaml:"addr"`
	Type   string   `json:"type" yaml:"type"`
	Values []string `json:"values" yaml:"values"`
}
