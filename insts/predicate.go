package insts

import "fmt"

// Predicate is the condition of an icmp or fcmp instruction.
type Predicate uint8

// Integer predicates.
const (
	PredNone Predicate = iota
	PredEQ
	PredNE
	PredUGT
	PredUGE
	PredULT
	PredULE
	PredSGT
	PredSGE
	PredSLT
	PredSLE

	// Floating point predicates. "O" variants are false when either operand
	// is NaN; "U" variants are true.
	PredFalse
	PredOEQ
	PredOGT
	PredOGE
	PredOLT
	PredOLE
	PredONE
	PredORD
	PredUNO
	PredUEQ
	PredFUGT
	PredFUGE
	PredFULT
	PredFULE
	PredUNE
	PredTrue
)

var intPredNames = map[string]Predicate{
	"eq": PredEQ, "ne": PredNE,
	"ugt": PredUGT, "uge": PredUGE, "ult": PredULT, "ule": PredULE,
	"sgt": PredSGT, "sge": PredSGE, "slt": PredSLT, "sle": PredSLE,
}

var floatPredNames = map[string]Predicate{
	"false": PredFalse, "true": PredTrue,
	"oeq": PredOEQ, "ogt": PredOGT, "oge": PredOGE, "olt": PredOLT,
	"ole": PredOLE, "one": PredONE, "ord": PredORD, "uno": PredUNO,
	"ueq": PredUEQ, "ugt": PredFUGT, "uge": PredFUGE, "ult": PredFULT,
	"ule": PredFULE, "une": PredUNE,
}

// ParsePredicate parses a comparison predicate for the given compare opcode.
func ParsePredicate(op Opcode, name string) (Predicate, error) {
	var table map[string]Predicate

	switch op {
	case OpICmp:
		table = intPredNames
	case OpFCmp:
		table = floatPredNames
	default:
		return PredNone, fmt.Errorf("%v takes no predicate", op)
	}

	p, ok := table[name]
	if !ok {
		return PredNone, fmt.Errorf("unknown %v predicate %q", op, name)
	}
	return p, nil
}

// IsFloat reports whether the predicate belongs to fcmp.
func (p Predicate) IsFloat() bool {
	return p >= PredFalse
}

var predNames = [...]string{
	PredNone:  "none",
	PredEQ:    "eq",
	PredNE:    "ne",
	PredUGT:   "ugt",
	PredUGE:   "uge",
	PredULT:   "ult",
	PredULE:   "ule",
	PredSGT:   "sgt",
	PredSGE:   "sge",
	PredSLT:   "slt",
	PredSLE:   "sle",
	PredFalse: "false",
	PredOEQ:   "oeq",
	PredOGT:   "ogt",
	PredOGE:   "oge",
	PredOLT:   "olt",
	PredOLE:   "ole",
	PredONE:   "one",
	PredORD:   "ord",
	PredUNO:   "uno",
	PredUEQ:   "ueq",
	PredFUGT:  "ugt",
	PredFUGE:  "uge",
	PredFULT:  "ult",
	PredFULE:  "ule",
	PredUNE:   "une",
	PredTrue:  "true",
}

// String returns the IR name of the predicate. Unordered float predicates
// share their names with the unsigned integer ones.
func (p Predicate) String() string {
	if int(p) >= len(predNames) {
		return fmt.Sprintf("predicate(%d)", uint8(p))
	}
	return predNames[p]
}
