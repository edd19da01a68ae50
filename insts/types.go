package insts

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeKind is the kind of an SSA value type.
type TypeKind uint8

// Type kinds.
const (
	KindVoid TypeKind = iota
	KindInt
	KindFloat
	KindDouble
	KindPtr
)

// ValueType describes the type of an SSA value.
type ValueType struct {
	Kind TypeKind
	Bits uint8
}

// Common value types.
var (
	Void   = ValueType{Kind: KindVoid}
	I1     = ValueType{Kind: KindInt, Bits: 1}
	I8     = ValueType{Kind: KindInt, Bits: 8}
	I16    = ValueType{Kind: KindInt, Bits: 16}
	I32    = ValueType{Kind: KindInt, Bits: 32}
	I64    = ValueType{Kind: KindInt, Bits: 64}
	Float  = ValueType{Kind: KindFloat, Bits: 32}
	Double = ValueType{Kind: KindDouble, Bits: 64}
	Ptr    = ValueType{Kind: KindPtr, Bits: 64}
)

// IntType returns an integer type of the given width.
func IntType(bits uint8) ValueType {
	return ValueType{Kind: KindInt, Bits: bits}
}

// IsFP reports whether the type is float or double.
func (t ValueType) IsFP() bool {
	return t.Kind == KindFloat || t.Kind == KindDouble
}

// Bytes returns the storage size of the type, rounded up to whole bytes.
func (t ValueType) Bytes() uint32 {
	return (uint32(t.Bits) + 7) / 8
}

// Mask returns the bit mask selecting the type's bits in a uint64.
func (t ValueType) Mask() uint64 {
	if t.Bits == 0 || t.Bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << t.Bits) - 1
}

func (t ValueType) String() string {
	switch t.Kind {
	case KindVoid:
		return "void"
	case KindInt:
		return "i" + strconv.Itoa(int(t.Bits))
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindPtr:
		return "ptr"
	}
	return "unknown"
}

// ParseValueType parses names such as "i32", "double" or "ptr".
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "", "void":
		return Void, nil
	case "float":
		return Float, nil
	case "double":
		return Double, nil
	case "ptr":
		return Ptr, nil
	}

	if strings.HasPrefix(s, "i") {
		bits, err := strconv.Atoi(s[1:])
		if err == nil && bits >= 1 && bits <= 64 {
			return IntType(uint8(bits)), nil
		}
	}

	return Void, fmt.Errorf("unknown value type %q", s)
}
