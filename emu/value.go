// Package emu provides functional evaluation of accelerator datapath
// operations.
//
// Values are carried as raw bits in a uint64 together with a poison flag.
// Integer results are masked to their type width; floating point results
// follow IEEE-754 exactly as the host FPU computes them, so a simulated
// kernel rounds the same way the reference code does.
package emu

import (
	"encoding/binary"
	"math"

	"github.com/sarchlab/hwaccsim/insts"
)

// Value is an SSA value. Poison marks results derived from a failed memory
// request or from undefined behavior such as division by zero.
type Value struct {
	Bits   uint64
	Poison bool
}

// PoisonValue returns a poisoned zero.
func PoisonValue() Value {
	return Value{Poison: true}
}

// IntValue makes a value from an integer, truncated to the type's width.
func IntValue(v uint64, t insts.ValueType) Value {
	return Value{Bits: v & t.Mask()}
}

// Float32Value makes a single precision value.
func Float32Value(f float32) Value {
	return Value{Bits: uint64(math.Float32bits(f))}
}

// Float64Value makes a double precision value.
func Float64Value(f float64) Value {
	return Value{Bits: math.Float64bits(f)}
}

// Float32 interprets the value as a float.
func (v Value) Float32() float32 {
	return math.Float32frombits(uint32(v.Bits))
}

// Float64 interprets the value as a double.
func (v Value) Float64() float64 {
	return math.Float64frombits(v.Bits)
}

// Signed sign-extends the value from the type width.
func (v Value) Signed(t insts.ValueType) int64 {
	bits := t.Bits
	if bits == 0 || bits >= 64 {
		return int64(v.Bits)
	}
	shift := 64 - bits
	return int64(v.Bits<<shift) >> shift
}

// Bool reports whether the lowest bit is set.
func (v Value) Bool() bool {
	return v.Bits&1 == 1
}

// FloatOf reads a floating point value of either precision as float64.
func FloatOf(v Value, t insts.ValueType) float64 {
	if t.Kind == insts.KindFloat {
		return float64(v.Float32())
	}
	return v.Float64()
}

// MakeFloat stores f in the given precision.
func MakeFloat(f float64, t insts.ValueType) Value {
	if t.Kind == insts.KindFloat {
		return Float32Value(float32(f))
	}
	return Float64Value(f)
}

// Encode lays a value out little-endian in size bytes.
func Encode(v Value, size uint32) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v.Bits)

	out := make([]byte, size)
	copy(out, buf[:])

	return out
}

// Decode reads a little-endian value of the given type.
func Decode(data []byte, t insts.ValueType) Value {
	var buf [8]byte
	copy(buf[:], data)

	return Value{Bits: binary.LittleEndian.Uint64(buf[:]) & t.Mask()}
}
