package ir

import (
	"fmt"
	"math"

	"github.com/woptproject/wopt/wasm"
)

// Literal is a constant value. Floats are stored as raw bit patterns
// so that NaN payloads survive a round trip and no host rounding
// leaks into folded results.
type Literal struct {
	Type wasm.Type
	Bits uint64
}

func LiteralI32(v int32) Literal {
	return Literal{Type: wasm.TypeI32, Bits: uint64(uint32(v))}
}

func LiteralI64(v int64) Literal {
	return Literal{Type: wasm.TypeI64, Bits: uint64(v)}
}

func LiteralF32(v float32) Literal {
	return Literal{Type: wasm.TypeF32, Bits: uint64(math.Float32bits(v))}
}

func LiteralF64(v float64) Literal {
	return Literal{Type: wasm.TypeF64, Bits: math.Float64bits(v)}
}

// LiteralF32Bits builds an f32 literal from its raw encoding.
func LiteralF32Bits(bits uint32) Literal {
	return Literal{Type: wasm.TypeF32, Bits: uint64(bits)}
}

// LiteralF64Bits builds an f64 literal from its raw encoding.
func LiteralF64Bits(bits uint64) Literal {
	return Literal{Type: wasm.TypeF64, Bits: bits}
}

func (l Literal) I32() int32   { return int32(uint32(l.Bits)) }
func (l Literal) I64() int64   { return int64(l.Bits) }
func (l Literal) F32() float32 { return math.Float32frombits(uint32(l.Bits)) }
func (l Literal) F64() float64 { return math.Float64frombits(l.Bits) }

// IsZero reports whether the literal is the integer zero of its type.
func (l Literal) IsZero() bool {
	return l.Type.IsInteger() && l.Bits == 0
}

func (l Literal) String() string {
	switch l.Type {
	case wasm.TypeI32:
		return fmt.Sprintf("i32.const %d", l.I32())
	case wasm.TypeI64:
		return fmt.Sprintf("i64.const %d", l.I64())
	case wasm.TypeF32:
		return fmt.Sprintf("f32.const %v", l.F32())
	case wasm.TypeF64:
		return fmt.Sprintf("f64.const %v", l.F64())
	}
	return fmt.Sprintf("const(%v, %#x)", l.Type, l.Bits)
}
