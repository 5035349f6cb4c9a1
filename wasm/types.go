// Package wasm holds the core WebAssembly type model: compact type
// handles, function signatures, and the process-wide interning store
// that canonicalizes them.
package wasm

import (
	"fmt"
	"strings"
)

// Magic and Version are the fixed prelude of every WebAssembly binary.
const (
	Magic   uint32 = 0x6d736100
	Version uint32 = 0x1
)

// Type is a compact handle for a WebAssembly value type. Basic types
// occupy a small reserved range; interned signatures and tuples live
// at TypeInternedBase and above. Handle equality is semantic equality.
type Type uint64

const (
	TypeNone Type = iota
	TypeUnreachable
	TypeI32
	TypeI64
	TypeF32
	TypeF64
	TypeV128
	TypeFuncref
	TypeExternref

	typeBasicLimit
)

// TypeInternedBase is the first handle value used for interned types.
// Everything below it is a basic type.
const TypeInternedBase Type = 0x1000

// IsBasic reports whether t is one of the predefined basic types.
func (t Type) IsBasic() bool {
	return t < typeBasicLimit
}

// IsConcrete reports whether t describes an actual value (not none or
// unreachable).
func (t Type) IsConcrete() bool {
	return t != TypeNone && t != TypeUnreachable
}

// IsNumber reports whether t is one of the four numeric MVP types.
func (t Type) IsNumber() bool {
	switch t {
	case TypeI32, TypeI64, TypeF32, TypeF64:
		return true
	}
	return false
}

// IsInteger reports whether t is i32 or i64.
func (t Type) IsInteger() bool {
	return t == TypeI32 || t == TypeI64
}

// IsFloat reports whether t is f32 or f64.
func (t Type) IsFloat() bool {
	return t == TypeF32 || t == TypeF64
}

// IsRef reports whether t is a reference type.
func (t Type) IsRef() bool {
	return t == TypeFuncref || t == TypeExternref
}

// IsTuple reports whether t is an interned tuple handle.
func (t Type) IsTuple() bool {
	return t >= TypeInternedBase && (t-TypeInternedBase)&1 == tagTuple
}

// IsSignature reports whether t is an interned signature handle.
func (t Type) IsSignature() bool {
	return t >= TypeInternedBase && (t-TypeInternedBase)&1 == tagSignature
}

// Expand returns the component types of t: nil for none, the lanes of
// a tuple, or a single-element slice for any other concrete type.
func (t Type) Expand() []Type {
	switch {
	case t == TypeNone:
		return nil
	case t.IsTuple():
		types, _ := LookupTuple(t)
		return types
	default:
		return []Type{t}
	}
}

// Arity returns the number of values of type t: 0 for none, the lane
// count for tuples, 1 otherwise.
func (t Type) Arity() int {
	switch {
	case t == TypeNone:
		return 0
	case t.IsTuple():
		types, _ := LookupTuple(t)
		return len(types)
	default:
		return 1
	}
}

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeUnreachable:
		return "unreachable"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypeV128:
		return "v128"
	case TypeFuncref:
		return "funcref"
	case TypeExternref:
		return "externref"
	}
	if t.IsTuple() {
		if types, ok := LookupTuple(t); ok {
			parts := make([]string, len(types))
			for i, tt := range types {
				parts[i] = tt.String()
			}
			return "(" + strings.Join(parts, " ") + ")"
		}
	}
	if t.IsSignature() {
		if sig, ok := LookupSignature(t); ok {
			return fmt.Sprintf("(func %v -> %v)", sig.Params, sig.Results)
		}
	}
	return fmt.Sprintf("type(%#x)", uint64(t))
}

// Signature is the structural form of a function type. Params and
// Results are none, a single type, or an interned tuple.
type Signature struct {
	Params  Type
	Results Type
}

// ValueType is the single-byte wire encoding of a value type.
type ValueType byte

const (
	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeV128      ValueType = 0x7b
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

// TypeFromValueType maps a wire byte to a type handle.
func TypeFromValueType(v ValueType) (Type, bool) {
	switch v {
	case ValueTypeI32:
		return TypeI32, true
	case ValueTypeI64:
		return TypeI64, true
	case ValueTypeF32:
		return TypeF32, true
	case ValueTypeF64:
		return TypeF64, true
	case ValueTypeV128:
		return TypeV128, true
	case ValueTypeFuncref:
		return TypeFuncref, true
	case ValueTypeExternref:
		return TypeExternref, true
	}
	return TypeNone, false
}

// ValueType maps a basic type handle to its wire byte.
func (t Type) ValueType() (ValueType, bool) {
	switch t {
	case TypeI32:
		return ValueTypeI32, true
	case TypeI64:
		return ValueTypeI64, true
	case TypeF32:
		return ValueTypeF32, true
	case TypeF64:
		return ValueTypeF64, true
	case TypeV128:
		return ValueTypeV128, true
	case TypeFuncref:
		return ValueTypeFuncref, true
	case TypeExternref:
		return ValueTypeExternref, true
	}
	return 0, false
}

// External is the kind of an import or export entry.
type External byte

const (
	ExternalFunction External = 0
	ExternalTable    External = 1
	ExternalMemory   External = 2
	ExternalGlobal   External = 3
)

func (e External) String() string {
	switch e {
	case ExternalFunction:
		return "function"
	case ExternalTable:
		return "table"
	case ExternalMemory:
		return "memory"
	case ExternalGlobal:
		return "global"
	}
	return "unknown"
}
