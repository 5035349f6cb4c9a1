package ir

import "github.com/woptproject/wopt/wasm"

// Kind tags the variant of an expression node.
type Kind uint8

const (
	KindNop Kind = iota
	KindUnreachable
	KindConst
	KindBlock
	KindLoop
	KindIf
	KindBreak
	KindSwitch
	KindReturn
	KindCall
	KindCallIndirect
	KindLocalGet
	KindLocalSet
	KindLocalTee
	KindGlobalGet
	KindGlobalSet
	KindLoad
	KindStore
	KindUnary
	KindBinary
	KindSelect
	KindDrop
	KindMemorySize
	KindMemoryGrow
	KindMemoryCopy
	KindMemoryFill
)

func (k Kind) String() string {
	names := [...]string{
		"nop", "unreachable", "const", "block", "loop", "if", "break",
		"switch", "return", "call", "call_indirect", "local.get",
		"local.set", "local.tee", "global.get", "global.set", "load",
		"store", "unary", "binary", "select", "drop", "memory.size",
		"memory.grow", "memory.copy", "memory.fill",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Expr is an expression node. The Kind tag determines which fields
// are meaningful; unrelated fields are zero. All nodes live in the
// arena of the module that owns them and are referenced by plain
// pointers whose validity is tied to that module.
type Expr struct {
	Kind Kind
	Type wasm.Type

	// Const
	Lit Literal

	// Unary, Binary
	Unop  UnaryOp
	Binop BinaryOp

	// Block and Loop label; empty means unnamed.
	Name string

	// Break target label, or Call target function name.
	Target string

	// Switch table and default.
	Targets []string
	Default string

	// Local or global index.
	Index uint32

	// CallIndirect signature handle.
	Sig wasm.Type

	// Load and Store: access width in bytes, sign extension for
	// sub-word loads, static offset, and the alignment exponent
	// (log2) exactly as encoded in the binary.
	Bytes  uint8
	Signed bool
	Offset uint32
	Align  uint32

	// Children. List holds Block children and Call/CallIndirect and
	// bulk-memory operands; the named slots hold everything else.
	List    []*Expr
	Value   *Expr // set/tee/drop/return/br value, unary operand, memory.grow delta
	Left    *Expr
	Right   *Expr
	Ptr     *Expr // load/store address
	Cond    *Expr // if/break/switch/select condition
	IfTrue  *Expr
	IfFalse *Expr
	Body    *Expr // loop body, call_indirect target index
}

// EachChild calls fn with a mutable slot for every child, in
// evaluation order. This is the single source of truth for child
// enumeration; the visitor, the effect analyzer, and the dataflow
// analyses go through it.
func (e *Expr) EachChild(fn func(slot **Expr)) {
	switch e.Kind {
	case KindBlock:
		for i := range e.List {
			fn(&e.List[i])
		}
	case KindLoop:
		fn(&e.Body)
	case KindIf:
		fn(&e.Cond)
		fn(&e.IfTrue)
		if e.IfFalse != nil {
			fn(&e.IfFalse)
		}
	case KindBreak:
		if e.Value != nil {
			fn(&e.Value)
		}
		if e.Cond != nil {
			fn(&e.Cond)
		}
	case KindSwitch:
		if e.Value != nil {
			fn(&e.Value)
		}
		fn(&e.Cond)
	case KindReturn:
		if e.Value != nil {
			fn(&e.Value)
		}
	case KindCall:
		for i := range e.List {
			fn(&e.List[i])
		}
	case KindCallIndirect:
		for i := range e.List {
			fn(&e.List[i])
		}
		fn(&e.Body)
	case KindLocalSet, KindLocalTee, KindGlobalSet, KindDrop:
		fn(&e.Value)
	case KindLoad:
		fn(&e.Ptr)
	case KindStore:
		fn(&e.Ptr)
		fn(&e.Value)
	case KindUnary:
		fn(&e.Value)
	case KindBinary:
		fn(&e.Left)
		fn(&e.Right)
	case KindSelect:
		fn(&e.IfTrue)
		fn(&e.IfFalse)
		fn(&e.Cond)
	case KindMemoryGrow:
		fn(&e.Value)
	case KindMemoryCopy, KindMemoryFill:
		for i := range e.List {
			fn(&e.List[i])
		}
	}
}

// IsConst reports whether e is a constant.
func (e *Expr) IsConst() bool {
	return e.Kind == KindConst
}

// IsConstOf reports whether e is an integer constant with the given
// bits (sign-extension aware for i32).
func (e *Expr) IsConstOf(v int64) bool {
	if e.Kind != KindConst {
		return false
	}
	switch e.Lit.Type {
	case wasm.TypeI32:
		return int64(e.Lit.I32()) == v
	case wasm.TypeI64:
		return e.Lit.I64() == v
	}
	return false
}

// BranchesTo reports whether any break or switch under e targets the
// given label.
func BranchesTo(e *Expr, name string) bool {
	if name == "" {
		return false
	}
	found := false
	var walk func(x *Expr)
	walk = func(x *Expr) {
		if found {
			return
		}
		switch x.Kind {
		case KindBreak:
			if x.Target == name {
				found = true
				return
			}
		case KindSwitch:
			if x.Default == name {
				found = true
				return
			}
			for _, t := range x.Targets {
				if t == name {
					found = true
					return
				}
			}
		case KindBlock, KindLoop:
			// An inner construct reusing the label shadows it.
			if x.Name == name && x != e {
				return
			}
		}
		x.EachChild(func(slot **Expr) { walk(*slot) })
	}
	walk(e)
	return found
}

// UpdateBlockType recomputes a block's type from its contents: the
// type of the last child, or unreachable when control cannot fall
// through and no break targets the label.
func UpdateBlockType(b *Expr) {
	if b.Kind != KindBlock {
		return
	}
	if BranchesTo(b, b.Name) {
		return
	}
	if len(b.List) == 0 {
		b.Type = wasm.TypeNone
		return
	}
	for _, c := range b.List {
		if c.Type == wasm.TypeUnreachable {
			b.Type = wasm.TypeUnreachable
			return
		}
	}
	last := b.List[len(b.List)-1].Type
	if last.IsConcrete() {
		b.Type = last
	} else {
		b.Type = wasm.TypeNone
	}
}

// CountNodes returns the number of expression nodes in the module.
func CountNodes(m *Module) int {
	n := 0
	var walk func(e *Expr)
	walk = func(e *Expr) {
		n++
		e.EachChild(func(slot **Expr) { walk(*slot) })
	}
	for _, fn := range m.Functions {
		if fn.Body != nil {
			walk(fn.Body)
		}
	}
	for _, g := range m.Globals {
		if g.Init != nil {
			walk(g.Init)
		}
	}
	return n
}
