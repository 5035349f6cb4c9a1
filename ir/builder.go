package ir

import "github.com/woptproject/wopt/wasm"

// Builder allocates expression nodes in a module's arena. It is a
// small value type; copy it freely.
type Builder struct {
	arena *Arena
}

// NewBuilder returns a builder over the given arena.
func NewBuilder(a *Arena) Builder {
	return Builder{arena: a}
}

func (b Builder) alloc(kind Kind, t wasm.Type) *Expr {
	e := b.arena.Alloc()
	e.Kind = kind
	e.Type = t
	return e
}

func (b Builder) Nop() *Expr {
	return b.alloc(KindNop, wasm.TypeNone)
}

func (b Builder) Unreachable() *Expr {
	return b.alloc(KindUnreachable, wasm.TypeUnreachable)
}

func (b Builder) Const(lit Literal) *Expr {
	e := b.alloc(KindConst, lit.Type)
	e.Lit = lit
	return e
}

func (b Builder) ConstI32(v int32) *Expr { return b.Const(LiteralI32(v)) }
func (b Builder) ConstI64(v int64) *Expr { return b.Const(LiteralI64(v)) }

func (b Builder) Block(name string, list []*Expr, t wasm.Type) *Expr {
	e := b.alloc(KindBlock, t)
	e.Name = name
	e.List = list
	return e
}

func (b Builder) Loop(name string, body *Expr, t wasm.Type) *Expr {
	e := b.alloc(KindLoop, t)
	e.Name = name
	e.Body = body
	return e
}

func (b Builder) If(cond, ifTrue, ifFalse *Expr, t wasm.Type) *Expr {
	e := b.alloc(KindIf, t)
	e.Cond = cond
	e.IfTrue = ifTrue
	e.IfFalse = ifFalse
	return e
}

// Break builds a br or br_if. An unconditional break has type
// unreachable; a conditional break with a value flows the value
// through.
func (b Builder) Break(target string, cond, value *Expr) *Expr {
	t := wasm.TypeUnreachable
	if cond != nil {
		t = wasm.TypeNone
		if value != nil {
			t = value.Type
		}
	}
	e := b.alloc(KindBreak, t)
	e.Target = target
	e.Cond = cond
	e.Value = value
	return e
}

func (b Builder) Switch(targets []string, def string, cond, value *Expr) *Expr {
	e := b.alloc(KindSwitch, wasm.TypeUnreachable)
	e.Targets = targets
	e.Default = def
	e.Cond = cond
	e.Value = value
	return e
}

func (b Builder) Return(value *Expr) *Expr {
	e := b.alloc(KindReturn, wasm.TypeUnreachable)
	e.Value = value
	return e
}

func (b Builder) Call(target string, operands []*Expr, t wasm.Type) *Expr {
	e := b.alloc(KindCall, t)
	e.Target = target
	e.List = operands
	return e
}

func (b Builder) CallIndirect(sig wasm.Type, target *Expr, operands []*Expr, t wasm.Type) *Expr {
	e := b.alloc(KindCallIndirect, t)
	e.Sig = sig
	e.Body = target
	e.List = operands
	return e
}

func (b Builder) LocalGet(index uint32, t wasm.Type) *Expr {
	e := b.alloc(KindLocalGet, t)
	e.Index = index
	return e
}

func (b Builder) LocalSet(index uint32, value *Expr) *Expr {
	e := b.alloc(KindLocalSet, wasm.TypeNone)
	e.Index = index
	e.Value = value
	return e
}

func (b Builder) LocalTee(index uint32, value *Expr, t wasm.Type) *Expr {
	e := b.alloc(KindLocalTee, t)
	e.Index = index
	e.Value = value
	return e
}

func (b Builder) GlobalGet(index uint32, t wasm.Type) *Expr {
	e := b.alloc(KindGlobalGet, t)
	e.Index = index
	return e
}

func (b Builder) GlobalSet(index uint32, value *Expr) *Expr {
	e := b.alloc(KindGlobalSet, wasm.TypeNone)
	e.Index = index
	e.Value = value
	return e
}

func (b Builder) Load(bytes uint8, signed bool, offset, align uint32, ptr *Expr, t wasm.Type) *Expr {
	e := b.alloc(KindLoad, t)
	e.Bytes = bytes
	e.Signed = signed
	e.Offset = offset
	e.Align = align
	e.Ptr = ptr
	return e
}

func (b Builder) Store(bytes uint8, offset, align uint32, ptr, value *Expr) *Expr {
	e := b.alloc(KindStore, wasm.TypeNone)
	e.Bytes = bytes
	e.Offset = offset
	e.Align = align
	e.Ptr = ptr
	e.Value = value
	return e
}

func (b Builder) Unary(op UnaryOp, value *Expr, t wasm.Type) *Expr {
	e := b.alloc(KindUnary, t)
	e.Unop = op
	e.Value = value
	return e
}

func (b Builder) Binary(op BinaryOp, left, right *Expr, t wasm.Type) *Expr {
	e := b.alloc(KindBinary, t)
	e.Binop = op
	e.Left = left
	e.Right = right
	return e
}

func (b Builder) Select(ifTrue, ifFalse, cond *Expr, t wasm.Type) *Expr {
	e := b.alloc(KindSelect, t)
	e.IfTrue = ifTrue
	e.IfFalse = ifFalse
	e.Cond = cond
	return e
}

func (b Builder) Drop(value *Expr) *Expr {
	e := b.alloc(KindDrop, wasm.TypeNone)
	e.Value = value
	return e
}

func (b Builder) MemorySize() *Expr {
	return b.alloc(KindMemorySize, wasm.TypeI32)
}

func (b Builder) MemoryGrow(delta *Expr) *Expr {
	e := b.alloc(KindMemoryGrow, wasm.TypeI32)
	e.Value = delta
	return e
}

func (b Builder) MemoryCopy(dest, src, size *Expr) *Expr {
	e := b.alloc(KindMemoryCopy, wasm.TypeNone)
	e.List = []*Expr{dest, src, size}
	return e
}

func (b Builder) MemoryFill(dest, value, size *Expr) *Expr {
	e := b.alloc(KindMemoryFill, wasm.TypeNone)
	e.List = []*Expr{dest, value, size}
	return e
}
