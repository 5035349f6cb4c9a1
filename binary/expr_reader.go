package binary

import (
	"encoding/binary"
	"fmt"

	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

// The instruction stream is a stack machine; the IR is a tree. The
// decoder keeps a per-scope stack of expressions: value-producing
// instructions push, consumers pop their operands, and whatever is
// left at the scope's end becomes the block's child list.
//
// When a consumer pops a value that has none-typed statements stacked
// after it, the value is spilled through a fresh scratch local so
// evaluation order is preserved exactly.

type labelEntry struct {
	name   string
	isLoop bool
	result wasm.Type
}

func (r *Reader) genLabel() string {
	name := fmt.Sprintf("label$%d", r.labelCount)
	r.labelCount++
	return name
}

func labelAt(labels []labelEntry, depth uint32) (labelEntry, error) {
	if uint64(depth) >= uint64(len(labels)) {
		return labelEntry{}, wasm.ValidationError("unknown label")
	}
	return labels[len(labels)-1-int(depth)], nil
}

// brCarries reports whether a branch to the label carries a value: it
// does for non-loop labels with a concrete result (a branch to a loop
// targets its parameters, none in the MVP).
func brCarries(ent labelEntry) bool {
	return !ent.isLoop && ent.result.IsConcrete()
}

type frame struct {
	r     *Reader
	fn    *ir.Function
	stack []*ir.Expr
	dead  bool
}

func (f *frame) push(e *ir.Expr) {
	f.stack = append(f.stack, e)
	if e.Type == wasm.TypeUnreachable {
		f.dead = true
	}
}

func (f *frame) popValue() (*ir.Expr, error) {
	for i := len(f.stack) - 1; i >= 0; i-- {
		e := f.stack[i]
		if e.Type == wasm.TypeNone {
			continue
		}
		if i == len(f.stack)-1 {
			f.stack = f.stack[:i]
			return e, nil
		}
		if e.Type == wasm.TypeUnreachable {
			f.stack = append(f.stack[:i], f.stack[i+1:]...)
			return e, nil
		}
		if f.fn == nil {
			return nil, DecodeTypeError("operand out of reach in constant expression")
		}
		tmp := f.fn.AddVar(e.Type)
		get := f.r.b.LocalGet(tmp, e.Type)
		f.stack[i] = f.r.b.LocalSet(tmp, e)
		return get, nil
	}
	if f.dead {
		return f.r.b.Unreachable(), nil
	}
	return nil, DecodeTypeError("stack underflow")
}

func (f *frame) popN(n int) ([]*ir.Expr, error) {
	out := make([]*ir.Expr, n)
	for i := n - 1; i >= 0; i-- {
		v, err := f.popValue()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// readBody parses instructions up to the scope's end and folds them
// into a single expression of the given result type.
func (r *Reader) readBody(fn *ir.Function, labels []labelEntry, result wasm.Type) (*ir.Expr, error) {
	list, term, err := r.readInstrs(fn, labels)
	if err != nil {
		return nil, err
	}
	if term != opEnd {
		return nil, DecodeTypeError("unexpected else")
	}
	return r.armExpr(list, result), nil
}

// readFunctionBody parses a function body. The body is itself a
// labeled scope in the binary format: a branch to the outermost depth
// jumps to the function's end. That label materializes as a wrapping
// block only when something actually targets it.
func (r *Reader) readFunctionBody(fn *ir.Function, result wasm.Type) (*ir.Expr, error) {
	exitName := r.genLabel()
	list, term, err := r.readInstrs(fn, []labelEntry{{name: exitName, result: result}})
	if err != nil {
		return nil, err
	}
	if term != opEnd {
		return nil, DecodeTypeError("unexpected else")
	}

	for _, c := range list {
		if ir.BranchesTo(c, exitName) {
			return r.finishBlock(exitName, list, result), nil
		}
	}
	return r.armExpr(list, result), nil
}

func (r *Reader) finishBlock(name string, list []*ir.Expr, declared wasm.Type) *ir.Expr {
	blk := r.b.Block(name, list, declared)
	if !ir.BranchesTo(blk, name) {
		for _, c := range list {
			if c.Type == wasm.TypeUnreachable {
				blk.Type = wasm.TypeUnreachable
				break
			}
		}
	}
	return blk
}

func (r *Reader) armExpr(list []*ir.Expr, declared wasm.Type) *ir.Expr {
	switch len(list) {
	case 0:
		return r.b.Nop()
	case 1:
		return list[0]
	}
	return r.finishBlock("", list, declared)
}

func (r *Reader) readBlockType() (wasm.Type, error) {
	if r.pos >= len(r.data) {
		return wasm.TypeNone, ErrTruncated
	}
	switch b := r.data[r.pos]; b {
	case 0x40:
		r.pos++
		return wasm.TypeNone, nil
	case 0x7f, 0x7e, 0x7d, 0x7c, 0x7b, 0x70, 0x6f:
		r.pos++
		t, _ := wasm.TypeFromValueType(wasm.ValueType(b))
		return t, nil
	}

	idx, err := r.readVarS64()
	if err != nil {
		return wasm.TypeNone, err
	}
	if idx < 0 || idx > 0x7fffffff {
		return wasm.TypeNone, DecodeTypeError("invalid block type index")
	}
	sig, err := r.sigAt(uint32(idx))
	if err != nil {
		return wasm.TypeNone, err
	}
	if wasm.Params(sig) != wasm.TypeNone {
		return wasm.TypeNone, UnsupportedError("block parameters")
	}
	res := wasm.Results(sig)
	if res.Arity() > 1 {
		return wasm.TypeNone, UnsupportedError("multi-value block results")
	}
	return res, nil
}

func (r *Reader) readInstrs(fn *ir.Function, labels []labelEntry) ([]*ir.Expr, byte, error) {
	f := frame{r: r, fn: fn}
	b := r.b

	for {
		op, err := r.readByte()
		if err != nil {
			return nil, 0, err
		}

		switch op {
		case opEnd, opElse:
			return f.stack, op, nil

		case opNop:
			f.push(b.Nop())

		case opUnreachable:
			f.push(b.Unreachable())

		case opBlock:
			bt, err := r.readBlockType()
			if err != nil {
				return nil, 0, err
			}
			name := r.genLabel()
			sub, term, err := r.readInstrs(fn, append(labels, labelEntry{name: name, result: bt}))
			if err != nil {
				return nil, 0, err
			}
			if term != opEnd {
				return nil, 0, DecodeTypeError("unexpected else")
			}
			f.push(r.finishBlock(name, sub, bt))

		case opLoop:
			bt, err := r.readBlockType()
			if err != nil {
				return nil, 0, err
			}
			name := r.genLabel()
			sub, term, err := r.readInstrs(fn, append(labels, labelEntry{name: name, isLoop: true, result: bt}))
			if err != nil {
				return nil, 0, err
			}
			if term != opEnd {
				return nil, 0, DecodeTypeError("unexpected else")
			}
			body := r.armExpr(sub, bt)
			loop := b.Loop(name, body, bt)
			if body.Type == wasm.TypeUnreachable {
				loop.Type = wasm.TypeUnreachable
			}
			f.push(loop)

		case opIf:
			bt, err := r.readBlockType()
			if err != nil {
				return nil, 0, err
			}
			cond, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			name := r.genLabel()
			inner := append(labels, labelEntry{name: name, result: bt})

			thenList, term, err := r.readInstrs(fn, inner)
			if err != nil {
				return nil, 0, err
			}
			var elseList []*ir.Expr
			hasElse := false
			if term == opElse {
				hasElse = true
				elseList, term, err = r.readInstrs(fn, inner)
				if err != nil {
					return nil, 0, err
				}
			}
			if term != opEnd {
				return nil, 0, DecodeTypeError("unexpected else")
			}

			ifTrue := r.armExpr(thenList, bt)
			var ifFalse *ir.Expr
			if hasElse {
				ifFalse = r.armExpr(elseList, bt)
			}
			ife := b.If(cond, ifTrue, ifFalse, bt)
			if cond.Type == wasm.TypeUnreachable ||
				(ifFalse != nil && ifTrue.Type == wasm.TypeUnreachable && ifFalse.Type == wasm.TypeUnreachable) {
				ife.Type = wasm.TypeUnreachable
			}
			if ir.BranchesTo(ife, name) {
				f.push(r.finishBlock(name, []*ir.Expr{ife}, bt))
			} else {
				f.push(ife)
			}

		case opBr:
			depth, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			ent, err := labelAt(labels, depth)
			if err != nil {
				return nil, 0, err
			}
			var value *ir.Expr
			if brCarries(ent) {
				if value, err = f.popValue(); err != nil {
					return nil, 0, err
				}
			}
			f.push(b.Break(ent.name, nil, value))

		case opBrIf:
			depth, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			ent, err := labelAt(labels, depth)
			if err != nil {
				return nil, 0, err
			}
			cond, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			var value *ir.Expr
			if brCarries(ent) {
				if value, err = f.popValue(); err != nil {
					return nil, 0, err
				}
			}
			f.push(b.Break(ent.name, cond, value))

		case opBrTable:
			n, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			targets := make([]string, 0, n)
			for i := uint32(0); i < n; i++ {
				depth, err := r.readVarU32()
				if err != nil {
					return nil, 0, err
				}
				ent, err := labelAt(labels, depth)
				if err != nil {
					return nil, 0, err
				}
				targets = append(targets, ent.name)
			}
			depth, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			def, err := labelAt(labels, depth)
			if err != nil {
				return nil, 0, err
			}
			cond, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			var value *ir.Expr
			if brCarries(def) {
				if value, err = f.popValue(); err != nil {
					return nil, 0, err
				}
			}
			f.push(b.Switch(targets, def.name, cond, value))

		case opReturn:
			if fn == nil {
				return nil, 0, DecodeTypeError("return in constant expression")
			}
			var value *ir.Expr
			if fn.ResultType().IsConcrete() {
				if value, err = f.popValue(); err != nil {
					return nil, 0, err
				}
			}
			f.push(b.Return(value))

		case opCall:
			idx, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			if int(idx) >= len(r.m.Functions) {
				return nil, 0, wasm.ValidationError("unknown function")
			}
			callee := r.m.Functions[idx]
			operands, err := f.popN(wasm.Params(callee.Sig).Arity())
			if err != nil {
				return nil, 0, err
			}
			f.push(b.Call(callee.Name, operands, wasm.Results(callee.Sig)))

		case opCallIndirect:
			idx, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			sig, err := r.sigAt(idx)
			if err != nil {
				return nil, 0, err
			}
			tbl, err := r.readByte()
			if err != nil {
				return nil, 0, err
			}
			if tbl != 0 {
				return nil, 0, UnsupportedError("call_indirect table index")
			}
			target, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			operands, err := f.popN(wasm.Params(sig).Arity())
			if err != nil {
				return nil, 0, err
			}
			f.push(b.CallIndirect(sig, target, operands, wasm.Results(sig)))

		case opDrop:
			v, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			f.push(b.Drop(v))

		case opSelect:
			cond, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			ifFalse, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			ifTrue, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			t := ifTrue.Type
			if t == wasm.TypeUnreachable {
				t = ifFalse.Type
			}
			f.push(b.Select(ifTrue, ifFalse, cond, t))

		case opSelectTyped:
			n, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			if n != 1 {
				return nil, 0, UnsupportedError("select with multiple types")
			}
			t, err := r.readValueType()
			if err != nil {
				return nil, 0, err
			}
			cond, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			ifFalse, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			ifTrue, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			f.push(b.Select(ifTrue, ifFalse, cond, t))

		case opLocalGet:
			idx, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			t, ok := localType(fn, idx)
			if !ok {
				return nil, 0, wasm.ValidationError("unknown local")
			}
			f.push(b.LocalGet(idx, t))

		case opLocalSet:
			idx, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			if _, ok := localType(fn, idx); !ok {
				return nil, 0, wasm.ValidationError("unknown local")
			}
			v, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			f.push(b.LocalSet(idx, v))

		case opLocalTee:
			idx, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			t, ok := localType(fn, idx)
			if !ok {
				return nil, 0, wasm.ValidationError("unknown local")
			}
			v, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			f.push(b.LocalTee(idx, v, t))

		case opGlobalGet:
			idx, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			if int(idx) >= len(r.m.Globals) {
				return nil, 0, wasm.ValidationError("unknown global")
			}
			f.push(b.GlobalGet(idx, r.m.Globals[idx].Type))

		case opGlobalSet:
			idx, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			if int(idx) >= len(r.m.Globals) {
				return nil, 0, wasm.ValidationError("unknown global")
			}
			v, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			f.push(b.GlobalSet(idx, v))

		case opMemorySize:
			if _, err := r.readByte(); err != nil {
				return nil, 0, err
			}
			f.push(b.MemorySize())

		case opMemoryGrow:
			if _, err := r.readByte(); err != nil {
				return nil, 0, err
			}
			delta, err := f.popValue()
			if err != nil {
				return nil, 0, err
			}
			f.push(b.MemoryGrow(delta))

		case opI32Const:
			v, err := r.readVarS32()
			if err != nil {
				return nil, 0, err
			}
			f.push(b.Const(ir.LiteralI32(v)))

		case opI64Const:
			v, err := r.readVarS64()
			if err != nil {
				return nil, 0, err
			}
			f.push(b.Const(ir.LiteralI64(v)))

		case opF32Const:
			raw, err := r.readBytes(4)
			if err != nil {
				return nil, 0, err
			}
			f.push(b.Const(ir.LiteralF32Bits(binary.LittleEndian.Uint32(raw))))

		case opF64Const:
			raw, err := r.readBytes(8)
			if err != nil {
				return nil, 0, err
			}
			f.push(b.Const(ir.LiteralF64Bits(binary.LittleEndian.Uint64(raw))))

		case opPrefix:
			sub, err := r.readVarU32()
			if err != nil {
				return nil, 0, err
			}
			if err := r.readPrefixed(&f, sub); err != nil {
				return nil, 0, err
			}

		default:
			if err := r.readSimple(&f, op); err != nil {
				return nil, 0, err
			}
		}
	}
}

// readSimple handles loads, stores, and the unary/binary operator
// space.
func (r *Reader) readSimple(f *frame, op byte) error {
	b := r.b

	if a, ok := loadByOpcode[op]; ok {
		align, offset, err := r.readMemarg()
		if err != nil {
			return err
		}
		ptr, err := f.popValue()
		if err != nil {
			return err
		}
		f.push(b.Load(a.bytes, a.signed, offset, align, ptr, a.typ))
		return nil
	}

	if a, ok := storeByOpcode[op]; ok {
		align, offset, err := r.readMemarg()
		if err != nil {
			return err
		}
		value, err := f.popValue()
		if err != nil {
			return err
		}
		ptr, err := f.popValue()
		if err != nil {
			return err
		}
		f.push(b.Store(a.bytes, offset, align, ptr, value))
		return nil
	}

	if info, ok := unaryByOpcode[op]; ok {
		v, err := f.popValue()
		if err != nil {
			return err
		}
		f.push(b.Unary(info.op, v, info.result))
		return nil
	}

	if info, ok := binaryByOpcode[op]; ok {
		right, err := f.popValue()
		if err != nil {
			return err
		}
		left, err := f.popValue()
		if err != nil {
			return err
		}
		f.push(b.Binary(info.op, left, right, info.result))
		return nil
	}

	return UnknownOpcodeError{Opcode: op}
}

func (r *Reader) readPrefixed(f *frame, sub uint32) error {
	b := r.b

	if info, ok := truncSatByOpcode[sub]; ok {
		v, err := f.popValue()
		if err != nil {
			return err
		}
		f.push(b.Unary(info.op, v, info.result))
		return nil
	}

	switch sub {
	case opMemoryCopy:
		for i := 0; i < 2; i++ {
			idx, err := r.readByte()
			if err != nil {
				return err
			}
			if idx != 0 {
				return UnsupportedError("memory.copy memory index")
			}
		}
		size, err := f.popValue()
		if err != nil {
			return err
		}
		src, err := f.popValue()
		if err != nil {
			return err
		}
		dest, err := f.popValue()
		if err != nil {
			return err
		}
		f.push(b.MemoryCopy(dest, src, size))
		return nil

	case opMemoryFill:
		idx, err := r.readByte()
		if err != nil {
			return err
		}
		if idx != 0 {
			return UnsupportedError("memory.fill memory index")
		}
		size, err := f.popValue()
		if err != nil {
			return err
		}
		value, err := f.popValue()
		if err != nil {
			return err
		}
		dest, err := f.popValue()
		if err != nil {
			return err
		}
		f.push(b.MemoryFill(dest, value, size))
		return nil
	}

	return UnknownOpcodeError{Opcode: opPrefix, Sub: sub, Prefix: true}
}

func (r *Reader) readMemarg() (align, offset uint32, err error) {
	align, err = r.readVarU32()
	if err != nil {
		return 0, 0, err
	}
	offset, err = r.readVarU32()
	if err != nil {
		return 0, 0, err
	}
	return align, offset, nil
}

func localType(fn *ir.Function, idx uint32) (wasm.Type, bool) {
	if fn == nil {
		return wasm.TypeNone, false
	}
	return fn.LocalType(idx)
}
