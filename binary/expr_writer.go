package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
	"github.com/woptproject/wopt/wasm/leb128"
)

// exprEncoder linearizes an expression tree back into the stack
// machine encoding. Labels are names in the IR; they become relative
// depths here, resolved against the stack of enclosing constructs.
type exprEncoder struct {
	w        *bytes.Buffer
	m        *ir.Module
	sigIndex map[wasm.Type]uint32
	labels   []string
}

func (e *exprEncoder) pushLabel(name string) {
	e.labels = append(e.labels, name)
}

func (e *exprEncoder) popLabel() {
	e.labels = e.labels[:len(e.labels)-1]
}

func (e *exprEncoder) depthOf(name string) (uint32, error) {
	for i := len(e.labels) - 1; i >= 0; i-- {
		if e.labels[i] == name {
			return uint32(len(e.labels) - 1 - i), nil
		}
	}
	return 0, wasm.ValidationError(fmt.Sprintf("branch target %q not in scope", name))
}

func (e *exprEncoder) blockType(t wasm.Type) error {
	switch {
	case t == wasm.TypeNone || t == wasm.TypeUnreachable:
		e.w.WriteByte(0x40)
	default:
		return writeValueType(e.w, t)
	}
	return nil
}

// emitBodyContents emits a scope's contents without a wrapping block:
// an unnamed block at the top of a function body or construct arm is
// flattened into the enclosing scope.
func (e *exprEncoder) emitBodyContents(x *ir.Expr) error {
	if x.Kind == ir.KindBlock && x.Name == "" {
		for _, c := range x.List {
			if err := e.emit(c); err != nil {
				return err
			}
		}
		return nil
	}
	return e.emit(x)
}

func (e *exprEncoder) emit(x *ir.Expr) error {
	switch x.Kind {
	case ir.KindNop:
		e.w.WriteByte(opNop)

	case ir.KindUnreachable:
		e.w.WriteByte(opUnreachable)

	case ir.KindBlock:
		e.w.WriteByte(opBlock)
		if err := e.blockType(x.Type); err != nil {
			return err
		}
		e.pushLabel(x.Name)
		for _, c := range x.List {
			if err := e.emit(c); err != nil {
				return err
			}
		}
		e.popLabel()
		e.w.WriteByte(opEnd)

	case ir.KindLoop:
		e.w.WriteByte(opLoop)
		if err := e.blockType(x.Type); err != nil {
			return err
		}
		e.pushLabel(x.Name)
		if err := e.emitBodyContents(x.Body); err != nil {
			return err
		}
		e.popLabel()
		e.w.WriteByte(opEnd)

	case ir.KindIf:
		if err := e.emit(x.Cond); err != nil {
			return err
		}
		e.w.WriteByte(opIf)
		if err := e.blockType(x.Type); err != nil {
			return err
		}
		e.pushLabel("")
		if err := e.emitBodyContents(x.IfTrue); err != nil {
			return err
		}
		if x.IfFalse != nil {
			e.w.WriteByte(opElse)
			if err := e.emitBodyContents(x.IfFalse); err != nil {
				return err
			}
		}
		e.popLabel()
		e.w.WriteByte(opEnd)

	case ir.KindBreak:
		if x.Value != nil {
			if err := e.emit(x.Value); err != nil {
				return err
			}
		}
		if x.Cond != nil {
			if err := e.emit(x.Cond); err != nil {
				return err
			}
		}
		depth, err := e.depthOf(x.Target)
		if err != nil {
			return err
		}
		if x.Cond != nil {
			e.w.WriteByte(opBrIf)
		} else {
			e.w.WriteByte(opBr)
		}
		leb128.WriteVarUint32(e.w, depth)

	case ir.KindSwitch:
		if x.Value != nil {
			if err := e.emit(x.Value); err != nil {
				return err
			}
		}
		if err := e.emit(x.Cond); err != nil {
			return err
		}
		e.w.WriteByte(opBrTable)
		leb128.WriteVarUint32(e.w, uint32(len(x.Targets)))
		for _, t := range x.Targets {
			depth, err := e.depthOf(t)
			if err != nil {
				return err
			}
			leb128.WriteVarUint32(e.w, depth)
		}
		depth, err := e.depthOf(x.Default)
		if err != nil {
			return err
		}
		leb128.WriteVarUint32(e.w, depth)

	case ir.KindReturn:
		if x.Value != nil {
			if err := e.emit(x.Value); err != nil {
				return err
			}
		}
		e.w.WriteByte(opReturn)

	case ir.KindCall:
		for _, o := range x.List {
			if err := e.emit(o); err != nil {
				return err
			}
		}
		idx, ok := e.m.FuncIndex(x.Target)
		if !ok {
			return wasm.ValidationError(fmt.Sprintf("call target %q not found", x.Target))
		}
		e.w.WriteByte(opCall)
		leb128.WriteVarUint32(e.w, idx)

	case ir.KindCallIndirect:
		for _, o := range x.List {
			if err := e.emit(o); err != nil {
				return err
			}
		}
		if err := e.emit(x.Body); err != nil {
			return err
		}
		idx, ok := e.sigIndex[x.Sig]
		if !ok {
			return wasm.ValidationError("call_indirect signature not in type section")
		}
		e.w.WriteByte(opCallIndirect)
		leb128.WriteVarUint32(e.w, idx)
		e.w.WriteByte(0x00)

	case ir.KindLocalGet:
		e.w.WriteByte(opLocalGet)
		leb128.WriteVarUint32(e.w, x.Index)

	case ir.KindLocalSet:
		if err := e.emit(x.Value); err != nil {
			return err
		}
		e.w.WriteByte(opLocalSet)
		leb128.WriteVarUint32(e.w, x.Index)

	case ir.KindLocalTee:
		if err := e.emit(x.Value); err != nil {
			return err
		}
		e.w.WriteByte(opLocalTee)
		leb128.WriteVarUint32(e.w, x.Index)

	case ir.KindGlobalGet:
		e.w.WriteByte(opGlobalGet)
		leb128.WriteVarUint32(e.w, x.Index)

	case ir.KindGlobalSet:
		if err := e.emit(x.Value); err != nil {
			return err
		}
		e.w.WriteByte(opGlobalSet)
		leb128.WriteVarUint32(e.w, x.Index)

	case ir.KindLoad:
		if err := e.emit(x.Ptr); err != nil {
			return err
		}
		oc, ok := opcodeForLoad(x)
		if !ok {
			return DecodeTypeError(fmt.Sprintf("no load opcode for %d-byte %v", x.Bytes, x.Type))
		}
		e.w.WriteByte(oc)
		leb128.WriteVarUint32(e.w, x.Align)
		leb128.WriteVarUint32(e.w, x.Offset)

	case ir.KindStore:
		if err := e.emit(x.Ptr); err != nil {
			return err
		}
		if err := e.emit(x.Value); err != nil {
			return err
		}
		oc, ok := opcodeForStore(x)
		if !ok {
			return DecodeTypeError(fmt.Sprintf("no store opcode for %d-byte store", x.Bytes))
		}
		e.w.WriteByte(oc)
		leb128.WriteVarUint32(e.w, x.Align)
		leb128.WriteVarUint32(e.w, x.Offset)

	case ir.KindConst:
		switch x.Lit.Type {
		case wasm.TypeI32:
			e.w.WriteByte(opI32Const)
			leb128.WriteVarint32(e.w, x.Lit.I32())
		case wasm.TypeI64:
			e.w.WriteByte(opI64Const)
			leb128.WriteVarint64(e.w, x.Lit.I64())
		case wasm.TypeF32:
			e.w.WriteByte(opF32Const)
			var raw [4]byte
			binary.LittleEndian.PutUint32(raw[:], uint32(x.Lit.Bits))
			e.w.Write(raw[:])
		case wasm.TypeF64:
			e.w.WriteByte(opF64Const)
			var raw [8]byte
			binary.LittleEndian.PutUint64(raw[:], x.Lit.Bits)
			e.w.Write(raw[:])
		default:
			return DecodeTypeError(fmt.Sprintf("cannot encode constant of type %v", x.Lit.Type))
		}

	case ir.KindUnary:
		if err := e.emit(x.Value); err != nil {
			return err
		}
		if sub, ok := truncSatByUnary[x.Unop]; ok {
			e.w.WriteByte(opPrefix)
			leb128.WriteVarUint32(e.w, sub)
		} else if oc, ok := opcodeByUnary[x.Unop]; ok {
			e.w.WriteByte(oc)
		} else {
			return DecodeTypeError(fmt.Sprintf("no opcode for unary op %d", x.Unop))
		}

	case ir.KindBinary:
		if err := e.emit(x.Left); err != nil {
			return err
		}
		if err := e.emit(x.Right); err != nil {
			return err
		}
		oc, ok := opcodeByBinary[x.Binop]
		if !ok {
			return DecodeTypeError(fmt.Sprintf("no opcode for binary op %d", x.Binop))
		}
		e.w.WriteByte(oc)

	case ir.KindSelect:
		if err := e.emit(x.IfTrue); err != nil {
			return err
		}
		if err := e.emit(x.IfFalse); err != nil {
			return err
		}
		if err := e.emit(x.Cond); err != nil {
			return err
		}
		if x.Type.IsRef() {
			e.w.WriteByte(opSelectTyped)
			leb128.WriteVarUint32(e.w, 1)
			if err := writeValueType(e.w, x.Type); err != nil {
				return err
			}
		} else {
			e.w.WriteByte(opSelect)
		}

	case ir.KindDrop:
		if err := e.emit(x.Value); err != nil {
			return err
		}
		e.w.WriteByte(opDrop)

	case ir.KindMemorySize:
		e.w.WriteByte(opMemorySize)
		e.w.WriteByte(0x00)

	case ir.KindMemoryGrow:
		if err := e.emit(x.Value); err != nil {
			return err
		}
		e.w.WriteByte(opMemoryGrow)
		e.w.WriteByte(0x00)

	case ir.KindMemoryCopy:
		for _, o := range x.List {
			if err := e.emit(o); err != nil {
				return err
			}
		}
		e.w.WriteByte(opPrefix)
		leb128.WriteVarUint32(e.w, opMemoryCopy)
		e.w.WriteByte(0x00)
		e.w.WriteByte(0x00)

	case ir.KindMemoryFill:
		for _, o := range x.List {
			if err := e.emit(o); err != nil {
				return err
			}
		}
		e.w.WriteByte(opPrefix)
		leb128.WriteVarUint32(e.w, opMemoryFill)
		e.w.WriteByte(0x00)

	default:
		return DecodeTypeError(fmt.Sprintf("cannot encode expression kind %v", x.Kind))
	}
	return nil
}
