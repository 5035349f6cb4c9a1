// Package validate checks structural and type correctness of IR
// modules. It never mutates; the pass runner invokes it between
// passes to catch regressions.
package validate

import (
	"fmt"
	"strings"

	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

type labelInfo struct {
	name   string
	result wasm.Type
	isLoop bool
}

type validator struct {
	m      *ir.Module
	fn     *ir.Function
	labels []labelInfo
	path   []string
}

// ValidateModule checks the whole module and returns the first error
// found, naming the function and the expression path.
func ValidateModule(m *ir.Module) error {
	v := &validator{m: m}

	if err := v.validateShape(); err != nil {
		return err
	}
	for _, g := range m.Globals {
		if g.Imported {
			continue
		}
		if g.Init == nil {
			return wasm.ValidationError(fmt.Sprintf("global %q has no initializer", g.Name))
		}
		if err := v.validateInit(g.Init, g.Type); err != nil {
			return err
		}
	}
	for _, seg := range m.Elements {
		if m.Table == nil {
			return wasm.ValidationError("element segment without table")
		}
		if err := v.validateInit(seg.Offset, wasm.TypeI32); err != nil {
			return err
		}
		for _, idx := range seg.Funcs {
			if int(idx) >= len(m.Functions) {
				return wasm.ValidationError("element segment references unknown function")
			}
		}
	}
	for _, seg := range m.Data {
		if m.Memory == nil {
			return wasm.ValidationError("data segment without memory")
		}
		if err := v.validateInit(seg.Offset, wasm.TypeI32); err != nil {
			return err
		}
	}
	for _, fn := range m.Functions {
		if fn.Imported {
			continue
		}
		if err := v.validateFunction(fn); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) validateShape() error {
	m := v.m

	seenDefined := false
	for _, fn := range m.Functions {
		if fn.Imported {
			if seenDefined {
				return wasm.ValidationError("imported function after defined function")
			}
		} else {
			seenDefined = true
		}
	}

	names := map[string]bool{}
	for _, e := range m.Exports {
		if names[e.Name] {
			return wasm.ValidationError(fmt.Sprintf("duplicate export name %q", e.Name))
		}
		names[e.Name] = true

		switch e.Kind {
		case wasm.ExternalFunction:
			if int(e.Index) >= len(m.Functions) {
				return wasm.ValidationError("export references unknown function")
			}
		case wasm.ExternalTable:
			if m.Table == nil || e.Index != 0 {
				return wasm.ValidationError("export references unknown table")
			}
		case wasm.ExternalMemory:
			if m.Memory == nil || e.Index != 0 {
				return wasm.ValidationError("export references unknown memory")
			}
		case wasm.ExternalGlobal:
			if int(e.Index) >= len(m.Globals) {
				return wasm.ValidationError("export references unknown global")
			}
		default:
			return wasm.ValidationError("invalid export kind")
		}
	}

	if m.HasStart {
		if int(m.Start) >= len(m.Functions) {
			return wasm.ValidationError("start function index out of range")
		}
		sig := m.Functions[m.Start].Sig
		if wasm.Params(sig) != wasm.TypeNone || wasm.Results(sig) != wasm.TypeNone {
			return wasm.ValidationError("start function must have no parameters and no results")
		}
	}

	if m.Memory != nil {
		if m.Memory.HasMax && m.Memory.Initial > m.Memory.Maximum {
			return wasm.ValidationError("memory minimum exceeds maximum")
		}
		if m.Memory.Initial > 65536 || (m.Memory.HasMax && m.Memory.Maximum > 65536) {
			return wasm.ValidationError("memory size must be at most 65536 pages")
		}
	}
	if m.Table != nil && m.Table.HasMax && m.Table.Initial > m.Table.Maximum {
		return wasm.ValidationError("table minimum exceeds maximum")
	}
	return nil
}

func (v *validator) validateInit(e *ir.Expr, expected wasm.Type) error {
	switch e.Kind {
	case ir.KindConst:
		if e.Type != expected {
			return wasm.ValidationError(fmt.Sprintf("initializer has type %v, want %v", e.Type, expected))
		}
		return nil
	case ir.KindGlobalGet:
		if int(e.Index) >= len(v.m.Globals) {
			return wasm.ValidationError("initializer references unknown global")
		}
		g := v.m.Globals[e.Index]
		if !g.Imported || g.Mutable {
			return wasm.ValidationError("initializer must reference an immutable imported global")
		}
		if g.Type != expected {
			return wasm.ValidationError(fmt.Sprintf("initializer has type %v, want %v", g.Type, expected))
		}
		return nil
	}
	return wasm.ValidationError("constant expression required")
}

func (v *validator) validateFunction(fn *ir.Function) error {
	if fn.Body == nil {
		return wasm.ValidationError(fmt.Sprintf("function %q has no body", fn.Name))
	}
	v.fn = fn
	v.labels = v.labels[:0]
	v.path = v.path[:0]

	t, err := v.check(fn.Body)
	if err != nil {
		return err
	}
	result := fn.ResultType()
	if t != wasm.TypeUnreachable && t != result {
		return v.errf(fn.Body, "body has type %v, function returns %v", t, result)
	}
	return nil
}

func (v *validator) errf(e *ir.Expr, format string, args ...interface{}) error {
	loc := fmt.Sprintf("function %q", v.fn.Name)
	if len(v.path) > 0 {
		loc += " at " + strings.Join(v.path, "/")
	}
	return wasm.ValidationError(fmt.Sprintf("%s: %s", loc, fmt.Sprintf(format, args...)))
}

// matches reports whether an actual child type satisfies an expected
// type; unreachable satisfies anything.
func matches(actual, expected wasm.Type) bool {
	return actual == expected || actual == wasm.TypeUnreachable
}

func (v *validator) check(e *ir.Expr) (wasm.Type, error) {
	v.path = append(v.path, e.Kind.String())
	defer func() { v.path = v.path[:len(v.path)-1] }()

	switch e.Kind {
	case ir.KindNop:
		return v.expect(e, wasm.TypeNone)

	case ir.KindUnreachable:
		return v.expect(e, wasm.TypeUnreachable)

	case ir.KindConst:
		return v.expect(e, e.Lit.Type)

	case ir.KindBlock:
		v.labels = append(v.labels, labelInfo{name: e.Name, result: e.Type})
		defer func() { v.labels = v.labels[:len(v.labels)-1] }()

		sawUnreachable := false
		for i, c := range e.List {
			t, err := v.check(c)
			if err != nil {
				return wasm.TypeNone, err
			}
			if t == wasm.TypeUnreachable {
				sawUnreachable = true
			}
			last := i == len(e.List)-1
			if !last && t.IsConcrete() {
				return wasm.TypeNone, v.errf(c, "unused value of type %v in block", t)
			}
			if last && e.Type.IsConcrete() && !matches(t, e.Type) {
				return wasm.TypeNone, v.errf(c, "block yields %v, want %v", t, e.Type)
			}
		}
		if e.Type == wasm.TypeUnreachable && !sawUnreachable {
			return wasm.TypeNone, v.errf(e, "unreachable block with no unreachable child")
		}
		if e.Type.IsConcrete() && len(e.List) == 0 {
			return wasm.TypeNone, v.errf(e, "empty block cannot yield %v", e.Type)
		}
		return e.Type, nil

	case ir.KindLoop:
		v.labels = append(v.labels, labelInfo{name: e.Name, isLoop: true})
		t, err := v.check(e.Body)
		v.labels = v.labels[:len(v.labels)-1]
		if err != nil {
			return wasm.TypeNone, err
		}
		if e.Type.IsConcrete() && !matches(t, e.Type) {
			return wasm.TypeNone, v.errf(e, "loop body yields %v, want %v", t, e.Type)
		}
		return e.Type, nil

	case ir.KindIf:
		ct, err := v.check(e.Cond)
		if err != nil {
			return wasm.TypeNone, err
		}
		if !matches(ct, wasm.TypeI32) {
			return wasm.TypeNone, v.errf(e, "if condition has type %v", ct)
		}
		tt, err := v.check(e.IfTrue)
		if err != nil {
			return wasm.TypeNone, err
		}
		if e.Type.IsConcrete() {
			if e.IfFalse == nil {
				return wasm.TypeNone, v.errf(e, "if yields %v but has no else", e.Type)
			}
			if !matches(tt, e.Type) {
				return wasm.TypeNone, v.errf(e, "then arm yields %v, want %v", tt, e.Type)
			}
		}
		if e.IfFalse != nil {
			ft, err := v.check(e.IfFalse)
			if err != nil {
				return wasm.TypeNone, err
			}
			if e.Type.IsConcrete() && !matches(ft, e.Type) {
				return wasm.TypeNone, v.errf(e, "else arm yields %v, want %v", ft, e.Type)
			}
		}
		return e.Type, nil

	case ir.KindBreak:
		target, ok := v.findLabel(e.Target)
		if !ok {
			return wasm.TypeNone, v.errf(e, "branch target %q not in scope", e.Target)
		}
		carried := wasm.TypeNone
		if e.Value != nil {
			if target.isLoop {
				return wasm.TypeNone, v.errf(e, "branch to loop cannot carry a value")
			}
			vt, err := v.check(e.Value)
			if err != nil {
				return wasm.TypeNone, err
			}
			if !matches(vt, target.result) {
				return wasm.TypeNone, v.errf(e, "branch carries %v, label wants %v", vt, target.result)
			}
			carried = vt
		} else if !target.isLoop && target.result.IsConcrete() {
			return wasm.TypeNone, v.errf(e, "branch to value label carries no value")
		}
		if e.Cond != nil {
			ct, err := v.check(e.Cond)
			if err != nil {
				return wasm.TypeNone, err
			}
			if !matches(ct, wasm.TypeI32) {
				return wasm.TypeNone, v.errf(e, "branch condition has type %v", ct)
			}
			// A conditional branch flows its value through.
			return v.expect(e, carried)
		}
		return v.expect(e, wasm.TypeUnreachable)

	case ir.KindSwitch:
		for _, name := range append(append([]string{}, e.Targets...), e.Default) {
			target, ok := v.findLabel(name)
			if !ok {
				return wasm.TypeNone, v.errf(e, "branch target %q not in scope", name)
			}
			if e.Value == nil && !target.isLoop && target.result.IsConcrete() {
				return wasm.TypeNone, v.errf(e, "switch to value label carries no value")
			}
		}
		if e.Value != nil {
			if _, err := v.check(e.Value); err != nil {
				return wasm.TypeNone, err
			}
		}
		ct, err := v.check(e.Cond)
		if err != nil {
			return wasm.TypeNone, err
		}
		if !matches(ct, wasm.TypeI32) {
			return wasm.TypeNone, v.errf(e, "switch selector has type %v", ct)
		}
		return v.expect(e, wasm.TypeUnreachable)

	case ir.KindReturn:
		result := v.fn.ResultType()
		if e.Value != nil {
			vt, err := v.check(e.Value)
			if err != nil {
				return wasm.TypeNone, err
			}
			if !matches(vt, result) {
				return wasm.TypeNone, v.errf(e, "return carries %v, function returns %v", vt, result)
			}
		} else if result.IsConcrete() {
			return wasm.TypeNone, v.errf(e, "missing return value")
		}
		return v.expect(e, wasm.TypeUnreachable)

	case ir.KindCall:
		callee := v.m.GetFunction(e.Target)
		if callee == nil {
			return wasm.TypeNone, v.errf(e, "call target %q not found", e.Target)
		}
		params := wasm.Params(callee.Sig).Expand()
		if len(e.List) != len(params) {
			return wasm.TypeNone, v.errf(e, "call has %d arguments, callee takes %d", len(e.List), len(params))
		}
		for i, o := range e.List {
			ot, err := v.check(o)
			if err != nil {
				return wasm.TypeNone, err
			}
			if !matches(ot, params[i]) {
				return wasm.TypeNone, v.errf(e, "argument %d has type %v, want %v", i, ot, params[i])
			}
		}
		return v.expect(e, wasm.Results(callee.Sig))

	case ir.KindCallIndirect:
		if v.m.Table == nil {
			return wasm.TypeNone, v.errf(e, "call_indirect without table")
		}
		params := wasm.Params(e.Sig).Expand()
		if len(e.List) != len(params) {
			return wasm.TypeNone, v.errf(e, "call_indirect has %d arguments, signature takes %d", len(e.List), len(params))
		}
		for i, o := range e.List {
			ot, err := v.check(o)
			if err != nil {
				return wasm.TypeNone, err
			}
			if !matches(ot, params[i]) {
				return wasm.TypeNone, v.errf(e, "argument %d has type %v, want %v", i, ot, params[i])
			}
		}
		tt, err := v.check(e.Body)
		if err != nil {
			return wasm.TypeNone, err
		}
		if !matches(tt, wasm.TypeI32) {
			return wasm.TypeNone, v.errf(e, "call_indirect index has type %v", tt)
		}
		return v.expect(e, wasm.Results(e.Sig))

	case ir.KindLocalGet:
		t, ok := v.fn.LocalType(e.Index)
		if !ok {
			return wasm.TypeNone, v.errf(e, "local %d out of range", e.Index)
		}
		return v.expect(e, t)

	case ir.KindLocalSet, ir.KindLocalTee:
		t, ok := v.fn.LocalType(e.Index)
		if !ok {
			return wasm.TypeNone, v.errf(e, "local %d out of range", e.Index)
		}
		vt, err := v.check(e.Value)
		if err != nil {
			return wasm.TypeNone, err
		}
		if !matches(vt, t) {
			return wasm.TypeNone, v.errf(e, "stored value has type %v, local is %v", vt, t)
		}
		if e.Kind == ir.KindLocalTee {
			return v.expect(e, t)
		}
		return v.expect(e, wasm.TypeNone)

	case ir.KindGlobalGet:
		if int(e.Index) >= len(v.m.Globals) {
			return wasm.TypeNone, v.errf(e, "global %d out of range", e.Index)
		}
		return v.expect(e, v.m.Globals[e.Index].Type)

	case ir.KindGlobalSet:
		if int(e.Index) >= len(v.m.Globals) {
			return wasm.TypeNone, v.errf(e, "global %d out of range", e.Index)
		}
		g := v.m.Globals[e.Index]
		if !g.Mutable {
			return wasm.TypeNone, v.errf(e, "global %d is immutable", e.Index)
		}
		vt, err := v.check(e.Value)
		if err != nil {
			return wasm.TypeNone, err
		}
		if !matches(vt, g.Type) {
			return wasm.TypeNone, v.errf(e, "stored value has type %v, global is %v", vt, g.Type)
		}
		return v.expect(e, wasm.TypeNone)

	case ir.KindLoad:
		if v.m.Memory == nil {
			return wasm.TypeNone, v.errf(e, "load without memory")
		}
		if err := v.checkAlign(e); err != nil {
			return wasm.TypeNone, err
		}
		pt, err := v.check(e.Ptr)
		if err != nil {
			return wasm.TypeNone, err
		}
		if !matches(pt, wasm.TypeI32) {
			return wasm.TypeNone, v.errf(e, "load address has type %v", pt)
		}
		if !e.Type.IsNumber() {
			return wasm.TypeNone, v.errf(e, "load of non-numeric type %v", e.Type)
		}
		return e.Type, nil

	case ir.KindStore:
		if v.m.Memory == nil {
			return wasm.TypeNone, v.errf(e, "store without memory")
		}
		if err := v.checkAlign(e); err != nil {
			return wasm.TypeNone, err
		}
		pt, err := v.check(e.Ptr)
		if err != nil {
			return wasm.TypeNone, err
		}
		if !matches(pt, wasm.TypeI32) {
			return wasm.TypeNone, v.errf(e, "store address has type %v", pt)
		}
		if _, err := v.check(e.Value); err != nil {
			return wasm.TypeNone, err
		}
		return v.expect(e, wasm.TypeNone)

	case ir.KindUnary:
		operand := unaryOperandType(e.Unop)
		result := unaryResultType(e.Unop)
		vt, err := v.check(e.Value)
		if err != nil {
			return wasm.TypeNone, err
		}
		if !matches(vt, operand) {
			return wasm.TypeNone, v.errf(e, "operand has type %v, operator wants %v", vt, operand)
		}
		return v.expect(e, result)

	case ir.KindBinary:
		operand := binaryOperandType(e.Binop)
		result := binaryResultType(e.Binop)
		lt, err := v.check(e.Left)
		if err != nil {
			return wasm.TypeNone, err
		}
		rt, err := v.check(e.Right)
		if err != nil {
			return wasm.TypeNone, err
		}
		if !matches(lt, operand) || !matches(rt, operand) {
			return wasm.TypeNone, v.errf(e, "operands have types %v and %v, operator wants %v", lt, rt, operand)
		}
		return v.expect(e, result)

	case ir.KindSelect:
		tt, err := v.check(e.IfTrue)
		if err != nil {
			return wasm.TypeNone, err
		}
		ft, err := v.check(e.IfFalse)
		if err != nil {
			return wasm.TypeNone, err
		}
		ct, err := v.check(e.Cond)
		if err != nil {
			return wasm.TypeNone, err
		}
		if !matches(ct, wasm.TypeI32) {
			return wasm.TypeNone, v.errf(e, "select condition has type %v", ct)
		}
		if !matches(tt, e.Type) || !matches(ft, e.Type) {
			return wasm.TypeNone, v.errf(e, "select arms have types %v and %v, want %v", tt, ft, e.Type)
		}
		return e.Type, nil

	case ir.KindDrop:
		vt, err := v.check(e.Value)
		if err != nil {
			return wasm.TypeNone, err
		}
		if vt == wasm.TypeNone {
			return wasm.TypeNone, v.errf(e, "drop of a valueless expression")
		}
		return v.expect(e, wasm.TypeNone)

	case ir.KindMemorySize:
		if v.m.Memory == nil {
			return wasm.TypeNone, v.errf(e, "memory.size without memory")
		}
		return v.expect(e, wasm.TypeI32)

	case ir.KindMemoryGrow:
		if v.m.Memory == nil {
			return wasm.TypeNone, v.errf(e, "memory.grow without memory")
		}
		vt, err := v.check(e.Value)
		if err != nil {
			return wasm.TypeNone, err
		}
		if !matches(vt, wasm.TypeI32) {
			return wasm.TypeNone, v.errf(e, "memory.grow delta has type %v", vt)
		}
		return v.expect(e, wasm.TypeI32)

	case ir.KindMemoryCopy, ir.KindMemoryFill:
		if v.m.Memory == nil {
			return wasm.TypeNone, v.errf(e, "bulk memory operation without memory")
		}
		if len(e.List) != 3 {
			return wasm.TypeNone, v.errf(e, "bulk memory operation needs 3 operands")
		}
		for _, o := range e.List {
			ot, err := v.check(o)
			if err != nil {
				return wasm.TypeNone, err
			}
			if !matches(ot, wasm.TypeI32) {
				return wasm.TypeNone, v.errf(e, "bulk memory operand has type %v", ot)
			}
		}
		return v.expect(e, wasm.TypeNone)
	}

	return wasm.TypeNone, v.errf(e, "unknown expression kind")
}

// expect verifies the node's annotated type against the computed one.
func (v *validator) expect(e *ir.Expr, computed wasm.Type) (wasm.Type, error) {
	if e.Type != computed {
		return wasm.TypeNone, v.errf(e, "annotated type %v, computed %v", e.Type, computed)
	}
	return computed, nil
}

func (v *validator) findLabel(name string) (labelInfo, bool) {
	if name == "" {
		return labelInfo{}, false
	}
	for i := len(v.labels) - 1; i >= 0; i-- {
		if v.labels[i].name == name {
			return v.labels[i], true
		}
	}
	return labelInfo{}, false
}

func (v *validator) checkAlign(e *ir.Expr) error {
	var natural uint32
	switch e.Bytes {
	case 1:
		natural = 0
	case 2:
		natural = 1
	case 4:
		natural = 2
	case 8:
		natural = 3
	default:
		return v.errf(e, "invalid access width %d", e.Bytes)
	}
	if e.Align > natural {
		return v.errf(e, "alignment 2^%d exceeds natural alignment of %d-byte access", e.Align, e.Bytes)
	}
	return nil
}
