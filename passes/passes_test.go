package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

func newFunc(m *ir.Module, params []wasm.Type, result wasm.Type, vars []wasm.Type, body *ir.Expr) *ir.Function {
	fn := &ir.Function{
		Name: "test",
		Sig:  wasm.InternSignature(wasm.InternTuple(params), result),
		Vars: vars,
		Body: body,
	}
	m.AddFunction(fn)
	return fn
}

func runPass(t *testing.T, name string, m *ir.Module) {
	t.Helper()
	f, ok := Lookup(name)
	require.True(t, ok, "pass %q not registered", name)
	f().Run(m)
}

func TestSimplifyIdentityPositive(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// (local.get 0) + 0
	body := b.Binary(ir.AddInt32, b.LocalGet(0, wasm.TypeI32), b.ConstI32(0), wasm.TypeI32)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeI32, nil, body)

	runPass(t, "simplify-identity", m)

	require.Equal(t, ir.KindLocalGet, fn.Body.Kind)
}

func TestSimplifyIdentityVariants(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	get := func() *ir.Expr { return b.LocalGet(0, wasm.TypeI64) }
	cases := []*ir.Expr{
		b.Binary(ir.SubInt64, get(), b.ConstI64(0), wasm.TypeI64),
		b.Binary(ir.MulInt64, get(), b.ConstI64(1), wasm.TypeI64),
		b.Binary(ir.OrInt64, get(), b.ConstI64(0), wasm.TypeI64),
		b.Binary(ir.AndInt64, get(), b.ConstI64(-1), wasm.TypeI64),
		b.Binary(ir.XorInt64, get(), b.ConstI64(0), wasm.TypeI64),
		b.Binary(ir.ShlInt64, get(), b.ConstI64(0), wasm.TypeI64),
	}
	for _, body := range cases {
		m2 := ir.NewModule()
		fn := newFunc(m2, []wasm.Type{wasm.TypeI64}, wasm.TypeI64, nil, body)
		runPass(t, "simplify-identity", m2)
		assert.Equal(t, ir.KindLocalGet, fn.Body.Kind)
	}
}

func TestSimplifyIdentityNegative(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// x - x is not an identity; x + 1 is not either; floats are left
	// alone entirely.
	sub := b.Binary(ir.SubInt32, b.LocalGet(0, wasm.TypeI32), b.LocalGet(0, wasm.TypeI32), wasm.TypeI32)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeI32, nil, sub)
	runPass(t, "simplify-identity", m)
	assert.Equal(t, ir.KindBinary, fn.Body.Kind)

	m2 := ir.NewModule()
	b2 := m2.Builder()
	fadd := b2.Binary(ir.AddFloat32, b2.LocalGet(0, wasm.TypeF32), b2.Const(ir.LiteralF32(0)), wasm.TypeF32)
	fn2 := newFunc(m2, []wasm.Type{wasm.TypeF32}, wasm.TypeF32, nil, fadd)
	runPass(t, "simplify-identity", m2)
	assert.Equal(t, ir.KindBinary, fn2.Body.Kind, "float add of zero must stay (NaN, -0.0)")
}

func TestSimplifyIdentityChained(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// ((x + 0) + 0) reduces all the way down.
	inner := b.Binary(ir.AddInt32, b.LocalGet(0, wasm.TypeI32), b.ConstI32(0), wasm.TypeI32)
	body := b.Binary(ir.AddInt32, inner, b.ConstI32(0), wasm.TypeI32)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeI32, nil, body)

	runPass(t, "simplify-identity", m)
	assert.Equal(t, ir.KindLocalGet, fn.Body.Kind)
}

func TestPrecomputeFolds(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// (10 + 20) * 2
	sum := b.Binary(ir.AddInt32, b.ConstI32(10), b.ConstI32(20), wasm.TypeI32)
	body := b.Binary(ir.MulInt32, sum, b.ConstI32(2), wasm.TypeI32)
	fn := newFunc(m, nil, wasm.TypeI32, nil, body)

	runPass(t, "precompute", m)

	require.Equal(t, ir.KindConst, fn.Body.Kind)
	assert.Equal(t, int32(60), fn.Body.Lit.I32())
}

func TestPrecomputeIdentityStress(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// i32.const 0 added to itself ten times folds to a single zero.
	e := b.ConstI32(0)
	for i := 0; i < 10; i++ {
		e = b.Binary(ir.AddInt32, e, b.ConstI32(0), wasm.TypeI32)
	}
	fn := newFunc(m, nil, wasm.TypeI32, nil, e)

	runPass(t, "precompute", m)

	require.Equal(t, ir.KindConst, fn.Body.Kind)
	assert.Equal(t, int32(0), fn.Body.Lit.I32())
}

func TestPrecomputeDeclinesTraps(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// 1 / 0 must stay and trap at runtime.
	body := b.Binary(ir.DivSInt32, b.ConstI32(1), b.ConstI32(0), wasm.TypeI32)
	fn := newFunc(m, nil, wasm.TypeI32, nil, body)

	runPass(t, "precompute", m)
	assert.Equal(t, ir.KindBinary, fn.Body.Kind)
}

func TestPrecomputeWasmSemantics(t *testing.T) {
	cases := []struct {
		op   ir.BinaryOp
		l, r int32
		want int32
	}{
		{ir.AddInt32, 2147483647, 1, -2147483648}, // wraps
		{ir.ShlInt32, 1, 33, 2},                   // shift count mod 32
		{ir.DivUInt32, -2, 2, 2147483647},         // unsigned division
		{ir.RemSInt32, -2147483648, -1, 0},        // defined, no trap
	}
	for _, c := range cases {
		m := ir.NewModule()
		b := m.Builder()
		body := b.Binary(c.op, b.ConstI32(c.l), b.ConstI32(c.r), wasm.TypeI32)
		fn := newFunc(m, nil, wasm.TypeI32, nil, body)

		runPass(t, "precompute", m)
		require.Equal(t, ir.KindConst, fn.Body.Kind, "op %v", c.op)
		assert.Equal(t, c.want, fn.Body.Lit.I32(), "op %v", c.op)
	}
}

func TestPrecomputeFloatDeterminism(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// 0.0 / 0.0 folds to the canonical NaN pattern.
	body := b.Binary(ir.DivFloat64, b.Const(ir.LiteralF64(0)), b.Const(ir.LiteralF64(0)), wasm.TypeF64)
	fn := newFunc(m, nil, wasm.TypeF64, nil, body)

	runPass(t, "precompute", m)
	require.Equal(t, ir.KindConst, fn.Body.Kind)
	assert.Equal(t, uint64(canonNaN64), fn.Body.Lit.Bits)
}

func TestDCERemovesAfterReturn(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// (block (return) (call $test)) -- scenario: everything after the
	// return is dead.
	ret := b.Return(nil)
	call := b.Call("test", nil, wasm.TypeNone)
	body := b.Block("", []*ir.Expr{ret, call}, wasm.TypeUnreachable)
	fn := newFunc(m, nil, wasm.TypeNone, nil, body)

	runPass(t, "dce", m)

	require.Equal(t, ir.KindBlock, fn.Body.Kind)
	require.Len(t, fn.Body.List, 1)
	assert.Equal(t, ir.KindReturn, fn.Body.List[0].Kind)
}

func TestDCEKeepsReachable(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	body := b.Block("", []*ir.Expr{
		b.LocalSet(0, b.ConstI32(1)),
		b.LocalSet(0, b.ConstI32(2)),
	}, wasm.TypeNone)
	fn := newFunc(m, nil, wasm.TypeNone, []wasm.Type{wasm.TypeI32}, body)

	runPass(t, "dce", m)
	assert.Len(t, fn.Body.List, 2)
}

func TestDCEIdempotent(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	body := b.Block("", []*ir.Expr{
		b.Nop(),
		b.Unreachable(),
		b.Drop(b.ConstI32(1)),
		b.Drop(b.ConstI32(2)),
	}, wasm.TypeUnreachable)
	fn := newFunc(m, nil, wasm.TypeNone, nil, body)

	runPass(t, "dce", m)
	once := ir.Fingerprint(fn.Body)
	runPass(t, "dce", m)
	assert.Equal(t, once, ir.Fingerprint(fn.Body))
	assert.Len(t, fn.Body.List, 2)
}

func TestUnteePositive(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	tee := b.LocalTee(0, b.ConstI32(42), wasm.TypeI32)
	fn := newFunc(m, nil, wasm.TypeI32, []wasm.Type{wasm.TypeI32}, tee)

	runPass(t, "untee", m)

	body := fn.Body
	require.Equal(t, ir.KindBlock, body.Kind)
	require.Len(t, body.List, 2)
	assert.Equal(t, ir.KindLocalSet, body.List[0].Kind)
	assert.Equal(t, ir.KindLocalGet, body.List[1].Kind)
	assert.Equal(t, wasm.TypeI32, body.Type)
}

func TestUnteeLeavesOthers(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	get := b.LocalGet(0, wasm.TypeI32)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeI32, nil, get)

	runPass(t, "untee", m)
	assert.Equal(t, ir.KindLocalGet, fn.Body.Kind)
}

func TestVacuumDropsAndNops(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	body := b.Block("", []*ir.Expr{
		b.Nop(),
		b.Drop(b.ConstI32(1)),
		b.LocalSet(0, b.ConstI32(5)),
		b.Nop(),
	}, wasm.TypeNone)
	fn := newFunc(m, nil, wasm.TypeNone, []wasm.Type{wasm.TypeI32}, body)

	runPass(t, "vacuum", m)

	require.Equal(t, ir.KindBlock, fn.Body.Kind)
	require.Len(t, fn.Body.List, 1)
	assert.Equal(t, ir.KindLocalSet, fn.Body.List[0].Kind)
}

func TestVacuumKeepsEffectfulDrop(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	drop := b.Drop(b.Call("test", nil, wasm.TypeI32))
	fn := newFunc(m, nil, wasm.TypeI32, nil, b.Block("", []*ir.Expr{drop, b.ConstI32(0)}, wasm.TypeI32))

	runPass(t, "vacuum", m)
	require.Len(t, fn.Body.List, 2)
	assert.Equal(t, ir.KindDrop, fn.Body.List[0].Kind)
}

func TestVacuumEmptyIf(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// if (local.get 0) {} -> nothing but the condition, which is
	// pure, so the whole if vanishes.
	ife := b.If(b.LocalGet(0, wasm.TypeI32), b.Nop(), nil, wasm.TypeNone)
	body := b.Block("", []*ir.Expr{ife, b.ConstI32(9)}, wasm.TypeI32)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeI32, nil, body)

	runPass(t, "vacuum", m)
	require.Len(t, fn.Body.List, 1)
	assert.Equal(t, ir.KindConst, fn.Body.List[0].Kind)
}

func TestRSERemovesDeadSet(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// set 0 overwritten before any use.
	body := b.Block("", []*ir.Expr{
		b.LocalSet(0, b.ConstI32(1)),
		b.LocalSet(0, b.ConstI32(2)),
		b.Drop(b.LocalGet(0, wasm.TypeI32)),
	}, wasm.TypeNone)
	fn := newFunc(m, nil, wasm.TypeNone, []wasm.Type{wasm.TypeI32}, body)

	runPass(t, "rse", m)

	kinds := []ir.Kind{}
	for _, c := range fn.Body.List {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []ir.Kind{ir.KindNop, ir.KindLocalSet, ir.KindDrop}, kinds)
}

func TestRSEKeepsLiveSet(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	body := b.Block("", []*ir.Expr{
		b.LocalSet(0, b.ConstI32(1)),
		b.Drop(b.LocalGet(0, wasm.TypeI32)),
	}, wasm.TypeNone)
	fn := newFunc(m, nil, wasm.TypeNone, []wasm.Type{wasm.TypeI32}, body)

	runPass(t, "rse", m)
	assert.Equal(t, ir.KindLocalSet, fn.Body.List[0].Kind)
}

func TestRSEKeepsSetLiveOnOneArm(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// The set is read on one branch only; still live.
	body := b.Block("", []*ir.Expr{
		b.LocalSet(1, b.ConstI32(7)),
		b.If(b.LocalGet(0, wasm.TypeI32),
			b.Drop(b.LocalGet(1, wasm.TypeI32)),
			nil, wasm.TypeNone),
	}, wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone, []wasm.Type{wasm.TypeI32}, body)

	runPass(t, "rse", m)
	assert.Equal(t, ir.KindLocalSet, fn.Body.List[0].Kind)
}

func TestLocalCSEPositive(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	mk := func() *ir.Expr {
		return b.Binary(ir.MulInt32,
			b.LocalGet(0, wasm.TypeI32),
			b.LocalGet(0, wasm.TypeI32),
			wasm.TypeI32)
	}
	body := b.Block("", []*ir.Expr{
		b.LocalSet(1, mk()),
		b.LocalSet(2, mk()),
	}, wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone,
		[]wasm.Type{wasm.TypeI32, wasm.TypeI32}, body)

	before := len(fn.Vars)
	runPass(t, "local-cse", m)

	assert.Equal(t, before+1, len(fn.Vars), "a scratch local materializes the shared value")
	assert.Equal(t, ir.KindLocalTee, fn.Body.List[0].Value.Kind)
	assert.Equal(t, ir.KindLocalGet, fn.Body.List[1].Value.Kind)
}

func TestLocalCSEBlockedByInterferingWrite(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	mk := func() *ir.Expr {
		return b.Binary(ir.MulInt32,
			b.LocalGet(0, wasm.TypeI32),
			b.LocalGet(0, wasm.TypeI32),
			wasm.TypeI32)
	}
	body := b.Block("", []*ir.Expr{
		b.LocalSet(1, mk()),
		b.LocalSet(0, b.ConstI32(9)), // clobbers the operand
		b.LocalSet(2, mk()),
	}, wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone,
		[]wasm.Type{wasm.TypeI32, wasm.TypeI32}, body)

	before := len(fn.Vars)
	runPass(t, "local-cse", m)

	assert.Equal(t, before, len(fn.Vars), "no local is allocated when a write interferes")
	assert.Equal(t, ir.KindBinary, fn.Body.List[2].Value.Kind)
}

func TestMergeBlocksFlattens(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	inner := b.Block("", []*ir.Expr{
		b.LocalSet(0, b.ConstI32(1)),
		b.LocalSet(0, b.ConstI32(2)),
	}, wasm.TypeNone)
	outer := b.Block("", []*ir.Expr{inner, b.LocalSet(0, b.ConstI32(3))}, wasm.TypeNone)
	fn := newFunc(m, nil, wasm.TypeNone, []wasm.Type{wasm.TypeI32}, outer)

	runPass(t, "merge-blocks", m)

	require.Equal(t, ir.KindBlock, fn.Body.Kind)
	assert.Len(t, fn.Body.List, 3)
}

func TestMergeBlocksKeepsLabeled(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	inner := b.Block("$l", []*ir.Expr{b.Break("$l", b.LocalGet(0, wasm.TypeI32), nil)}, wasm.TypeNone)
	outer := b.Block("", []*ir.Expr{inner, b.LocalSet(1, b.ConstI32(3))}, wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone, []wasm.Type{wasm.TypeI32}, outer)

	runPass(t, "merge-blocks", m)
	assert.Len(t, fn.Body.List, 2, "labeled blocks must not dissolve")
}

func TestSimplifyControlFlowConstIf(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	ife := b.If(b.ConstI32(1),
		b.LocalSet(0, b.ConstI32(10)),
		b.LocalSet(0, b.ConstI32(20)),
		wasm.TypeNone)
	fn := newFunc(m, nil, wasm.TypeNone, []wasm.Type{wasm.TypeI32}, ife)

	runPass(t, "simplify-control-flow", m)

	require.Equal(t, ir.KindLocalSet, fn.Body.Kind)
	assert.Equal(t, int32(10), fn.Body.Value.Lit.I32())
}

func TestSimplifyControlFlowIdenticalArms(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	arm := func() *ir.Expr { return b.LocalGet(1, wasm.TypeI32) }
	ife := b.If(b.LocalGet(0, wasm.TypeI32), arm(), arm(), wasm.TypeI32)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32, wasm.TypeI32}, wasm.TypeI32, nil, ife)

	runPass(t, "simplify-control-flow", m)

	require.Equal(t, ir.KindBlock, fn.Body.Kind)
	require.Len(t, fn.Body.List, 2)
	assert.Equal(t, ir.KindDrop, fn.Body.List[0].Kind)
	assert.Equal(t, ir.KindLocalGet, fn.Body.List[1].Kind)
}

func TestSimplifyControlFlowKeepsEffectfulArms(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	arm := func() *ir.Expr { return b.Call("test", nil, wasm.TypeI32) }
	ife := b.If(b.LocalGet(0, wasm.TypeI32), arm(), arm(), wasm.TypeI32)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeI32, nil, ife)

	runPass(t, "simplify-control-flow", m)
	assert.Equal(t, ir.KindIf, fn.Body.Kind, "arms with side effects stay conditional")
}

func TestRemoveUnusedNames(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	unused := b.Block("$dead", []*ir.Expr{b.LocalSet(0, b.ConstI32(1))}, wasm.TypeNone)
	used := b.Block("$live", []*ir.Expr{b.Break("$live", b.LocalGet(0, wasm.TypeI32), nil)}, wasm.TypeNone)
	body := b.Block("", []*ir.Expr{unused, used}, wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone, []wasm.Type{wasm.TypeI32}, body)

	runPass(t, "remove-unused-names", m)

	assert.Equal(t, "", fn.Body.List[0].Name)
	assert.Equal(t, "$live", fn.Body.List[1].Name)
}

func TestCodePushingSinks(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	body := b.Block("", []*ir.Expr{
		b.LocalSet(1, b.LocalGet(0, wasm.TypeI32)),
		b.LocalSet(2, b.ConstI32(5)),
		b.LocalSet(3, b.ConstI32(6)),
		b.Drop(b.LocalGet(1, wasm.TypeI32)),
	}, wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone,
		[]wasm.Type{wasm.TypeI32, wasm.TypeI32, wasm.TypeI32}, body)

	runPass(t, "code-pushing", m)

	// The first set moved to just before its use.
	assert.Equal(t, uint32(2), fn.Body.List[0].Index)
	assert.Equal(t, uint32(3), fn.Body.List[1].Index)
	assert.Equal(t, uint32(1), fn.Body.List[2].Index)
	assert.Equal(t, ir.KindDrop, fn.Body.List[3].Kind)
}

func TestCodePushingBlockedByInterference(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// The set's value reads local 0; the statement in between writes
	// local 0, so the set cannot move past it.
	body := b.Block("", []*ir.Expr{
		b.LocalSet(1, b.LocalGet(0, wasm.TypeI32)),
		b.LocalSet(0, b.ConstI32(9)),
		b.Drop(b.LocalGet(1, wasm.TypeI32)),
	}, wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone,
		[]wasm.Type{wasm.TypeI32}, body)

	runPass(t, "code-pushing", m)
	assert.Equal(t, uint32(1), fn.Body.List[0].Index, "interfering write pins the set")
}

func TestLICMHoistsInvariant(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// loop { set 1 = (get 0 + 5); br_if loop (get 1) }
	set := b.LocalSet(1, b.Binary(ir.AddInt32, b.LocalGet(0, wasm.TypeI32), b.ConstI32(5), wasm.TypeI32))
	loop := b.Loop("$l", b.Block("", []*ir.Expr{
		set,
		b.Break("$l", b.LocalGet(1, wasm.TypeI32), nil),
	}, wasm.TypeNone), wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone, []wasm.Type{wasm.TypeI32}, loop)

	runPass(t, "licm", m)

	require.Equal(t, ir.KindBlock, fn.Body.Kind, "a wrapper block holds the hoisted set")
	require.Len(t, fn.Body.List, 2)
	assert.Equal(t, ir.KindLocalSet, fn.Body.List[0].Kind)
	assert.Equal(t, ir.KindLoop, fn.Body.List[1].Kind)
}

func TestLICMKeepsVariant(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// set 1 = (get 1 + 1) depends on itself: not invariant.
	set := b.LocalSet(1, b.Binary(ir.AddInt32, b.LocalGet(1, wasm.TypeI32), b.ConstI32(1), wasm.TypeI32))
	loop := b.Loop("$l", b.Block("", []*ir.Expr{
		set,
		b.Break("$l", b.LocalGet(1, wasm.TypeI32), nil),
	}, wasm.TypeNone), wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone, []wasm.Type{wasm.TypeI32}, loop)

	runPass(t, "licm", m)
	assert.Equal(t, ir.KindLoop, fn.Body.Kind, "self-dependent sets stay inside the loop")
}

func TestCoalesceLocalsMerges(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// Two locals with disjoint live ranges collapse into one.
	body := b.Block("", []*ir.Expr{
		b.LocalSet(0, b.ConstI32(1)),
		b.Drop(b.LocalGet(0, wasm.TypeI32)),
		b.LocalSet(1, b.ConstI32(2)),
		b.Drop(b.LocalGet(1, wasm.TypeI32)),
	}, wasm.TypeNone)
	fn := newFunc(m, nil, wasm.TypeNone, []wasm.Type{wasm.TypeI32, wasm.TypeI32}, body)

	runPass(t, "coalesce-locals", m)

	assert.Len(t, fn.Vars, 1)
	for _, c := range fn.Body.List {
		switch c.Kind {
		case ir.KindLocalSet:
			assert.Equal(t, uint32(0), c.Index)
		case ir.KindDrop:
			assert.Equal(t, uint32(0), c.Value.Index)
		}
	}
}

func TestCoalesceLocalsRespectsConflicts(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// Overlapping ranges cannot share a slot.
	body := b.Block("", []*ir.Expr{
		b.LocalSet(0, b.ConstI32(1)),
		b.LocalSet(1, b.ConstI32(2)),
		b.Drop(b.LocalGet(0, wasm.TypeI32)),
		b.Drop(b.LocalGet(1, wasm.TypeI32)),
	}, wasm.TypeNone)
	fn := newFunc(m, nil, wasm.TypeNone, []wasm.Type{wasm.TypeI32, wasm.TypeI32}, body)

	runPass(t, "coalesce-locals", m)
	assert.Len(t, fn.Vars, 2)
}

func TestCoalesceLocalsKeepsTypes(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// Disjoint ranges of different types stay separate.
	body := b.Block("", []*ir.Expr{
		b.LocalSet(0, b.ConstI32(1)),
		b.Drop(b.LocalGet(0, wasm.TypeI32)),
		b.LocalSet(1, b.ConstI64(2)),
		b.Drop(b.LocalGet(1, wasm.TypeI64)),
	}, wasm.TypeNone)
	fn := newFunc(m, nil, wasm.TypeNone, []wasm.Type{wasm.TypeI32, wasm.TypeI64}, body)

	runPass(t, "coalesce-locals", m)
	assert.Len(t, fn.Vars, 2)
}

func TestMemoryOptimizationDeadStore(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()
	m.Memory = &ir.Memory{Initial: 1}

	body := b.Block("", []*ir.Expr{
		b.Store(4, 0, 2, b.LocalGet(0, wasm.TypeI32), b.ConstI32(1)),
		b.Store(4, 0, 2, b.LocalGet(0, wasm.TypeI32), b.ConstI32(2)),
	}, wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone, nil, body)

	runPass(t, "memory-optimization", m)

	assert.Equal(t, ir.KindNop, fn.Body.List[0].Kind, "overwritten store is dead")
	assert.Equal(t, ir.KindStore, fn.Body.List[1].Kind)
}

func TestMemoryOptimizationKeepsObservedStore(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()
	m.Memory = &ir.Memory{Initial: 1}

	body := b.Block("", []*ir.Expr{
		b.Store(4, 0, 2, b.LocalGet(0, wasm.TypeI32), b.ConstI32(1)),
		b.Drop(b.Load(4, false, 0, 2, b.LocalGet(0, wasm.TypeI32), wasm.TypeI32)),
		b.Store(4, 0, 2, b.LocalGet(0, wasm.TypeI32), b.ConstI32(2)),
	}, wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone, nil, body)

	runPass(t, "memory-optimization", m)
	assert.Equal(t, ir.KindStore, fn.Body.List[0].Kind, "a load in between observes the store")
}

func TestMemoryOptimizationDifferentAddress(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()
	m.Memory = &ir.Memory{Initial: 1}

	body := b.Block("", []*ir.Expr{
		b.Store(4, 0, 2, b.LocalGet(0, wasm.TypeI32), b.ConstI32(1)),
		b.Store(4, 8, 2, b.LocalGet(0, wasm.TypeI32), b.ConstI32(2)),
	}, wasm.TypeNone)
	fn := newFunc(m, []wasm.Type{wasm.TypeI32}, wasm.TypeNone, nil, body)

	runPass(t, "memory-optimization", m)
	assert.Equal(t, ir.KindStore, fn.Body.List[0].Kind)
}
