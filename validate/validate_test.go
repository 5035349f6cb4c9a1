package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

func addFunc(t *testing.T) (*ir.Module, *ir.Function) {
	t.Helper()
	m := ir.NewModule()
	b := m.Builder()

	sig := wasm.InternSignature(
		wasm.InternTuple([]wasm.Type{wasm.TypeI32, wasm.TypeI32}),
		wasm.TypeI32)
	fn := &ir.Function{
		Name: "add",
		Sig:  sig,
		Body: b.Binary(ir.AddInt32,
			b.LocalGet(0, wasm.TypeI32),
			b.LocalGet(1, wasm.TypeI32),
			wasm.TypeI32),
	}
	m.AddFunction(fn)
	return m, fn
}

func TestValidModule(t *testing.T) {
	m, _ := addFunc(t)
	assert.NoError(t, ValidateModule(m))
}

func TestBodyResultMismatch(t *testing.T) {
	m, fn := addFunc(t)
	b := m.Builder()
	fn.Body = b.ConstI64(3)

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add")
}

func TestAnnotatedTypeMismatch(t *testing.T) {
	m, fn := addFunc(t)
	// Claim the add produces an i64.
	fn.Body.Type = wasm.TypeI64

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "i64")
}

func TestLocalIndexOutOfRange(t *testing.T) {
	m, fn := addFunc(t)
	fn.Body.Left.Index = 9

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestBranchTargetNotInScope(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	fn := &ir.Function{
		Name: "f",
		Sig:  wasm.InternSignature(wasm.TypeNone, wasm.TypeNone),
		Body: b.Block("$a", []*ir.Expr{b.Break("$missing", nil, nil)}, wasm.TypeUnreachable),
	}
	m.AddFunction(fn)

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$missing")
}

func TestBranchValueType(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// (block $a (result i32) (br $a (i64.const 1))) is ill-typed.
	br := b.Break("$a", nil, b.ConstI64(1))
	fn := &ir.Function{
		Name: "f",
		Sig:  wasm.InternSignature(wasm.TypeNone, wasm.TypeI32),
		Body: b.Block("$a", []*ir.Expr{br}, wasm.TypeI32),
	}
	m.AddFunction(fn)

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "label wants")
}

func TestCallArityMismatch(t *testing.T) {
	m, _ := addFunc(t)
	b := m.Builder()

	caller := &ir.Function{
		Name: "caller",
		Sig:  wasm.InternSignature(wasm.TypeNone, wasm.TypeI32),
		Body: b.Call("add", []*ir.Expr{b.ConstI32(1)}, wasm.TypeI32),
	}
	m.AddFunction(caller)

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument")
}

func TestErrorNamesPath(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// The broken node sits under a block and a drop.
	bad := b.Binary(ir.AddInt32, b.ConstI32(1), b.ConstI64(2), wasm.TypeI32)
	fn := &ir.Function{
		Name: "deep",
		Sig:  wasm.InternSignature(wasm.TypeNone, wasm.TypeNone),
		Body: b.Block("", []*ir.Expr{b.Drop(bad)}, wasm.TypeNone),
	}
	m.AddFunction(fn)

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deep")
	assert.True(t, strings.Contains(err.Error(), "block/drop/binary"), err.Error())
}

func TestImmutableGlobalSet(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	m.AddGlobal(&ir.Global{Name: "g", Type: wasm.TypeI32, Init: b.ConstI32(0)})
	fn := &ir.Function{
		Name: "f",
		Sig:  wasm.InternSignature(wasm.TypeNone, wasm.TypeNone),
		Body: b.GlobalSet(0, b.ConstI32(1)),
	}
	m.AddFunction(fn)

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")
}

func TestGlobalInitMustBeConstant(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	m.AddGlobal(&ir.Global{
		Name: "g", Type: wasm.TypeI32, Mutable: true,
		Init: b.Binary(ir.AddInt32, b.ConstI32(1), b.ConstI32(2), wasm.TypeI32),
	})

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constant expression")
}

func TestStoreAlignment(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()
	m.Memory = &ir.Memory{Initial: 1}

	// Alignment 2^3 on a 4-byte store is invalid.
	fn := &ir.Function{
		Name: "f",
		Sig:  wasm.InternSignature(wasm.TypeNone, wasm.TypeNone),
		Body: b.Store(4, 0, 3, b.ConstI32(0), b.ConstI32(1)),
	}
	m.AddFunction(fn)

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alignment")
}

func TestMemoryRequired(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	fn := &ir.Function{
		Name: "f",
		Sig:  wasm.InternSignature(wasm.TypeNone, wasm.TypeI32),
		Body: b.Load(4, false, 0, 2, b.ConstI32(0), wasm.TypeI32),
	}
	m.AddFunction(fn)

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory")
}

func TestDuplicateExport(t *testing.T) {
	m, _ := addFunc(t)
	m.Exports = append(m.Exports,
		ir.Export{Name: "x", Kind: wasm.ExternalFunction, Index: 0},
		ir.Export{Name: "x", Kind: wasm.ExternalFunction, Index: 0},
	)

	err := ValidateModule(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate export")
}

func TestUnreachableOperandTolerated(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	// (i32.add (unreachable) (i32.const 1)) is valid.
	fn := &ir.Function{
		Name: "f",
		Sig:  wasm.InternSignature(wasm.TypeNone, wasm.TypeI32),
		Body: b.Binary(ir.AddInt32, b.Unreachable(), b.ConstI32(1), wasm.TypeI32),
	}
	m.AddFunction(fn)

	assert.NoError(t, ValidateModule(m))
}
