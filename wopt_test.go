package wopt_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	wopt "github.com/woptproject/wopt"
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

// buildIdentityModule constructs the Scenario B shape: a two-argument
// function burdened with arithmetic identities and dead bookkeeping.
//
//	(func (param i32 i32) (result i32)
//	  (local.set 2 (i32.add (local.get 0) (i32.const 0)))
//	  (local.set 3 (i32.mul (local.get 1) (i32.const 1)))
//	  (i32.add (local.get 2) (local.get 3)))
func buildIdentityModule(t *testing.T) *ir.Module {
	t.Helper()

	m := wopt.NewModule()
	b := m.Builder()

	sig := wasm.InternSignature(
		wasm.InternTuple([]wasm.Type{wasm.TypeI32, wasm.TypeI32}),
		wasm.TypeI32)

	body := b.Block("", []*ir.Expr{
		b.LocalSet(2, b.Binary(ir.AddInt32, b.LocalGet(0, wasm.TypeI32), b.ConstI32(0), wasm.TypeI32)),
		b.LocalSet(3, b.Binary(ir.MulInt32, b.LocalGet(1, wasm.TypeI32), b.ConstI32(1), wasm.TypeI32)),
		b.Binary(ir.AddInt32, b.LocalGet(2, wasm.TypeI32), b.LocalGet(3, wasm.TypeI32), wasm.TypeI32),
	}, wasm.TypeI32)

	m.AddFunction(&ir.Function{
		Name: "sum",
		Sig:  sig,
		Vars: []wasm.Type{wasm.TypeI32, wasm.TypeI32},
		Body: body,
	})
	m.Exports = append(m.Exports, ir.Export{Name: "sum", Kind: wasm.ExternalFunction, Index: 0})
	return m
}

func execSum(t *testing.T, module []byte, a, b uint64) uint64 {
	t.Helper()
	ctx := context.Background()

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	inst, err := rt.Instantiate(ctx, module)
	require.NoError(t, err, "the emitted binary must instantiate in a conformant runtime")
	defer inst.Close(ctx)

	results, err := inst.ExportedFunction("sum").Call(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func TestOptimizePreservesBehavior(t *testing.T) {
	m := buildIdentityModule(t)
	require.NoError(t, wopt.Validate(m))

	before, err := wopt.WriteModule(m)
	require.NoError(t, err)

	require.NoError(t, wopt.Optimize(m, "O2"))
	require.NoError(t, wopt.Validate(m))

	after, err := wopt.WriteModule(m)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(after), len(before), "optimization must not grow the module")

	cases := [][2]uint64{{0, 0}, {1, 2}, {41, 1}, {0xffffffff, 1}, {123456, 654321}}
	for _, c := range cases {
		want := execSum(t, before, c[0], c[1])
		got := execSum(t, after, c[0], c[1])
		assert.Equal(t, want, got, "inputs %v", c)
	}
}

func TestOptimizeRemovesIdentities(t *testing.T) {
	m := buildIdentityModule(t)
	require.NoError(t, wopt.RunPasses(m, "simplify-identity"))

	// No (x+0) or (x*1) remains anywhere.
	found := false
	check := ir.VisitorFunc(func(slot **ir.Expr) ir.Action {
		e := *slot
		if e.Kind == ir.KindBinary &&
			((e.Binop == ir.AddInt32 && e.Right.IsConstOf(0)) ||
				(e.Binop == ir.MulInt32 && e.Right.IsConstOf(1))) {
			found = true
		}
		return ir.Continue
	})
	ir.WalkModule(m, check)
	assert.False(t, found)
}

func TestRoundTripThroughRuntime(t *testing.T) {
	m := buildIdentityModule(t)

	out, err := wopt.WriteModule(m)
	require.NoError(t, err)

	// Unoptimized output is already executable and correct.
	assert.Equal(t, uint64(7), execSum(t, out, 3, 4))

	// Read-write-read stability.
	m2, err := wopt.ReadModule(out)
	require.NoError(t, err)
	out2, err := wopt.WriteModule(m2)
	require.NoError(t, err)

	m3, err := wopt.ReadModule(out2)
	require.NoError(t, err)
	require.NoError(t, wopt.Validate(m3))
	out3, err := wopt.WriteModule(m3)
	require.NoError(t, err)
	assert.Equal(t, out2, out3)
}

func TestOptimizedLevelsExecuteIdentically(t *testing.T) {
	for _, level := range []string{"O0", "O1", "O2", "O3", "O4", "Os", "Oz"} {
		m := buildIdentityModule(t)
		require.NoError(t, wopt.Optimize(m, level), level)
		require.NoError(t, wopt.Validate(m), level)

		out, err := wopt.WriteModule(m)
		require.NoError(t, err, level)
		assert.Equal(t, uint64(100), execSum(t, out, 58, 42), level)
	}
}

func TestDisposeInvalidatesModule(t *testing.T) {
	m := buildIdentityModule(t)
	m.Dispose()

	assert.True(t, m.Disposed())
	assert.Nil(t, m.GetFunction("sum"))
	assert.Panics(t, func() { m.Arena().Alloc() })
}
