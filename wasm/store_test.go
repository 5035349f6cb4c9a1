package wasm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternSignatureIdempotent(t *testing.T) {
	a := InternSignature(TypeI32, TypeI64)
	b := InternSignature(TypeI32, TypeI64)
	c := InternSignature(TypeI64, TypeI32)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLookupSignature(t *testing.T) {
	h := InternSignature(TypeI32, TypeF64)
	sig, ok := LookupSignature(h)
	require.True(t, ok)
	assert.Equal(t, TypeI32, sig.Params)
	assert.Equal(t, TypeF64, sig.Results)
}

func TestBasicTypeQueries(t *testing.T) {
	for _, ty := range []Type{TypeNone, TypeI32, TypeI64, TypeF32, TypeF64, TypeV128} {
		assert.Equal(t, TypeNone, Params(ty), "params of %v", ty)
		assert.Equal(t, TypeNone, Results(ty), "results of %v", ty)

		_, ok := LookupSignature(ty)
		assert.False(t, ok, "basic types are not signatures")
	}
}

func TestInternTuple(t *testing.T) {
	assert.Equal(t, TypeNone, InternTuple(nil))
	assert.Equal(t, TypeI32, InternTuple([]Type{TypeI32}))

	pair := InternTuple([]Type{TypeI32, TypeI64})
	assert.Equal(t, pair, InternTuple([]Type{TypeI32, TypeI64}))
	assert.NotEqual(t, pair, InternTuple([]Type{TypeI64, TypeI32}))

	types, ok := LookupTuple(pair)
	require.True(t, ok)
	assert.Equal(t, []Type{TypeI32, TypeI64}, types)

	assert.Equal(t, 2, pair.Arity())
	assert.True(t, pair.IsTuple())
	assert.False(t, pair.IsSignature())
}

func TestInternSignatureConcurrent(t *testing.T) {
	const n = 32

	var wg sync.WaitGroup
	handles := make([]Type, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = InternSignature(TypeF32, TypeF32)
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, handles[0], handles[i])
	}
}

func TestExpand(t *testing.T) {
	assert.Nil(t, TypeNone.Expand())
	assert.Equal(t, []Type{TypeI32}, TypeI32.Expand())

	pair := InternTuple([]Type{TypeF32, TypeF64})
	assert.Equal(t, []Type{TypeF32, TypeF64}, pair.Expand())
}
