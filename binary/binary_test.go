package binary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// The classic two-parameter add function:
//
//	(func (param i32 i32) (result i32)
//	  (i32.add (local.get 0) (local.get 1)))
var addModule = append(append([]byte{}, header...),
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, // type
	0x03, 0x02, 0x01, 0x00, // function
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b, // code
)

func TestReadMinimalModule(t *testing.T) {
	m, err := ReadModule(header)
	require.NoError(t, err)
	assert.Empty(t, m.Functions)

	out, err := WriteModule(m)
	require.NoError(t, err)
	assert.Equal(t, header, out)
}

func TestReadBadMagic(t *testing.T) {
	bad := append([]byte{0x00, 0x61, 0x73, 0x6e}, header[4:]...)
	_, err := ReadModule(bad)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestReadBadVersion(t *testing.T) {
	bad := append(append([]byte{}, header[:4]...), 0x00, 0x00, 0x00, 0x00)
	_, err := ReadModule(bad)
	assert.ErrorIs(t, err, ErrBadVersion)

	bad = append(append([]byte{}, header[:4]...), 0x02, 0x00, 0x00, 0x00)
	_, err = ReadModule(bad)
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestReadTruncated(t *testing.T) {
	_, err := ReadModule(header[:5])
	assert.ErrorIs(t, err, ErrTruncated)

	// Section with a declared size past the end of input.
	short := append(append([]byte{}, header...), 0x01, 0x7f)
	_, err = ReadModule(short)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReadSectionOutOfOrder(t *testing.T) {
	// A table section after a memory section.
	bad := append(append([]byte{}, header...),
		0x05, 0x03, 0x01, 0x00, 0x00,
		0x04, 0x04, 0x01, 0x70, 0x00, 0x00,
	)
	_, err := ReadModule(bad)
	var orderErr SectionOrderError
	assert.ErrorAs(t, err, &orderErr)
}

func TestReadAddFunction(t *testing.T) {
	m, err := ReadModule(addModule)
	require.NoError(t, err)
	require.Len(t, m.Functions, 1)

	fn := m.Functions[0]
	assert.Equal(t, 2, fn.NumParams())
	assert.Equal(t, wasm.TypeI32, fn.ResultType())

	body := fn.Body
	require.NotNil(t, body)
	require.Equal(t, ir.KindBinary, body.Kind)
	assert.Equal(t, ir.AddInt32, body.Binop)
	assert.Equal(t, ir.KindLocalGet, body.Left.Kind)
	assert.Equal(t, uint32(0), body.Left.Index)
	assert.Equal(t, ir.KindLocalGet, body.Right.Kind)
	assert.Equal(t, uint32(1), body.Right.Index)
}

func TestWriterDeterminism(t *testing.T) {
	m, err := ReadModule(addModule)
	require.NoError(t, err)

	a, err := WriteModule(m)
	require.NoError(t, err)
	b, err := WriteModule(m)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestReadWriteReadStability(t *testing.T) {
	m1, err := ReadModule(addModule)
	require.NoError(t, err)

	b1, err := WriteModule(m1)
	require.NoError(t, err)

	m2, err := ReadModule(b1)
	require.NoError(t, err)

	b2, err := WriteModule(m2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	require.Len(t, m2.Functions, 1)
	assert.True(t, ir.StructurallyEqual(m1.Functions[0].Body, m2.Functions[0].Body))
}

func TestReadControlFlow(t *testing.T) {
	// (func (param i32) (result i32)
	//   (block (result i32)
	//     (if (result i32) (local.get 0)
	//       (then (i32.const 1))
	//       (else (i32.const 2)))))
	mod := append(append([]byte{}, header...),
		0x01, 0x06, 0x01, 0x60, 0x01, 0x7f, 0x01, 0x7f,
		0x03, 0x02, 0x01, 0x00,
		0x0a, 0x11, 0x01, 0x0f, 0x00,
		0x02, 0x7f, // block (result i32)
		0x20, 0x00, // local.get 0
		0x04, 0x7f, // if (result i32)
		0x41, 0x01, // i32.const 1
		0x05,       // else
		0x41, 0x02, // i32.const 2
		0x0b, // end if
		0x0b, // end block
		0x0b, // end body
	)

	m, err := ReadModule(mod)
	require.NoError(t, err)
	require.Len(t, m.Functions, 1)

	body := m.Functions[0].Body
	require.Equal(t, ir.KindBlock, body.Kind)
	require.Len(t, body.List, 1)

	ife := body.List[0]
	require.Equal(t, ir.KindIf, ife.Kind)
	assert.Equal(t, wasm.TypeI32, ife.Type)
	assert.Equal(t, int32(1), ife.IfTrue.Lit.I32())
	assert.Equal(t, int32(2), ife.IfFalse.Lit.I32())
}

func TestReadLoopWithBranch(t *testing.T) {
	// (func (param i32)
	//   (loop $l (br_if $l (local.get 0))))
	mod := append(append([]byte{}, header...),
		0x01, 0x05, 0x01, 0x60, 0x01, 0x7f, 0x00,
		0x03, 0x02, 0x01, 0x00,
		0x0a, 0x0b, 0x01, 0x09, 0x00,
		0x03, 0x40, // loop (no result)
		0x20, 0x00, // local.get 0
		0x0d, 0x00, // br_if 0
		0x0b, // end loop
		0x0b, // end body
	)

	m, err := ReadModule(mod)
	require.NoError(t, err)

	body := m.Functions[0].Body
	require.Equal(t, ir.KindLoop, body.Kind)

	br := body.Body
	require.Equal(t, ir.KindBreak, br.Kind)
	assert.Equal(t, body.Name, br.Target)
	assert.NotNil(t, br.Cond)
}

func TestUnknownOpcode(t *testing.T) {
	mod := append(append([]byte{}, header...),
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
		0x03, 0x02, 0x01, 0x00,
		0x0a, 0x05, 0x01, 0x03, 0x00,
		0xfe, // no such opcode
		0x0b,
	)
	_, err := ReadModule(mod)
	var opErr UnknownOpcodeError
	assert.ErrorAs(t, err, &opErr)
}

func TestCustomSectionRoundTrip(t *testing.T) {
	m := ir.NewModule()
	m.Customs = append(m.Customs, ir.CustomSection{Name: "producers", Data: []byte{1, 2, 3}})

	out, err := WriteModule(m)
	require.NoError(t, err)

	m2, err := ReadModule(out)
	require.NoError(t, err)
	require.Len(t, m2.Customs, 1)
	assert.Equal(t, "producers", m2.Customs[0].Name)
	assert.Equal(t, []byte{1, 2, 3}, m2.Customs[0].Data)
}

func TestWriteModuleWithEverything(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	sig := wasm.InternSignature(wasm.TypeI32, wasm.TypeI32)
	m.AddFunction(&ir.Function{
		Name:         "imported",
		Sig:          sig,
		Imported:     true,
		ImportModule: "env",
		ImportField:  "host",
	})

	fn := &ir.Function{
		Name: "run",
		Sig:  sig,
		Body: b.Call("imported", []*ir.Expr{b.LocalGet(0, wasm.TypeI32)}, wasm.TypeI32),
	}
	m.AddFunction(fn)

	m.Memory = &ir.Memory{Initial: 1, Maximum: 2, HasMax: true}
	m.Table = &ir.Table{ElemType: wasm.TypeFuncref, Initial: 1, HasMax: false}
	m.Globals = append(m.Globals, &ir.Global{
		Name: "g0", Type: wasm.TypeI32, Mutable: true, Init: b.ConstI32(7),
	})
	m.Exports = append(m.Exports, ir.Export{Name: "run", Kind: wasm.ExternalFunction, Index: 1})
	m.Elements = append(m.Elements, ir.ElementSegment{Offset: b.ConstI32(0), Funcs: []uint32{1}})
	m.Data = append(m.Data, ir.DataSegment{Offset: b.ConstI32(8), Data: []byte("hi")})

	out, err := WriteModule(m)
	require.NoError(t, err)

	m2, err := ReadModule(out)
	require.NoError(t, err)

	require.Len(t, m2.Functions, 2)
	assert.True(t, m2.Functions[0].Imported)
	assert.Equal(t, "env", m2.Functions[0].ImportModule)
	require.NotNil(t, m2.Memory)
	assert.Equal(t, uint32(1), m2.Memory.Initial)
	require.Len(t, m2.Globals, 1)
	require.Len(t, m2.Elements, 1)
	require.Len(t, m2.Data, 1)

	// Stable under another round trip.
	out2, err := WriteModule(m2)
	require.NoError(t, err)
	assert.Equal(t, out, out2)
}

func TestNameSectionRoundTrip(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	sig := wasm.InternSignature(wasm.TypeNone, wasm.TypeNone)
	m.AddFunction(&ir.Function{Name: "tick", Sig: sig, Body: b.Nop()})
	m.Name = "clock"
	m.EmitNames = true

	out, err := WriteModule(m)
	require.NoError(t, err)

	m2, err := ReadModule(out)
	require.NoError(t, err)
	assert.Equal(t, "clock", m2.Name)
	require.Len(t, m2.Functions, 1)
	assert.Equal(t, "tick", m2.Functions[0].Name)
}

func TestTypeSectionDeduplication(t *testing.T) {
	m := ir.NewModule()
	b := m.Builder()

	sig := wasm.InternSignature(wasm.TypeNone, wasm.TypeI32)
	m.AddFunction(&ir.Function{Name: "a", Sig: sig, Body: b.ConstI32(1)})
	m.AddFunction(&ir.Function{Name: "b", Sig: sig, Body: b.ConstI32(2)})

	out, err := WriteModule(m)
	require.NoError(t, err)

	m2, err := ReadModule(out)
	require.NoError(t, err)
	assert.Equal(t, m2.Functions[0].Sig, m2.Functions[1].Sig)

	// The type section holds a single entry: id 0x01, payload size,
	// count 1.
	idx := 8
	require.Equal(t, byte(0x01), out[idx])
	assert.Equal(t, byte(0x01), out[idx+2], "type section should hold one deduplicated entry")
}
