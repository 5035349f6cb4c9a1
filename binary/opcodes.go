package binary

import (
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

// Opcode assignments from the WebAssembly core specification. The
// reader and writer share these tables; they must stay in sync with
// the operator ordinals in the ir package.
const (
	opUnreachable  = 0x00
	opNop          = 0x01
	opBlock        = 0x02
	opLoop         = 0x03
	opIf           = 0x04
	opElse         = 0x05
	opEnd          = 0x0b
	opBr           = 0x0c
	opBrIf         = 0x0d
	opBrTable      = 0x0e
	opReturn       = 0x0f
	opCall         = 0x10
	opCallIndirect = 0x11

	opDrop        = 0x1a
	opSelect      = 0x1b
	opSelectTyped = 0x1c

	opLocalGet  = 0x20
	opLocalSet  = 0x21
	opLocalTee  = 0x22
	opGlobalGet = 0x23
	opGlobalSet = 0x24

	opI32Load    = 0x28
	opI64Load    = 0x29
	opF32Load    = 0x2a
	opF64Load    = 0x2b
	opI32Load8S  = 0x2c
	opI32Load8U  = 0x2d
	opI32Load16S = 0x2e
	opI32Load16U = 0x2f
	opI64Load8S  = 0x30
	opI64Load8U  = 0x31
	opI64Load16S = 0x32
	opI64Load16U = 0x33
	opI64Load32S = 0x34
	opI64Load32U = 0x35
	opI32Store   = 0x36
	opI64Store   = 0x37
	opF32Store   = 0x38
	opF64Store   = 0x39
	opI32Store8  = 0x3a
	opI32Store16 = 0x3b
	opI64Store8  = 0x3c
	opI64Store16 = 0x3d
	opI64Store32 = 0x3e
	opMemorySize = 0x3f
	opMemoryGrow = 0x40

	opI32Const = 0x41
	opI64Const = 0x42
	opF32Const = 0x43
	opF64Const = 0x44

	opPrefix = 0xfc

	// 0xfc sub-opcodes.
	opI32TruncSatF32S = 0
	opI32TruncSatF32U = 1
	opI32TruncSatF64S = 2
	opI32TruncSatF64U = 3
	opI64TruncSatF32S = 4
	opI64TruncSatF32U = 5
	opI64TruncSatF64S = 6
	opI64TruncSatF64U = 7
	opMemoryCopy      = 10
	opMemoryFill      = 11
)

// unaryByOpcode maps a single-byte opcode to its IR operator and
// result type.
var unaryByOpcode = map[byte]struct {
	op     ir.UnaryOp
	result wasm.Type
}{
	0x45: {ir.EqZInt32, wasm.TypeI32},
	0x50: {ir.EqZInt64, wasm.TypeI32},

	0x67: {ir.ClzInt32, wasm.TypeI32},
	0x68: {ir.CtzInt32, wasm.TypeI32},
	0x69: {ir.PopcntInt32, wasm.TypeI32},
	0x79: {ir.ClzInt64, wasm.TypeI64},
	0x7a: {ir.CtzInt64, wasm.TypeI64},
	0x7b: {ir.PopcntInt64, wasm.TypeI64},

	0x8b: {ir.AbsFloat32, wasm.TypeF32},
	0x8c: {ir.NegFloat32, wasm.TypeF32},
	0x8d: {ir.CeilFloat32, wasm.TypeF32},
	0x8e: {ir.FloorFloat32, wasm.TypeF32},
	0x8f: {ir.TruncFloat32, wasm.TypeF32},
	0x90: {ir.NearestFloat32, wasm.TypeF32},
	0x91: {ir.SqrtFloat32, wasm.TypeF32},

	0x99: {ir.AbsFloat64, wasm.TypeF64},
	0x9a: {ir.NegFloat64, wasm.TypeF64},
	0x9b: {ir.CeilFloat64, wasm.TypeF64},
	0x9c: {ir.FloorFloat64, wasm.TypeF64},
	0x9d: {ir.TruncFloat64, wasm.TypeF64},
	0x9e: {ir.NearestFloat64, wasm.TypeF64},
	0x9f: {ir.SqrtFloat64, wasm.TypeF64},

	0xa7: {ir.WrapInt64, wasm.TypeI32},
	0xa8: {ir.TruncSFloat32ToInt32, wasm.TypeI32},
	0xa9: {ir.TruncUFloat32ToInt32, wasm.TypeI32},
	0xaa: {ir.TruncSFloat64ToInt32, wasm.TypeI32},
	0xab: {ir.TruncUFloat64ToInt32, wasm.TypeI32},
	0xac: {ir.ExtendSInt32, wasm.TypeI64},
	0xad: {ir.ExtendUInt32, wasm.TypeI64},
	0xae: {ir.TruncSFloat32ToInt64, wasm.TypeI64},
	0xaf: {ir.TruncUFloat32ToInt64, wasm.TypeI64},
	0xb0: {ir.TruncSFloat64ToInt64, wasm.TypeI64},
	0xb1: {ir.TruncUFloat64ToInt64, wasm.TypeI64},
	0xb2: {ir.ConvertSInt32ToFloat32, wasm.TypeF32},
	0xb3: {ir.ConvertUInt32ToFloat32, wasm.TypeF32},
	0xb4: {ir.ConvertSInt64ToFloat32, wasm.TypeF32},
	0xb5: {ir.ConvertUInt64ToFloat32, wasm.TypeF32},
	0xb6: {ir.DemoteFloat64, wasm.TypeF32},
	0xb7: {ir.ConvertSInt32ToFloat64, wasm.TypeF64},
	0xb8: {ir.ConvertUInt32ToFloat64, wasm.TypeF64},
	0xb9: {ir.ConvertSInt64ToFloat64, wasm.TypeF64},
	0xba: {ir.ConvertUInt64ToFloat64, wasm.TypeF64},
	0xbb: {ir.PromoteFloat32, wasm.TypeF64},
	0xbc: {ir.ReinterpretFloat32, wasm.TypeI32},
	0xbd: {ir.ReinterpretFloat64, wasm.TypeI64},
	0xbe: {ir.ReinterpretInt32, wasm.TypeF32},
	0xbf: {ir.ReinterpretInt64, wasm.TypeF64},

	0xc0: {ir.ExtendS8Int32, wasm.TypeI32},
	0xc1: {ir.ExtendS16Int32, wasm.TypeI32},
	0xc2: {ir.ExtendS8Int64, wasm.TypeI64},
	0xc3: {ir.ExtendS16Int64, wasm.TypeI64},
	0xc4: {ir.ExtendS32Int64, wasm.TypeI64},
}

// truncSatByOpcode maps 0xfc sub-opcodes 0..7.
var truncSatByOpcode = map[uint32]struct {
	op     ir.UnaryOp
	result wasm.Type
}{
	opI32TruncSatF32S: {ir.TruncSatSFloat32ToInt32, wasm.TypeI32},
	opI32TruncSatF32U: {ir.TruncSatUFloat32ToInt32, wasm.TypeI32},
	opI32TruncSatF64S: {ir.TruncSatSFloat64ToInt32, wasm.TypeI32},
	opI32TruncSatF64U: {ir.TruncSatUFloat64ToInt32, wasm.TypeI32},
	opI64TruncSatF32S: {ir.TruncSatSFloat32ToInt64, wasm.TypeI64},
	opI64TruncSatF32U: {ir.TruncSatUFloat32ToInt64, wasm.TypeI64},
	opI64TruncSatF64S: {ir.TruncSatSFloat64ToInt64, wasm.TypeI64},
	opI64TruncSatF64U: {ir.TruncSatUFloat64ToInt64, wasm.TypeI64},
}

var binaryByOpcode = map[byte]struct {
	op     ir.BinaryOp
	result wasm.Type
}{
	0x46: {ir.EqInt32, wasm.TypeI32},
	0x47: {ir.NeInt32, wasm.TypeI32},
	0x48: {ir.LtSInt32, wasm.TypeI32},
	0x49: {ir.LtUInt32, wasm.TypeI32},
	0x4a: {ir.GtSInt32, wasm.TypeI32},
	0x4b: {ir.GtUInt32, wasm.TypeI32},
	0x4c: {ir.LeSInt32, wasm.TypeI32},
	0x4d: {ir.LeUInt32, wasm.TypeI32},
	0x4e: {ir.GeSInt32, wasm.TypeI32},
	0x4f: {ir.GeUInt32, wasm.TypeI32},

	0x51: {ir.EqInt64, wasm.TypeI32},
	0x52: {ir.NeInt64, wasm.TypeI32},
	0x53: {ir.LtSInt64, wasm.TypeI32},
	0x54: {ir.LtUInt64, wasm.TypeI32},
	0x55: {ir.GtSInt64, wasm.TypeI32},
	0x56: {ir.GtUInt64, wasm.TypeI32},
	0x57: {ir.LeSInt64, wasm.TypeI32},
	0x58: {ir.LeUInt64, wasm.TypeI32},
	0x59: {ir.GeSInt64, wasm.TypeI32},
	0x5a: {ir.GeUInt64, wasm.TypeI32},

	0x5b: {ir.EqFloat32, wasm.TypeI32},
	0x5c: {ir.NeFloat32, wasm.TypeI32},
	0x5d: {ir.LtFloat32, wasm.TypeI32},
	0x5e: {ir.GtFloat32, wasm.TypeI32},
	0x5f: {ir.LeFloat32, wasm.TypeI32},
	0x60: {ir.GeFloat32, wasm.TypeI32},

	0x61: {ir.EqFloat64, wasm.TypeI32},
	0x62: {ir.NeFloat64, wasm.TypeI32},
	0x63: {ir.LtFloat64, wasm.TypeI32},
	0x64: {ir.GtFloat64, wasm.TypeI32},
	0x65: {ir.LeFloat64, wasm.TypeI32},
	0x66: {ir.GeFloat64, wasm.TypeI32},

	0x6a: {ir.AddInt32, wasm.TypeI32},
	0x6b: {ir.SubInt32, wasm.TypeI32},
	0x6c: {ir.MulInt32, wasm.TypeI32},
	0x6d: {ir.DivSInt32, wasm.TypeI32},
	0x6e: {ir.DivUInt32, wasm.TypeI32},
	0x6f: {ir.RemSInt32, wasm.TypeI32},
	0x70: {ir.RemUInt32, wasm.TypeI32},
	0x71: {ir.AndInt32, wasm.TypeI32},
	0x72: {ir.OrInt32, wasm.TypeI32},
	0x73: {ir.XorInt32, wasm.TypeI32},
	0x74: {ir.ShlInt32, wasm.TypeI32},
	0x75: {ir.ShrSInt32, wasm.TypeI32},
	0x76: {ir.ShrUInt32, wasm.TypeI32},
	0x77: {ir.RotLInt32, wasm.TypeI32},
	0x78: {ir.RotRInt32, wasm.TypeI32},

	0x7c: {ir.AddInt64, wasm.TypeI64},
	0x7d: {ir.SubInt64, wasm.TypeI64},
	0x7e: {ir.MulInt64, wasm.TypeI64},
	0x7f: {ir.DivSInt64, wasm.TypeI64},
	0x80: {ir.DivUInt64, wasm.TypeI64},
	0x81: {ir.RemSInt64, wasm.TypeI64},
	0x82: {ir.RemUInt64, wasm.TypeI64},
	0x83: {ir.AndInt64, wasm.TypeI64},
	0x84: {ir.OrInt64, wasm.TypeI64},
	0x85: {ir.XorInt64, wasm.TypeI64},
	0x86: {ir.ShlInt64, wasm.TypeI64},
	0x87: {ir.ShrSInt64, wasm.TypeI64},
	0x88: {ir.ShrUInt64, wasm.TypeI64},
	0x89: {ir.RotLInt64, wasm.TypeI64},
	0x8a: {ir.RotRInt64, wasm.TypeI64},

	0x92: {ir.AddFloat32, wasm.TypeF32},
	0x93: {ir.SubFloat32, wasm.TypeF32},
	0x94: {ir.MulFloat32, wasm.TypeF32},
	0x95: {ir.DivFloat32, wasm.TypeF32},
	0x96: {ir.MinFloat32, wasm.TypeF32},
	0x97: {ir.MaxFloat32, wasm.TypeF32},
	0x98: {ir.CopySignFloat32, wasm.TypeF32},

	0xa0: {ir.AddFloat64, wasm.TypeF64},
	0xa1: {ir.SubFloat64, wasm.TypeF64},
	0xa2: {ir.MulFloat64, wasm.TypeF64},
	0xa3: {ir.DivFloat64, wasm.TypeF64},
	0xa4: {ir.MinFloat64, wasm.TypeF64},
	0xa5: {ir.MaxFloat64, wasm.TypeF64},
	0xa6: {ir.CopySignFloat64, wasm.TypeF64},
}

var opcodeByUnary map[ir.UnaryOp]byte
var truncSatByUnary map[ir.UnaryOp]uint32
var opcodeByBinary map[ir.BinaryOp]byte

func init() {
	opcodeByUnary = make(map[ir.UnaryOp]byte, len(unaryByOpcode))
	for oc, info := range unaryByOpcode {
		opcodeByUnary[info.op] = oc
	}
	truncSatByUnary = make(map[ir.UnaryOp]uint32, len(truncSatByOpcode))
	for sub, info := range truncSatByOpcode {
		truncSatByUnary[info.op] = sub
	}
	opcodeByBinary = make(map[ir.BinaryOp]byte, len(binaryByOpcode))
	for oc, info := range binaryByOpcode {
		opcodeByBinary[info.op] = oc
	}
}

type memAccess struct {
	bytes  uint8
	signed bool
	typ    wasm.Type
}

var loadByOpcode = map[byte]memAccess{
	opI32Load:    {4, false, wasm.TypeI32},
	opI64Load:    {8, false, wasm.TypeI64},
	opF32Load:    {4, false, wasm.TypeF32},
	opF64Load:    {8, false, wasm.TypeF64},
	opI32Load8S:  {1, true, wasm.TypeI32},
	opI32Load8U:  {1, false, wasm.TypeI32},
	opI32Load16S: {2, true, wasm.TypeI32},
	opI32Load16U: {2, false, wasm.TypeI32},
	opI64Load8S:  {1, true, wasm.TypeI64},
	opI64Load8U:  {1, false, wasm.TypeI64},
	opI64Load16S: {2, true, wasm.TypeI64},
	opI64Load16U: {2, false, wasm.TypeI64},
	opI64Load32S: {4, true, wasm.TypeI64},
	opI64Load32U: {4, false, wasm.TypeI64},
}

var storeByOpcode = map[byte]memAccess{
	opI32Store:   {4, false, wasm.TypeI32},
	opI64Store:   {8, false, wasm.TypeI64},
	opF32Store:   {4, false, wasm.TypeF32},
	opF64Store:   {8, false, wasm.TypeF64},
	opI32Store8:  {1, false, wasm.TypeI32},
	opI32Store16: {2, false, wasm.TypeI32},
	opI64Store8:  {1, false, wasm.TypeI64},
	opI64Store16: {2, false, wasm.TypeI64},
	opI64Store32: {4, false, wasm.TypeI64},
}

func opcodeForLoad(e *ir.Expr) (byte, bool) {
	for oc, a := range loadByOpcode {
		if a.bytes == e.Bytes && a.signed == e.Signed && a.typ == e.Type {
			return oc, true
		}
	}
	return 0, false
}

func opcodeForStore(e *ir.Expr) (byte, bool) {
	valueType := e.Value.Type
	if valueType == wasm.TypeUnreachable {
		// Pick by width alone; the stored type is gone.
		valueType = wasm.TypeI32
		if e.Bytes == 8 {
			valueType = wasm.TypeI64
		}
	}
	for oc, a := range storeByOpcode {
		if a.bytes == e.Bytes && a.typ == valueType {
			return oc, true
		}
	}
	return 0, false
}
