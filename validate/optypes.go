package validate

import (
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

// Operator signatures, kept independent of the binary codec's tables
// so the two cross-check each other.

func unaryOperandType(op ir.UnaryOp) wasm.Type {
	switch {
	case op <= ir.EqZInt32:
		return wasm.TypeI32
	case op <= ir.EqZInt64:
		return wasm.TypeI64
	case op <= ir.SqrtFloat32:
		return wasm.TypeF32
	case op <= ir.SqrtFloat64:
		return wasm.TypeF64
	}

	switch op {
	case ir.ConvertSInt32ToFloat32, ir.ConvertUInt32ToFloat32,
		ir.ConvertSInt32ToFloat64, ir.ConvertUInt32ToFloat64,
		ir.ExtendSInt32, ir.ExtendUInt32,
		ir.ReinterpretInt32,
		ir.ExtendS8Int32, ir.ExtendS16Int32:
		return wasm.TypeI32
	case ir.ConvertSInt64ToFloat32, ir.ConvertUInt64ToFloat32,
		ir.ConvertSInt64ToFloat64, ir.ConvertUInt64ToFloat64,
		ir.WrapInt64, ir.ReinterpretInt64,
		ir.ExtendS8Int64, ir.ExtendS16Int64, ir.ExtendS32Int64:
		return wasm.TypeI64
	case ir.TruncSFloat32ToInt32, ir.TruncUFloat32ToInt32,
		ir.TruncSFloat32ToInt64, ir.TruncUFloat32ToInt64,
		ir.TruncSatSFloat32ToInt32, ir.TruncSatUFloat32ToInt32,
		ir.TruncSatSFloat32ToInt64, ir.TruncSatUFloat32ToInt64,
		ir.PromoteFloat32, ir.ReinterpretFloat32:
		return wasm.TypeF32
	case ir.TruncSFloat64ToInt32, ir.TruncUFloat64ToInt32,
		ir.TruncSFloat64ToInt64, ir.TruncUFloat64ToInt64,
		ir.TruncSatSFloat64ToInt32, ir.TruncSatUFloat64ToInt32,
		ir.TruncSatSFloat64ToInt64, ir.TruncSatUFloat64ToInt64,
		ir.DemoteFloat64, ir.ReinterpretFloat64:
		return wasm.TypeF64
	}
	return wasm.TypeNone
}

func unaryResultType(op ir.UnaryOp) wasm.Type {
	switch op {
	case ir.ClzInt32, ir.CtzInt32, ir.PopcntInt32, ir.EqZInt32, ir.EqZInt64,
		ir.WrapInt64, ir.ReinterpretFloat32,
		ir.TruncSFloat32ToInt32, ir.TruncUFloat32ToInt32,
		ir.TruncSFloat64ToInt32, ir.TruncUFloat64ToInt32,
		ir.TruncSatSFloat32ToInt32, ir.TruncSatUFloat32ToInt32,
		ir.TruncSatSFloat64ToInt32, ir.TruncSatUFloat64ToInt32,
		ir.ExtendS8Int32, ir.ExtendS16Int32:
		return wasm.TypeI32
	case ir.ClzInt64, ir.CtzInt64, ir.PopcntInt64,
		ir.ExtendSInt32, ir.ExtendUInt32, ir.ReinterpretFloat64,
		ir.TruncSFloat32ToInt64, ir.TruncUFloat32ToInt64,
		ir.TruncSFloat64ToInt64, ir.TruncUFloat64ToInt64,
		ir.TruncSatSFloat32ToInt64, ir.TruncSatUFloat32ToInt64,
		ir.TruncSatSFloat64ToInt64, ir.TruncSatUFloat64ToInt64,
		ir.ExtendS8Int64, ir.ExtendS16Int64, ir.ExtendS32Int64:
		return wasm.TypeI64
	case ir.NegFloat32, ir.AbsFloat32, ir.CeilFloat32, ir.FloorFloat32,
		ir.TruncFloat32, ir.NearestFloat32, ir.SqrtFloat32,
		ir.ConvertSInt32ToFloat32, ir.ConvertUInt32ToFloat32,
		ir.ConvertSInt64ToFloat32, ir.ConvertUInt64ToFloat32,
		ir.DemoteFloat64, ir.ReinterpretInt32:
		return wasm.TypeF32
	case ir.NegFloat64, ir.AbsFloat64, ir.CeilFloat64, ir.FloorFloat64,
		ir.TruncFloat64, ir.NearestFloat64, ir.SqrtFloat64,
		ir.ConvertSInt32ToFloat64, ir.ConvertUInt32ToFloat64,
		ir.ConvertSInt64ToFloat64, ir.ConvertUInt64ToFloat64,
		ir.PromoteFloat32, ir.ReinterpretInt64:
		return wasm.TypeF64
	}
	return wasm.TypeNone
}

func binaryOperandType(op ir.BinaryOp) wasm.Type {
	switch {
	case op <= ir.GeUInt32:
		return wasm.TypeI32
	case op <= ir.GeUInt64:
		return wasm.TypeI64
	case op <= ir.GeFloat32:
		return wasm.TypeF32
	default:
		return wasm.TypeF64
	}
}

func binaryResultType(op ir.BinaryOp) wasm.Type {
	if op.IsRelational() {
		return wasm.TypeI32
	}
	return binaryOperandType(op)
}
