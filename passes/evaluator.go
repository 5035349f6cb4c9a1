package passes

import (
	"math"
	"math/bits"

	"github.com/woptproject/wopt/ir"
)

// Compile-time evaluation of operators over constant operands. The
// semantics mirror the WebAssembly execution rules exactly: integer
// arithmetic wraps, shifts are taken modulo the bit width, and float
// results are canonicalized so no host NaN payload leaks into the
// output. Operations that would trap report !ok and are left alone.

const (
	canonNaN32 = 0x7fc00000
	canonNaN64 = 0x7ff8000000000000
)

func litF32(v float32) ir.Literal {
	if v != v {
		return ir.LiteralF32Bits(canonNaN32)
	}
	return ir.LiteralF32(v)
}

func litF64(v float64) ir.Literal {
	if v != v {
		return ir.LiteralF64Bits(canonNaN64)
	}
	return ir.LiteralF64(v)
}

func boolLit(b bool) ir.Literal {
	if b {
		return ir.LiteralI32(1)
	}
	return ir.LiteralI32(0)
}

func evalUnary(op ir.UnaryOp, v ir.Literal) (ir.Literal, bool) {
	switch op {
	case ir.ClzInt32:
		return ir.LiteralI32(int32(bits.LeadingZeros32(uint32(v.I32())))), true
	case ir.CtzInt32:
		return ir.LiteralI32(int32(bits.TrailingZeros32(uint32(v.I32())))), true
	case ir.PopcntInt32:
		return ir.LiteralI32(int32(bits.OnesCount32(uint32(v.I32())))), true
	case ir.EqZInt32:
		return boolLit(v.I32() == 0), true
	case ir.ClzInt64:
		return ir.LiteralI64(int64(bits.LeadingZeros64(uint64(v.I64())))), true
	case ir.CtzInt64:
		return ir.LiteralI64(int64(bits.TrailingZeros64(uint64(v.I64())))), true
	case ir.PopcntInt64:
		return ir.LiteralI64(int64(bits.OnesCount64(uint64(v.I64())))), true
	case ir.EqZInt64:
		return boolLit(v.I64() == 0), true

	case ir.NegFloat32:
		return ir.LiteralF32Bits(uint32(v.Bits) ^ 0x80000000), true
	case ir.AbsFloat32:
		return ir.LiteralF32Bits(uint32(v.Bits) &^ 0x80000000), true
	case ir.CeilFloat32:
		return litF32(float32(math.Ceil(float64(v.F32())))), true
	case ir.FloorFloat32:
		return litF32(float32(math.Floor(float64(v.F32())))), true
	case ir.TruncFloat32:
		return litF32(float32(math.Trunc(float64(v.F32())))), true
	case ir.NearestFloat32:
		return litF32(float32(math.RoundToEven(float64(v.F32())))), true
	case ir.SqrtFloat32:
		return litF32(float32(math.Sqrt(float64(v.F32())))), true

	case ir.NegFloat64:
		return ir.LiteralF64Bits(v.Bits ^ 0x8000000000000000), true
	case ir.AbsFloat64:
		return ir.LiteralF64Bits(v.Bits &^ 0x8000000000000000), true
	case ir.CeilFloat64:
		return litF64(math.Ceil(v.F64())), true
	case ir.FloorFloat64:
		return litF64(math.Floor(v.F64())), true
	case ir.TruncFloat64:
		return litF64(math.Trunc(v.F64())), true
	case ir.NearestFloat64:
		return litF64(math.RoundToEven(v.F64())), true
	case ir.SqrtFloat64:
		return litF64(math.Sqrt(v.F64())), true

	case ir.ConvertSInt32ToFloat32:
		return litF32(float32(v.I32())), true
	case ir.ConvertUInt32ToFloat32:
		return litF32(float32(uint32(v.I32()))), true
	case ir.ConvertSInt64ToFloat32:
		return litF32(float32(v.I64())), true
	case ir.ConvertUInt64ToFloat32:
		return litF32(float32(uint64(v.I64()))), true
	case ir.ConvertSInt32ToFloat64:
		return litF64(float64(v.I32())), true
	case ir.ConvertUInt32ToFloat64:
		return litF64(float64(uint32(v.I32()))), true
	case ir.ConvertSInt64ToFloat64:
		return litF64(float64(v.I64())), true
	case ir.ConvertUInt64ToFloat64:
		return litF64(float64(uint64(v.I64()))), true

	case ir.TruncSFloat32ToInt32:
		return truncSI32(float64(v.F32()))
	case ir.TruncUFloat32ToInt32:
		return truncUI32(float64(v.F32()))
	case ir.TruncSFloat64ToInt32:
		return truncSI32(v.F64())
	case ir.TruncUFloat64ToInt32:
		return truncUI32(v.F64())
	case ir.TruncSFloat32ToInt64:
		return truncSI64(float64(v.F32()))
	case ir.TruncUFloat32ToInt64:
		return truncUI64(float64(v.F32()))
	case ir.TruncSFloat64ToInt64:
		return truncSI64(v.F64())
	case ir.TruncUFloat64ToInt64:
		return truncUI64(v.F64())

	case ir.TruncSatSFloat32ToInt32:
		return satSI32(float64(v.F32())), true
	case ir.TruncSatUFloat32ToInt32:
		return satUI32(float64(v.F32())), true
	case ir.TruncSatSFloat64ToInt32:
		return satSI32(v.F64()), true
	case ir.TruncSatUFloat64ToInt32:
		return satUI32(v.F64()), true
	case ir.TruncSatSFloat32ToInt64:
		return satSI64(float64(v.F32())), true
	case ir.TruncSatUFloat32ToInt64:
		return satUI64(float64(v.F32())), true
	case ir.TruncSatSFloat64ToInt64:
		return satSI64(v.F64()), true
	case ir.TruncSatUFloat64ToInt64:
		return satUI64(v.F64()), true

	case ir.WrapInt64:
		return ir.LiteralI32(int32(v.I64())), true
	case ir.ExtendSInt32:
		return ir.LiteralI64(int64(v.I32())), true
	case ir.ExtendUInt32:
		return ir.LiteralI64(int64(uint32(v.I32()))), true

	case ir.PromoteFloat32:
		return litF64(float64(v.F32())), true
	case ir.DemoteFloat64:
		return litF32(float32(v.F64())), true

	case ir.ReinterpretFloat32:
		return ir.LiteralI32(int32(uint32(v.Bits))), true
	case ir.ReinterpretFloat64:
		return ir.LiteralI64(int64(v.Bits)), true
	case ir.ReinterpretInt32:
		return ir.LiteralF32Bits(uint32(v.I32())), true
	case ir.ReinterpretInt64:
		return ir.LiteralF64Bits(uint64(v.I64())), true

	case ir.ExtendS8Int32:
		return ir.LiteralI32(int32(int8(v.I32()))), true
	case ir.ExtendS16Int32:
		return ir.LiteralI32(int32(int16(v.I32()))), true
	case ir.ExtendS8Int64:
		return ir.LiteralI64(int64(int8(v.I64()))), true
	case ir.ExtendS16Int64:
		return ir.LiteralI64(int64(int16(v.I64()))), true
	case ir.ExtendS32Int64:
		return ir.LiteralI64(int64(int32(v.I64()))), true
	}
	return ir.Literal{}, false
}

func truncSI32(v float64) (ir.Literal, bool) {
	t := math.Trunc(v)
	if v != v || t < -2147483648 || t > 2147483647 {
		return ir.Literal{}, false // would trap
	}
	return ir.LiteralI32(int32(t)), true
}

func truncUI32(v float64) (ir.Literal, bool) {
	t := math.Trunc(v)
	if v != v || t < 0 || t > 4294967295 {
		return ir.Literal{}, false
	}
	return ir.LiteralI32(int32(uint32(t))), true
}

func truncSI64(v float64) (ir.Literal, bool) {
	t := math.Trunc(v)
	if v != v || t < -9223372036854775808 || t >= 9223372036854775808 {
		return ir.Literal{}, false
	}
	return ir.LiteralI64(int64(t)), true
}

func truncUI64(v float64) (ir.Literal, bool) {
	t := math.Trunc(v)
	if v != v || t < 0 || t >= 18446744073709551616 {
		return ir.Literal{}, false
	}
	return ir.LiteralI64(int64(uint64(t))), true
}

func satSI32(v float64) ir.Literal {
	switch {
	case v != v:
		return ir.LiteralI32(0)
	case v <= -2147483648:
		return ir.LiteralI32(math.MinInt32)
	case v >= 2147483647:
		return ir.LiteralI32(math.MaxInt32)
	}
	return ir.LiteralI32(int32(math.Trunc(v)))
}

func satUI32(v float64) ir.Literal {
	switch {
	case v != v, v <= 0:
		return ir.LiteralI32(0)
	case v >= 4294967295:
		return ir.LiteralI32(-1)
	}
	return ir.LiteralI32(int32(uint32(math.Trunc(v))))
}

func satSI64(v float64) ir.Literal {
	switch {
	case v != v:
		return ir.LiteralI64(0)
	case v <= -9223372036854775808:
		return ir.LiteralI64(math.MinInt64)
	case v >= 9223372036854775807:
		return ir.LiteralI64(math.MaxInt64)
	}
	return ir.LiteralI64(int64(math.Trunc(v)))
}

func satUI64(v float64) ir.Literal {
	switch {
	case v != v, v <= 0:
		return ir.LiteralI64(0)
	case v >= 18446744073709551615:
		return ir.LiteralI64(-1)
	}
	return ir.LiteralI64(int64(uint64(math.Trunc(v))))
}

func evalBinary(op ir.BinaryOp, l, r ir.Literal) (ir.Literal, bool) {
	switch op {
	case ir.AddInt32:
		return ir.LiteralI32(l.I32() + r.I32()), true
	case ir.SubInt32:
		return ir.LiteralI32(l.I32() - r.I32()), true
	case ir.MulInt32:
		return ir.LiteralI32(l.I32() * r.I32()), true
	case ir.DivSInt32:
		if r.I32() == 0 || (l.I32() == math.MinInt32 && r.I32() == -1) {
			return ir.Literal{}, false
		}
		return ir.LiteralI32(l.I32() / r.I32()), true
	case ir.DivUInt32:
		if r.I32() == 0 {
			return ir.Literal{}, false
		}
		return ir.LiteralI32(int32(uint32(l.I32()) / uint32(r.I32()))), true
	case ir.RemSInt32:
		if r.I32() == 0 {
			return ir.Literal{}, false
		}
		if l.I32() == math.MinInt32 && r.I32() == -1 {
			return ir.LiteralI32(0), true
		}
		return ir.LiteralI32(l.I32() % r.I32()), true
	case ir.RemUInt32:
		if r.I32() == 0 {
			return ir.Literal{}, false
		}
		return ir.LiteralI32(int32(uint32(l.I32()) % uint32(r.I32()))), true
	case ir.AndInt32:
		return ir.LiteralI32(l.I32() & r.I32()), true
	case ir.OrInt32:
		return ir.LiteralI32(l.I32() | r.I32()), true
	case ir.XorInt32:
		return ir.LiteralI32(l.I32() ^ r.I32()), true
	case ir.ShlInt32:
		return ir.LiteralI32(l.I32() << (uint32(r.I32()) & 31)), true
	case ir.ShrSInt32:
		return ir.LiteralI32(l.I32() >> (uint32(r.I32()) & 31)), true
	case ir.ShrUInt32:
		return ir.LiteralI32(int32(uint32(l.I32()) >> (uint32(r.I32()) & 31))), true
	case ir.RotLInt32:
		return ir.LiteralI32(int32(bits.RotateLeft32(uint32(l.I32()), int(r.I32()&31)))), true
	case ir.RotRInt32:
		return ir.LiteralI32(int32(bits.RotateLeft32(uint32(l.I32()), -int(r.I32()&31)))), true
	case ir.EqInt32:
		return boolLit(l.I32() == r.I32()), true
	case ir.NeInt32:
		return boolLit(l.I32() != r.I32()), true
	case ir.LtSInt32:
		return boolLit(l.I32() < r.I32()), true
	case ir.LtUInt32:
		return boolLit(uint32(l.I32()) < uint32(r.I32())), true
	case ir.LeSInt32:
		return boolLit(l.I32() <= r.I32()), true
	case ir.LeUInt32:
		return boolLit(uint32(l.I32()) <= uint32(r.I32())), true
	case ir.GtSInt32:
		return boolLit(l.I32() > r.I32()), true
	case ir.GtUInt32:
		return boolLit(uint32(l.I32()) > uint32(r.I32())), true
	case ir.GeSInt32:
		return boolLit(l.I32() >= r.I32()), true
	case ir.GeUInt32:
		return boolLit(uint32(l.I32()) >= uint32(r.I32())), true

	case ir.AddInt64:
		return ir.LiteralI64(l.I64() + r.I64()), true
	case ir.SubInt64:
		return ir.LiteralI64(l.I64() - r.I64()), true
	case ir.MulInt64:
		return ir.LiteralI64(l.I64() * r.I64()), true
	case ir.DivSInt64:
		if r.I64() == 0 || (l.I64() == math.MinInt64 && r.I64() == -1) {
			return ir.Literal{}, false
		}
		return ir.LiteralI64(l.I64() / r.I64()), true
	case ir.DivUInt64:
		if r.I64() == 0 {
			return ir.Literal{}, false
		}
		return ir.LiteralI64(int64(uint64(l.I64()) / uint64(r.I64()))), true
	case ir.RemSInt64:
		if r.I64() == 0 {
			return ir.Literal{}, false
		}
		if l.I64() == math.MinInt64 && r.I64() == -1 {
			return ir.LiteralI64(0), true
		}
		return ir.LiteralI64(l.I64() % r.I64()), true
	case ir.RemUInt64:
		if r.I64() == 0 {
			return ir.Literal{}, false
		}
		return ir.LiteralI64(int64(uint64(l.I64()) % uint64(r.I64()))), true
	case ir.AndInt64:
		return ir.LiteralI64(l.I64() & r.I64()), true
	case ir.OrInt64:
		return ir.LiteralI64(l.I64() | r.I64()), true
	case ir.XorInt64:
		return ir.LiteralI64(l.I64() ^ r.I64()), true
	case ir.ShlInt64:
		return ir.LiteralI64(l.I64() << (uint64(r.I64()) & 63)), true
	case ir.ShrSInt64:
		return ir.LiteralI64(l.I64() >> (uint64(r.I64()) & 63)), true
	case ir.ShrUInt64:
		return ir.LiteralI64(int64(uint64(l.I64()) >> (uint64(r.I64()) & 63))), true
	case ir.RotLInt64:
		return ir.LiteralI64(int64(bits.RotateLeft64(uint64(l.I64()), int(r.I64()&63)))), true
	case ir.RotRInt64:
		return ir.LiteralI64(int64(bits.RotateLeft64(uint64(l.I64()), -int(r.I64()&63)))), true
	case ir.EqInt64:
		return boolLit(l.I64() == r.I64()), true
	case ir.NeInt64:
		return boolLit(l.I64() != r.I64()), true
	case ir.LtSInt64:
		return boolLit(l.I64() < r.I64()), true
	case ir.LtUInt64:
		return boolLit(uint64(l.I64()) < uint64(r.I64())), true
	case ir.LeSInt64:
		return boolLit(l.I64() <= r.I64()), true
	case ir.LeUInt64:
		return boolLit(uint64(l.I64()) <= uint64(r.I64())), true
	case ir.GtSInt64:
		return boolLit(l.I64() > r.I64()), true
	case ir.GtUInt64:
		return boolLit(uint64(l.I64()) > uint64(r.I64())), true
	case ir.GeSInt64:
		return boolLit(l.I64() >= r.I64()), true
	case ir.GeUInt64:
		return boolLit(uint64(l.I64()) >= uint64(r.I64())), true

	case ir.AddFloat32:
		return litF32(l.F32() + r.F32()), true
	case ir.SubFloat32:
		return litF32(l.F32() - r.F32()), true
	case ir.MulFloat32:
		return litF32(l.F32() * r.F32()), true
	case ir.DivFloat32:
		return litF32(l.F32() / r.F32()), true
	case ir.CopySignFloat32:
		return litF32(float32(math.Copysign(float64(l.F32()), float64(r.F32())))), true
	case ir.MinFloat32:
		return litF32(float32(math.Min(float64(l.F32()), float64(r.F32())))), true
	case ir.MaxFloat32:
		return litF32(float32(math.Max(float64(l.F32()), float64(r.F32())))), true
	case ir.EqFloat32:
		return boolLit(l.F32() == r.F32()), true
	case ir.NeFloat32:
		return boolLit(l.F32() != r.F32()), true
	case ir.LtFloat32:
		return boolLit(l.F32() < r.F32()), true
	case ir.LeFloat32:
		return boolLit(l.F32() <= r.F32()), true
	case ir.GtFloat32:
		return boolLit(l.F32() > r.F32()), true
	case ir.GeFloat32:
		return boolLit(l.F32() >= r.F32()), true

	case ir.AddFloat64:
		return litF64(l.F64() + r.F64()), true
	case ir.SubFloat64:
		return litF64(l.F64() - r.F64()), true
	case ir.MulFloat64:
		return litF64(l.F64() * r.F64()), true
	case ir.DivFloat64:
		return litF64(l.F64() / r.F64()), true
	case ir.CopySignFloat64:
		return litF64(math.Copysign(l.F64(), r.F64())), true
	case ir.MinFloat64:
		return litF64(math.Min(l.F64(), r.F64())), true
	case ir.MaxFloat64:
		return litF64(math.Max(l.F64(), r.F64())), true
	case ir.EqFloat64:
		return boolLit(l.F64() == r.F64()), true
	case ir.NeFloat64:
		return boolLit(l.F64() != r.F64()), true
	case ir.LtFloat64:
		return boolLit(l.F64() < r.F64()), true
	case ir.LeFloat64:
		return boolLit(l.F64() <= r.F64()), true
	case ir.GtFloat64:
		return boolLit(l.F64() > r.F64()), true
	case ir.GeFloat64:
		return boolLit(l.F64() >= r.F64()), true
	}
	return ir.Literal{}, false
}
