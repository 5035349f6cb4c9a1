package ir

// UnaryOp identifies a unary operator. Ordinals are stable: the
// binary reader and writer index opcode tables by them.
type UnaryOp uint32

const (
	ClzInt32 UnaryOp = iota
	CtzInt32
	PopcntInt32
	EqZInt32
	ClzInt64
	CtzInt64
	PopcntInt64
	EqZInt64
	NegFloat32
	AbsFloat32
	CeilFloat32
	FloorFloat32
	TruncFloat32
	NearestFloat32
	SqrtFloat32
	NegFloat64
	AbsFloat64
	CeilFloat64
	FloorFloat64
	TruncFloat64
	NearestFloat64
	SqrtFloat64

	// Integer <-> float conversions.
	ConvertSInt32ToFloat32
	ConvertUInt32ToFloat32
	ConvertSInt64ToFloat32
	ConvertUInt64ToFloat32
	ConvertSInt32ToFloat64
	ConvertUInt32ToFloat64
	ConvertSInt64ToFloat64
	ConvertUInt64ToFloat64
	TruncSFloat32ToInt32
	TruncUFloat32ToInt32
	TruncSFloat64ToInt32
	TruncUFloat64ToInt32
	TruncSFloat32ToInt64
	TruncUFloat32ToInt64
	TruncSFloat64ToInt64
	TruncUFloat64ToInt64
	TruncSatSFloat32ToInt32
	TruncSatUFloat32ToInt32
	TruncSatSFloat64ToInt32
	TruncSatUFloat64ToInt32
	TruncSatSFloat32ToInt64
	TruncSatUFloat32ToInt64
	TruncSatSFloat64ToInt64
	TruncSatUFloat64ToInt64

	// Integer <-> integer conversions.
	WrapInt64
	ExtendSInt32
	ExtendUInt32

	// Float <-> float conversions.
	PromoteFloat32
	DemoteFloat64

	// Reinterprets.
	ReinterpretFloat32
	ReinterpretFloat64
	ReinterpretInt32
	ReinterpretInt64

	// Sign extensions.
	ExtendS8Int32
	ExtendS16Int32
	ExtendS8Int64
	ExtendS16Int64
	ExtendS32Int64

	numUnaryOps
)

// MayTrap reports whether the operator can trap at runtime. Only the
// non-saturating float-to-int truncations do.
func (op UnaryOp) MayTrap() bool {
	return op >= TruncSFloat32ToInt32 && op <= TruncUFloat64ToInt64
}

// BinaryOp identifies a binary operator. Ordinals are stable for the
// same reason as UnaryOp.
type BinaryOp uint32

const (
	AddInt32 BinaryOp = iota
	SubInt32
	MulInt32
	DivSInt32
	DivUInt32
	RemSInt32
	RemUInt32
	AndInt32
	OrInt32
	XorInt32
	ShlInt32
	ShrSInt32
	ShrUInt32
	RotLInt32
	RotRInt32
	EqInt32
	NeInt32
	LtSInt32
	LtUInt32
	LeSInt32
	LeUInt32
	GtSInt32
	GtUInt32
	GeSInt32
	GeUInt32

	AddInt64
	SubInt64
	MulInt64
	DivSInt64
	DivUInt64
	RemSInt64
	RemUInt64
	AndInt64
	OrInt64
	XorInt64
	ShlInt64
	ShrSInt64
	ShrUInt64
	RotLInt64
	RotRInt64
	EqInt64
	NeInt64
	LtSInt64
	LtUInt64
	LeSInt64
	LeUInt64
	GtSInt64
	GtUInt64
	GeSInt64
	GeUInt64

	AddFloat32
	SubFloat32
	MulFloat32
	DivFloat32
	CopySignFloat32
	MinFloat32
	MaxFloat32
	EqFloat32
	NeFloat32
	LtFloat32
	LeFloat32
	GtFloat32
	GeFloat32

	AddFloat64
	SubFloat64
	MulFloat64
	DivFloat64
	CopySignFloat64
	MinFloat64
	MaxFloat64
	EqFloat64
	NeFloat64
	LtFloat64
	LeFloat64
	GtFloat64
	GeFloat64

	numBinaryOps
)

// MayTrap reports whether the operator can trap at runtime (integer
// division and remainder).
func (op BinaryOp) MayTrap() bool {
	switch op {
	case DivSInt32, DivUInt32, RemSInt32, RemUInt32,
		DivSInt64, DivUInt64, RemSInt64, RemUInt64:
		return true
	}
	return false
}

// IsRelational reports whether the operator yields an i32 boolean.
func (op BinaryOp) IsRelational() bool {
	switch {
	case op >= EqInt32 && op <= GeUInt32:
		return true
	case op >= EqInt64 && op <= GeUInt64:
		return true
	case op >= EqFloat32 && op <= GeFloat32:
		return true
	case op >= EqFloat64 && op <= GeFloat64:
		return true
	}
	return false
}

// IsCommutative reports whether operand order is irrelevant.
func (op BinaryOp) IsCommutative() bool {
	switch op {
	case AddInt32, MulInt32, AndInt32, OrInt32, XorInt32, EqInt32, NeInt32,
		AddInt64, MulInt64, AndInt64, OrInt64, XorInt64, EqInt64, NeInt64:
		return true
	}
	return false
}
