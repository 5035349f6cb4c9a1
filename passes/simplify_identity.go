package passes

import (
	"github.com/woptproject/wopt/ir"
)

// simplifyIdentity removes arithmetic identities: x+0, x-0, x*1, x|0,
// x&-1, x^0, and shifts by zero, for both integer widths. Float types
// are left alone (x+0.0 is not an identity for -0.0 and NaN).
type simplifyIdentity struct{}

func init() {
	Register("simplify-identity", func() Pass { return simplifyIdentity{} })
}

func (simplifyIdentity) Name() string { return "simplify-identity" }

func (p simplifyIdentity) Run(m *ir.Module) {
	v := ir.VisitorFunc(p.visit)
	for _, fn := range m.Functions {
		ir.WalkFunction(fn, v)
	}
}

func (p simplifyIdentity) visit(slot **ir.Expr) ir.Action {
	e := *slot
	if e.Kind != ir.KindBinary || !e.Type.IsInteger() {
		return ir.Continue
	}

	if keep, ok := identityOperand(e); ok {
		*slot = keep
		// The replacement may itself be an identity; look again.
		return ir.Revisit
	}
	return ir.Continue
}

// identityOperand returns the operand the expression reduces to, if
// the other operand is the operator's identity element.
func identityOperand(e *ir.Expr) (*ir.Expr, bool) {
	rightIdentity := func(v int64) bool { return e.Right.IsConstOf(v) }
	leftIdentity := func(v int64) bool { return e.Left.IsConstOf(v) }

	switch e.Binop {
	case ir.AddInt32, ir.AddInt64, ir.OrInt32, ir.OrInt64, ir.XorInt32, ir.XorInt64:
		if rightIdentity(0) {
			return e.Left, true
		}
		if leftIdentity(0) {
			return e.Right, true
		}
	case ir.SubInt32, ir.SubInt64:
		if rightIdentity(0) {
			return e.Left, true
		}
	case ir.MulInt32, ir.MulInt64:
		if rightIdentity(1) {
			return e.Left, true
		}
		if leftIdentity(1) {
			return e.Right, true
		}
	case ir.AndInt32, ir.AndInt64:
		if rightIdentity(-1) {
			return e.Left, true
		}
		if leftIdentity(-1) {
			return e.Right, true
		}
	case ir.ShlInt32, ir.ShrSInt32, ir.ShrUInt32, ir.RotLInt32, ir.RotRInt32,
		ir.ShlInt64, ir.ShrSInt64, ir.ShrUInt64, ir.RotLInt64, ir.RotRInt64:
		if rightIdentity(0) {
			return e.Left, true
		}
	}
	return nil, false
}
