package passes

import (
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

// precompute folds expressions over constant operands into a single
// constant. The walk is bottom-up, so nested constants propagate to
// the root in one application. Operations that could trap at runtime
// (division by zero, out-of-range truncation) are evaluated only if
// the evaluation itself succeeds; otherwise the expression is kept.
type precompute struct{}

func init() {
	Register("precompute", func() Pass { return precompute{} })
}

func (precompute) Name() string { return "precompute" }

func (p precompute) Run(m *ir.Module) {
	for _, fn := range m.Functions {
		if fn.Body != nil {
			ir.WalkPost(&fn.Body, p.fold)
		}
	}
	for _, g := range m.Globals {
		if g.Init != nil {
			ir.WalkPost(&g.Init, p.fold)
		}
	}
}

func (p precompute) fold(slot **ir.Expr) {
	e := *slot

	switch e.Kind {
	case ir.KindUnary:
		if !e.Value.IsConst() {
			return
		}
		if lit, ok := evalUnary(e.Unop, e.Value.Lit); ok && lit.Type == e.Type {
			p.replace(e, lit)
		}

	case ir.KindBinary:
		if !e.Left.IsConst() || !e.Right.IsConst() {
			return
		}
		if lit, ok := evalBinary(e.Binop, e.Left.Lit, e.Right.Lit); ok && lit.Type == e.Type {
			p.replace(e, lit)
		}

	case ir.KindSelect:
		// All three operands constant: pick a side.
		if e.Cond.IsConst() && e.IfTrue.IsConst() && e.IfFalse.IsConst() {
			pick := e.IfTrue.Lit
			if e.Cond.Lit.I32() == 0 {
				pick = e.IfFalse.Lit
			}
			if pick.Type == e.Type {
				p.replace(e, pick)
			}
		}
	}
}

// replace rewrites a node into a constant in place, preserving its
// identity in the parent.
func (precompute) replace(e *ir.Expr, lit ir.Literal) {
	*e = ir.Expr{Kind: ir.KindConst, Type: lit.Type, Lit: lit}
}

// foldsTo is a test hook: it reports what an expression folds to, if
// anything.
func foldsTo(e *ir.Expr) (ir.Literal, bool) {
	switch e.Kind {
	case ir.KindConst:
		return e.Lit, true
	case ir.KindUnary:
		if e.Value.IsConst() {
			return evalUnary(e.Unop, e.Value.Lit)
		}
	case ir.KindBinary:
		if e.Left.IsConst() && e.Right.IsConst() {
			return evalBinary(e.Binop, e.Left.Lit, e.Right.Lit)
		}
	}
	return ir.Literal{Type: wasm.TypeNone}, false
}
