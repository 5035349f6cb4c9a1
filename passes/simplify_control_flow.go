package passes

import (
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

// simplifyControlFlow folds trivial control constructs: ifs with a
// constant condition, ifs whose arms are identical and side-effect
// free, and loops nothing branches back to.
type simplifyControlFlow struct {
	b ir.Builder
}

func init() {
	Register("simplify-control-flow", func() Pass { return &simplifyControlFlow{} })
}

func (*simplifyControlFlow) Name() string { return "simplify-control-flow" }

func (p *simplifyControlFlow) Run(m *ir.Module) {
	p.b = m.Builder()
	v := ir.VisitorFunc(p.visit)
	for _, fn := range m.Functions {
		ir.WalkFunction(fn, v)
	}
}

func (p *simplifyControlFlow) visit(slot **ir.Expr) ir.Action {
	e := *slot

	switch e.Kind {
	case ir.KindIf:
		// Constant condition: keep the taken arm.
		if e.Cond.IsConst() {
			arm := e.IfFalse
			if e.Cond.Lit.I32() != 0 {
				arm = e.IfTrue
			}
			if arm == nil {
				arm = p.b.Nop()
			}
			if arm.Type == e.Type || e.Type == wasm.TypeNone && arm.Type == wasm.TypeNone {
				*slot = arm
				return ir.Revisit
			}
			return ir.Continue
		}

		// Identical side-effect-free arms: evaluate the condition for
		// its effects and keep one copy.
		if e.IfFalse != nil && ir.StructurallyEqual(e.IfTrue, e.IfFalse) &&
			!ir.AnalyzeEffects(e.IfTrue).HasSideEffects() {
			items := []*ir.Expr{p.b.Drop(e.Cond), e.IfTrue}
			*slot = p.b.Block("", items, e.Type)
			return ir.Revisit
		}

	case ir.KindLoop:
		// A loop nothing branches back to is a plain scope.
		if e.Name != "" && !ir.BranchesTo(e, e.Name) {
			e.Name = ""
		}
		if e.Name == "" && e.Body.Type == e.Type {
			*slot = e.Body
			return ir.Revisit
		}
	}
	return ir.Continue
}
