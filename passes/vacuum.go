package passes

import (
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

// vacuum removes obviously dead scaffolding: nops inside blocks,
// drops of side-effect-free values, empty blocks and loops, and ifs
// whose arms do nothing.
type vacuum struct {
	b ir.Builder
}

func init() {
	Register("vacuum", func() Pass { return &vacuum{} })
}

func (*vacuum) Name() string { return "vacuum" }

func (p *vacuum) Run(m *ir.Module) {
	p.b = m.Builder()
	for _, fn := range m.Functions {
		if fn.Body != nil {
			ir.WalkPost(&fn.Body, p.clean)
		}
	}
}

func isNop(e *ir.Expr) bool {
	return e.Kind == ir.KindNop
}

// isEmpty reports whether an expression does nothing at all.
func isEmpty(e *ir.Expr) bool {
	switch e.Kind {
	case ir.KindNop:
		return true
	case ir.KindBlock:
		if e.Type.IsConcrete() {
			return false
		}
		for _, c := range e.List {
			if !isEmpty(c) {
				return false
			}
		}
		return !ir.BranchesTo(e, e.Name)
	}
	return false
}

func (p *vacuum) clean(slot **ir.Expr) {
	e := *slot

	switch e.Kind {
	case ir.KindDrop:
		if !ir.AnalyzeEffects(e.Value).HasSideEffects() {
			*slot = p.b.Nop()
		}

	case ir.KindBlock:
		last := len(e.List) - 1
		kept := e.List[:0]
		for i, c := range e.List {
			if isNop(c) || (isEmpty(c) && i != last) {
				continue
			}
			kept = append(kept, c)
		}
		e.List = kept

		if isEmpty(e) {
			*slot = p.b.Nop()
		}

	case ir.KindLoop:
		if e.Type == wasm.TypeNone && isEmpty(e.Body) && !ir.BranchesTo(e, e.Name) {
			*slot = p.b.Nop()
		}

	case ir.KindIf:
		thenEmpty := isEmpty(e.IfTrue)
		elseEmpty := e.IfFalse == nil || isEmpty(e.IfFalse)
		if e.Type == wasm.TypeNone && thenEmpty && elseEmpty {
			// Only the condition's effects remain.
			if ir.AnalyzeEffects(e.Cond).HasSideEffects() {
				*slot = p.b.Drop(e.Cond)
			} else {
				*slot = p.b.Nop()
			}
		} else if e.IfFalse != nil && isEmpty(e.IfFalse) {
			e.IfFalse = nil
		}
	}
}
