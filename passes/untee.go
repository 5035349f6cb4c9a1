package passes

import "github.com/woptproject/wopt/ir"

// untee rewrites every local.tee into an explicit set followed by a
// get, wrapped in a block of the tee's type. Downstream passes only
// have to reason about one definition form afterwards.
type untee struct {
	b ir.Builder
}

func init() {
	Register("untee", func() Pass { return &untee{} })
}

func (*untee) Name() string { return "untee" }

func (p *untee) Run(m *ir.Module) {
	p.b = m.Builder()
	v := ir.VisitorFunc(p.visit)
	for _, fn := range m.Functions {
		ir.WalkFunction(fn, v)
	}
}

func (p *untee) visit(slot **ir.Expr) ir.Action {
	e := *slot
	if e.Kind != ir.KindLocalTee {
		return ir.Continue
	}

	set := p.b.LocalSet(e.Index, e.Value)
	get := p.b.LocalGet(e.Index, e.Type)
	*slot = p.b.Block("", []*ir.Expr{set, get}, e.Type)
	return ir.Revisit
}
