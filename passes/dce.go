package passes

import (
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/wasm"
)

// dce removes unreachable code: within a block, everything after the
// first child that cannot fall through (return, unreachable, an
// unconditional branch) is deleted.
type dce struct{}

func init() {
	Register("dce", func() Pass { return dce{} })
}

func (dce) Name() string { return "dce" }

func (p dce) Run(m *ir.Module) {
	v := ir.VisitorFunc(p.visit)
	for _, fn := range m.Functions {
		ir.WalkFunction(fn, v)
	}
}

func (p dce) visit(slot **ir.Expr) ir.Action {
	e := *slot
	if e.Kind != ir.KindBlock {
		return ir.Continue
	}

	cut := -1
	for i, c := range e.List {
		if c.Type == wasm.TypeUnreachable {
			cut = i + 1
			break
		}
	}
	if cut >= 0 && cut < len(e.List) {
		e.List = e.List[:cut]
		ir.UpdateBlockType(e)
	}
	return ir.Continue
}
