package passes

import (
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/ir/dataflow"
)

// rse (redundant set elimination) removes a local.set whose value is
// never read: the local is overwritten or the function ends before
// any use. Decided on real liveness, not syntax.
type rse struct {
	b ir.Builder
}

func init() {
	Register("rse", func() Pass { return &rse{} })
}

func (*rse) Name() string { return "rse" }

func (p *rse) Run(m *ir.Module) {
	p.b = m.Builder()
	for _, fn := range m.Functions {
		if fn.Body == nil {
			continue
		}
		dead := p.findDeadSets(fn)
		if len(dead) == 0 {
			continue
		}

		v := ir.VisitorFunc(func(slot **ir.Expr) ir.Action {
			e := *slot
			if !dead[e] {
				return ir.Continue
			}
			switch e.Kind {
			case ir.KindLocalSet:
				if ir.AnalyzeEffects(e.Value).HasSideEffects() {
					*slot = p.b.Drop(e.Value)
				} else {
					*slot = p.b.Nop()
				}
			case ir.KindLocalTee:
				// The value flows onward; only the store is dead.
				*slot = e.Value
			}
			return ir.Revisit
		})
		ir.WalkFunction(fn, v)
	}
}

// findDeadSets walks each basic block backwards from its live-out
// set; a definition of a local that is not live is dead.
func (p *rse) findDeadSets(fn *ir.Function) map[*ir.Expr]bool {
	g := dataflow.BuildCFG(fn)
	live := dataflow.BuildLiveness(g, fn.NumLocals())

	dead := make(map[*ir.Expr]bool)
	for _, blk := range g.Blocks {
		current := live.LiveOut[blk.ID].Clone()
		for i := len(blk.Actions) - 1; i >= 0; i-- {
			a := blk.Actions[i]
			if a.IsGet {
				current.Set(uint(a.Index))
				continue
			}
			if !current.Test(uint(a.Index)) {
				dead[a.Origin] = true
			}
			current.Clear(uint(a.Index))
		}
	}
	return dead
}
