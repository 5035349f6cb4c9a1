package passes

import (
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/ir/dataflow"
)

// codePushing sinks a local.set toward its first use within the same
// block, shrinking the local's live range. Legal only when nothing in
// between touches the local or interferes with the computed value.
type codePushing struct{}

func init() {
	Register("code-pushing", func() Pass { return codePushing{} })
}

func (codePushing) Name() string { return "code-pushing" }

func (p codePushing) Run(m *ir.Module) {
	for _, fn := range m.Functions {
		if fn.Body == nil {
			continue
		}
		graph := dataflow.BuildLocalGraph(fn)
		v := ir.VisitorFunc(func(slot **ir.Expr) ir.Action {
			p.pushInBlock(*slot, graph)
			return ir.Continue
		})
		ir.WalkFunction(fn, v)
	}
}

func usesLocal(e *ir.Expr, idx uint32) bool {
	fx := ir.AnalyzeEffects(e)
	_, read := fx.LocalsRead[idx]
	_, written := fx.LocalsWritten[idx]
	return read || written || fx.Flags.Intersects(ir.EffectCalls)
}

func (p codePushing) pushInBlock(blk *ir.Expr, graph *dataflow.LocalGraph) {
	if blk.Kind != ir.KindBlock {
		return
	}

	// Statements are visited last to first, so a set that has been
	// sunk is never pushed back over one that moved before it.
	for i := len(blk.List) - 2; i >= 0; i-- {
		set := blk.List[i]
		if set.Kind != ir.KindLocalSet {
			continue
		}
		if ir.AnalyzeEffects(set.Value).HasSideEffects() {
			continue
		}

		// Find the first later sibling that touches the local.
		use := -1
		for j := i + 1; j < len(blk.List); j++ {
			if usesLocal(blk.List[j], set.Index) {
				use = j
				break
			}
		}
		if use <= i+1 {
			continue // nothing to skip over, or no use in this block
		}

		between := blk.List[i+1 : use]
		if !graph.CanSinkPast(set, between) {
			continue
		}

		copy(blk.List[i:], between)
		blk.List[use-1] = set
	}
}
