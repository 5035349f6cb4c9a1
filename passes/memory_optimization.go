package passes

import (
	"github.com/woptproject/wopt/ir"
)

// memoryOptimization eliminates dead stores: a store that is
// overwritten by a later store to the same address, width, and
// alignment with nothing in between that could read memory, trap, or
// leave the block. Both stores then trap identically, so dropping the
// first is unobservable.
type memoryOptimization struct {
	b ir.Builder
}

func init() {
	Register("memory-optimization", func() Pass { return &memoryOptimization{} })
}

func (*memoryOptimization) Name() string { return "memory-optimization" }

func (p *memoryOptimization) Run(m *ir.Module) {
	p.b = m.Builder()
	v := ir.VisitorFunc(func(slot **ir.Expr) ir.Action {
		p.eliminateInBlock(*slot)
		return ir.Continue
	})
	for _, fn := range m.Functions {
		ir.WalkFunction(fn, v)
	}
}

// blocksElimination reports whether an intervening statement pins the
// earlier store: anything that may read memory, call out, trap, or
// transfer control.
func blocksElimination(e *ir.Expr) bool {
	fx := ir.AnalyzeEffects(e)
	return fx.Flags.Intersects(
		ir.EffectReadsMemory | ir.EffectCalls | ir.EffectMayTrap |
			ir.EffectTraps | ir.EffectBranches | ir.EffectReturns | ir.EffectOther)
}

func sameLocation(a, b *ir.Expr) bool {
	return a.Bytes == b.Bytes &&
		a.Offset == b.Offset &&
		a.Align == b.Align &&
		ir.StructurallyEqual(a.Ptr, b.Ptr)
}

func (p *memoryOptimization) eliminateInBlock(blk *ir.Expr) {
	if blk.Kind != ir.KindBlock {
		return
	}

	for i := 0; i < len(blk.List); i++ {
		first := blk.List[i]
		if first.Kind != ir.KindStore {
			continue
		}
		// The store disappears entirely, so computing its address and
		// value must have no observable effect of its own.
		if ir.AnalyzeEffects(first.Ptr).HasSideEffects() ||
			ir.AnalyzeEffects(first.Value).HasSideEffects() {
			continue
		}

		operandFx := ir.EffectAnalyzer{Rigorous: true}.AnalyzeRange([]*ir.Expr{first.Ptr, first.Value})

		for j := i + 1; j < len(blk.List); j++ {
			c := blk.List[j]
			if c.Kind == ir.KindStore && sameLocation(first, c) {
				blk.List[i] = p.b.Nop()
				break
			}
			if blocksElimination(c) {
				break
			}
			// A write to anything the address or value reads would
			// desynchronize the location comparison.
			if ir.AnalyzeEffects(c).InterferesWith(operandFx) {
				break
			}
		}
	}
}
