package passes

import (
	"sort"

	"github.com/woptproject/wopt/ir"
)

// localCSE finds repeated subexpressions inside a block, computes the
// value once into a fresh local, and replaces the repeats with reads
// of that local. Matching is syntactic; legality comes from the
// effect analyzer: no interfering write may sit between the
// occurrences.
type localCSE struct {
	b ir.Builder
}

func init() {
	Register("local-cse", func() Pass { return &localCSE{} })
}

func (*localCSE) Name() string { return "local-cse" }

func (p *localCSE) Run(m *ir.Module) {
	p.b = m.Builder()
	for _, fn := range m.Functions {
		if fn.Body == nil {
			continue
		}
		v := ir.VisitorFunc(func(slot **ir.Expr) ir.Action {
			if (*slot).Kind == ir.KindBlock {
				p.processBlock(fn, *slot)
			}
			return ir.Continue
		})
		ir.WalkFunction(fn, v)
	}
}

type occurrence struct {
	slot  **ir.Expr
	node  *ir.Expr
	child int
	order int
}

type candidateGroup struct {
	key  string
	occs []occurrence
	size int
}

// eligible reports whether a node is worth deduplicating: a compound,
// value-producing expression.
func eligible(e *ir.Expr) bool {
	if !e.Type.IsConcrete() {
		return false
	}
	hasChild := false
	e.EachChild(func(**ir.Expr) { hasChild = true })
	return hasChild
}

func exprSize(e *ir.Expr) int {
	n := 1
	e.EachChild(func(slot **ir.Expr) { n += exprSize(*slot) })
	return n
}

func claim(e *ir.Expr, claimed map[*ir.Expr]bool) {
	claimed[e] = true
	e.EachChild(func(slot **ir.Expr) { claim(*slot, claimed) })
}

func (p *localCSE) processBlock(fn *ir.Function, blk *ir.Expr) {
	if len(blk.List) == 0 {
		return
	}

	childFx := make([]*ir.EffectSet, len(blk.List))
	for i, c := range blk.List {
		childFx[i] = ir.AnalyzeEffects(c)
	}

	// Collect occurrences of repeatable subexpressions, in evaluation
	// order. Children that write state or call out are barriers, not
	// sources.
	const barrier = ir.EffectWritesLocal | ir.EffectWritesGlobal | ir.EffectWritesMemory |
		ir.EffectCalls | ir.EffectBranches | ir.EffectReturns | ir.EffectTraps | ir.EffectOther

	order := 0
	groups := make(map[string]*candidateGroup)
	for i := range blk.List {
		var enumerate func(slot **ir.Expr)
		enumerate = func(slot **ir.Expr) {
			(*slot).EachChild(enumerate)
			node := *slot
			if !eligible(node) {
				return
			}
			key := ir.Fingerprint(node)
			g := groups[key]
			if g == nil {
				g = &candidateGroup{key: key, size: exprSize(node)}
				groups[key] = g
			}
			g.occs = append(g.occs, occurrence{slot: slot, node: node, child: i, order: order})
			order++
		}
		for _, root := range sourceRoots(&blk.List[i], childFx[i], barrier) {
			if !ir.AnalyzeEffects(*root).Flags.Intersects(barrier) {
				enumerate(root)
			}
		}
	}

	var worthwhile []*candidateGroup
	for _, g := range groups {
		if len(g.occs) > 1 {
			worthwhile = append(worthwhile, g)
		}
	}
	// Largest expressions first; ties resolve by first appearance so
	// the result is deterministic.
	sort.Slice(worthwhile, func(a, b int) bool {
		if worthwhile[a].size != worthwhile[b].size {
			return worthwhile[a].size > worthwhile[b].size
		}
		return worthwhile[a].occs[0].order < worthwhile[b].occs[0].order
	})

	claimed := make(map[*ir.Expr]bool)
	for _, g := range worthwhile {
		first := g.occs[0]
		if claimed[first.node] {
			continue
		}
		candFx := ir.AnalyzeEffects(first.node)

		var repeats []occurrence
		for _, occ := range g.occs[1:] {
			if claimed[occ.node] {
				continue
			}
			if p.interferingBetween(childFx, first.child, occ.child, candFx) {
				continue
			}
			repeats = append(repeats, occ)
		}
		if len(repeats) == 0 {
			continue
		}

		idx := fn.AddVar(first.node.Type)
		*first.slot = p.b.LocalTee(idx, first.node, first.node.Type)
		claim(first.node, claimed)
		for _, occ := range repeats {
			*occ.slot = p.b.LocalGet(idx, first.node.Type)
			claim(occ.node, claimed)
		}
	}
}

// sourceRoots returns the subtrees of a block child whose evaluation
// completes before the child's own state change, so their
// subexpressions are usable as CSE sources. A child without barrier
// effects is usable whole; a set, store, or drop evaluates its
// operands first; anything else with barrier effects contributes
// nothing.
func sourceRoots(slot **ir.Expr, fx *ir.EffectSet, barrier ir.Effects) []**ir.Expr {
	e := *slot
	if !fx.Flags.Intersects(barrier) {
		return []**ir.Expr{slot}
	}
	switch e.Kind {
	case ir.KindLocalSet, ir.KindLocalTee, ir.KindGlobalSet, ir.KindDrop, ir.KindReturn:
		if e.Value != nil {
			return []**ir.Expr{&e.Value}
		}
	case ir.KindStore:
		return []**ir.Expr{&e.Ptr, &e.Value}
	}
	return nil
}

// interferingBetween reports whether anything evaluated between the
// two occurrences could change the candidate's value or leave the
// block. The first occurrence's own statement is included: its write
// (a set's store, say) happens after the occurrence is computed.
func (p *localCSE) interferingBetween(childFx []*ir.EffectSet, from, to int, candFx *ir.EffectSet) bool {
	for c := from; c < to; c++ {
		if childFx[c].TransfersControl() {
			return true
		}
		if childFx[c].InterferesWith(candFx) {
			return true
		}
	}
	return false
}
