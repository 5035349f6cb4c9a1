package dataflow

import "github.com/woptproject/wopt/ir"

// LocalGraph records the definitions and uses of every local in a
// function: local.set and local.tee (and parameters) define, local.get
// uses.
type LocalGraph struct {
	fn *ir.Function

	defs map[uint32][]*ir.Expr
	uses map[uint32][]*ir.Expr
}

// BuildLocalGraph walks the function body and collects def-use
// information.
func BuildLocalGraph(fn *ir.Function) *LocalGraph {
	g := &LocalGraph{
		fn:   fn,
		defs: make(map[uint32][]*ir.Expr),
		uses: make(map[uint32][]*ir.Expr),
	}
	if fn.Body != nil {
		var walk func(e *ir.Expr)
		walk = func(e *ir.Expr) {
			switch e.Kind {
			case ir.KindLocalGet:
				g.uses[e.Index] = append(g.uses[e.Index], e)
			case ir.KindLocalSet:
				g.defs[e.Index] = append(g.defs[e.Index], e)
			case ir.KindLocalTee:
				// A tee defines and forwards the value; it is a def
				// only.
				g.defs[e.Index] = append(g.defs[e.Index], e)
			}
			e.EachChild(func(slot **ir.Expr) { walk(*slot) })
		}
		walk(fn.Body)
	}
	return g
}

// Defs returns all explicit definitions of a local, in traversal
// order. Parameter entry definitions are implicit and not listed.
func (g *LocalGraph) Defs(i uint32) []*ir.Expr {
	return g.defs[i]
}

// Uses returns all uses of a local, in traversal order.
func (g *LocalGraph) Uses(i uint32) []*ir.Expr {
	return g.uses[i]
}

// DefCount counts definitions, including the implicit parameter
// definition.
func (g *LocalGraph) DefCount(i uint32) int {
	n := len(g.defs[i])
	if int(i) < g.fn.NumParams() {
		n++
	}
	return n
}

// UseCount counts uses.
func (g *LocalGraph) UseCount(i uint32) int {
	return len(g.uses[i])
}

// IsUnused reports whether the local is never read.
func (g *LocalGraph) IsUnused(i uint32) bool {
	return g.UseCount(i) == 0
}

// HasSingleDef reports whether the local has exactly one definition.
func (g *LocalGraph) HasSingleDef(i uint32) bool {
	return g.DefCount(i) == 1
}

// HasSingleUse reports whether the local has exactly one use.
func (g *LocalGraph) HasSingleUse(i uint32) bool {
	return g.UseCount(i) == 1
}

// CanSinkPast reports whether a local.set can move after the given
// expressions. It is conservative: the set may move only if nothing
// in between touches the same local, interferes with the computation
// of the set's value, or can transfer control away.
func (g *LocalGraph) CanSinkPast(set *ir.Expr, between []*ir.Expr) bool {
	if set.Kind != ir.KindLocalSet {
		return false
	}
	valueFx := ir.AnalyzeEffects(set.Value)

	for _, e := range between {
		fx := ir.AnalyzeEffects(e)
		if fx.TransfersControl() {
			return false
		}
		if _, ok := fx.LocalsRead[set.Index]; ok {
			return false
		}
		if _, ok := fx.LocalsWritten[set.Index]; ok {
			return false
		}
		if fx.Flags.Intersects(ir.EffectCalls) {
			return false
		}
		if valueFx.InterferesWith(fx) {
			return false
		}
	}
	return true
}
