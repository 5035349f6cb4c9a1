package passes

import (
	"github.com/woptproject/wopt/ir"
)

// licm hoists loop-invariant code out of loops: a leading local.set
// whose value is side-effect free and depends only on locals defined
// outside the loop moves in front of it.
type licm struct {
	b ir.Builder
}

func init() {
	Register("licm", func() Pass { return &licm{} })
}

func (*licm) Name() string { return "licm" }

func (p *licm) Run(m *ir.Module) {
	p.b = m.Builder()
	v := ir.VisitorFunc(p.visit)
	for _, fn := range m.Functions {
		ir.WalkFunction(fn, v)
	}
}

// loopLocalInfo summarizes local accesses within a loop body.
type loopLocalInfo struct {
	defs map[uint32]int
	uses map[uint32]int
}

func collectLoopLocals(e *ir.Expr) loopLocalInfo {
	info := loopLocalInfo{defs: map[uint32]int{}, uses: map[uint32]int{}}
	var walk func(x *ir.Expr)
	walk = func(x *ir.Expr) {
		switch x.Kind {
		case ir.KindLocalGet:
			info.uses[x.Index]++
		case ir.KindLocalSet, ir.KindLocalTee:
			info.defs[x.Index]++
		}
		x.EachChild(func(slot **ir.Expr) { walk(*slot) })
	}
	walk(e)
	return info
}

func (p *licm) visit(slot **ir.Expr) ir.Action {
	e := *slot
	if e.Kind != ir.KindLoop || e.Body.Kind != ir.KindBlock {
		return ir.Continue
	}

	body := e.Body
	info := collectLoopLocals(body)

	var hoisted []*ir.Expr
	for len(body.List) > 0 {
		c := body.List[0]
		if !p.invariant(c, info) {
			break
		}
		hoisted = append(hoisted, c)
		body.List = body.List[1:]
		info.defs[c.Index]--
	}
	if len(hoisted) == 0 {
		return ir.Continue
	}

	items := append(hoisted, e)
	*slot = p.b.Block("", items, e.Type)
	return ir.Revisit
}

// invariant reports whether a leading loop statement computes the
// same value every iteration and can run once before the loop: a
// local.set of a side-effect-free value whose operands are all
// defined outside the loop, storing a local with no other definition
// inside it.
func (p *licm) invariant(c *ir.Expr, info loopLocalInfo) bool {
	if c.Kind != ir.KindLocalSet {
		return false
	}
	if info.defs[c.Index] != 1 {
		return false
	}

	fx := ir.AnalyzeEffects(c.Value)
	if fx.HasSideEffects() {
		return false
	}
	if fx.Flags.Intersects(ir.EffectReadsGlobal | ir.EffectReadsMemory) {
		// Another iteration could observe a different value.
		return false
	}
	for idx := range fx.LocalsRead {
		if info.defs[idx] != 0 {
			return false
		}
	}
	return true
}
