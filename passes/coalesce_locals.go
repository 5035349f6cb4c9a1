package passes

import (
	"github.com/woptproject/wopt/ir"
	"github.com/woptproject/wopt/ir/dataflow"
	"github.com/woptproject/wopt/wasm"
)

// coalesceLocals merges locals whose live ranges never overlap,
// shrinking the local count. Parameters keep their indices; declared
// locals are greedily colored against the interference graph.
type coalesceLocals struct{}

func init() {
	Register("coalesce-locals", func() Pass { return coalesceLocals{} })
}

func (coalesceLocals) Name() string { return "coalesce-locals" }

func (p coalesceLocals) Run(m *ir.Module) {
	for _, fn := range m.Functions {
		if fn.Body == nil || len(fn.Vars) == 0 {
			continue
		}
		p.color(fn)
	}
}

func (p coalesceLocals) color(fn *ir.Function) {
	g := dataflow.BuildCFG(fn)
	live := dataflow.BuildLiveness(g, fn.NumLocals())
	conflicts := dataflow.BuildInterference(g, live, fn.NumLocals())

	numParams := uint32(fn.NumParams())
	numLocals := uint32(fn.NumLocals())

	params := fn.ParamTypes()
	typeOf := func(i uint32) wasm.Type {
		if i < numParams {
			return params[i]
		}
		return fn.Vars[i-numParams]
	}

	// remap[old] = new index. Parameters map to themselves.
	remap := make([]uint32, numLocals)
	// members[new] = old indices sharing that slot.
	members := make(map[uint32][]uint32)
	var newVars []wasm.Type

	for i := uint32(0); i < numParams; i++ {
		remap[i] = i
		members[i] = []uint32{i}
	}

	nextSlot := numParams
	for old := numParams; old < numLocals; old++ {
		assigned := false
		for slot := uint32(0); slot < nextSlot; slot++ {
			if slotType(slot, numParams, params, newVars) != typeOf(old) {
				continue
			}
			ok := true
			for _, other := range members[slot] {
				if conflicts.Interferes(old, other) {
					ok = false
					break
				}
			}
			if ok {
				remap[old] = slot
				members[slot] = append(members[slot], old)
				assigned = true
				break
			}
		}
		if !assigned {
			remap[old] = nextSlot
			members[nextSlot] = []uint32{old}
			newVars = append(newVars, typeOf(old))
			nextSlot++
		}
	}

	if len(newVars) == len(fn.Vars) {
		changed := false
		for i := range remap {
			if remap[i] != uint32(i) {
				changed = true
				break
			}
		}
		if !changed {
			return
		}
	}

	fn.Vars = newVars
	rewrite := ir.VisitorFunc(func(slot **ir.Expr) ir.Action {
		e := *slot
		switch e.Kind {
		case ir.KindLocalGet, ir.KindLocalSet, ir.KindLocalTee:
			e.Index = remap[e.Index]
		}
		return ir.Continue
	})
	ir.WalkFunction(fn, rewrite)
}

func slotType(slot, numParams uint32, params []wasm.Type, newVars []wasm.Type) wasm.Type {
	if slot < numParams {
		return params[slot]
	}
	return newVars[slot-numParams]
}
