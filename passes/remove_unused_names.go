package passes

import "github.com/woptproject/wopt/ir"

// removeUnusedNames strips block and loop labels that no branch
// targets, which unlocks merge-blocks.
type removeUnusedNames struct{}

func init() {
	Register("remove-unused-names", func() Pass { return removeUnusedNames{} })
}

func (removeUnusedNames) Name() string { return "remove-unused-names" }

func (p removeUnusedNames) Run(m *ir.Module) {
	for _, fn := range m.Functions {
		if fn.Body == nil {
			continue
		}

		targeted := make(map[string]struct{})
		collect := ir.VisitorFunc(func(slot **ir.Expr) ir.Action {
			e := *slot
			switch e.Kind {
			case ir.KindBreak:
				targeted[e.Target] = struct{}{}
			case ir.KindSwitch:
				for _, t := range e.Targets {
					targeted[t] = struct{}{}
				}
				targeted[e.Default] = struct{}{}
			}
			return ir.Continue
		})
		ir.WalkFunction(fn, collect)

		strip := ir.VisitorFunc(func(slot **ir.Expr) ir.Action {
			e := *slot
			if e.Kind == ir.KindBlock || e.Kind == ir.KindLoop {
				if _, used := targeted[e.Name]; !used {
					e.Name = ""
				}
			}
			return ir.Continue
		})
		ir.WalkFunction(fn, strip)
	}
}
