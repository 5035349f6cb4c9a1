package passes

import "github.com/woptproject/wopt/ir"

// mergeBlocks flattens nested blocks: an unlabeled child block is
// spliced into its parent's list, and a block whose single child has
// the same type collapses to that child. Run remove-unused-names
// first to strip labels nothing targets.
type mergeBlocks struct{}

func init() {
	Register("merge-blocks", func() Pass { return mergeBlocks{} })
}

func (mergeBlocks) Name() string { return "merge-blocks" }

func (p mergeBlocks) Run(m *ir.Module) {
	for _, fn := range m.Functions {
		if fn.Body != nil {
			ir.WalkPost(&fn.Body, p.merge)
		}
	}
}

// spliceable reports whether a child block can dissolve into its
// parent: it has no label and yields no value, unless it is the
// parent's tail, in which case it may yield one.
func spliceable(c *ir.Expr, isTail bool) bool {
	if c.Kind != ir.KindBlock || c.Name != "" {
		return false
	}
	if isTail && c.Type.IsConcrete() {
		// Splicing the tail is fine: its own tail becomes the
		// parent's tail with the same type.
		return true
	}
	return !c.Type.IsConcrete()
}

func (p mergeBlocks) merge(slot **ir.Expr) {
	e := *slot
	if e.Kind != ir.KindBlock {
		return
	}

	changed := false
	for _, c := range e.List {
		if spliceable(c, false) {
			changed = true
			break
		}
	}
	if changed {
		merged := make([]*ir.Expr, 0, len(e.List))
		for i, c := range e.List {
			if spliceable(c, i == len(e.List)-1) {
				merged = append(merged, c.List...)
			} else {
				merged = append(merged, c)
			}
		}
		e.List = merged
	}

	// A block with a single child of the same type and no label is
	// the child.
	if e.Name == "" && len(e.List) == 1 && e.List[0].Type == e.Type {
		*slot = e.List[0]
	}
}
