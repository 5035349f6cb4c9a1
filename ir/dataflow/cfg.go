// Package dataflow derives control-flow and data-flow analyses from
// the IR. Analyses are pure functions of the tree at construction
// time: a pass that mutates the IR must rebuild what it depends on.
package dataflow

import "github.com/woptproject/wopt/ir"

// Action is one local-variable access in evaluation order.
type Action struct {
	IsGet  bool
	Index  uint32
	Origin *ir.Expr
}

// BasicBlock is a maximal straight-line region. Actions record the
// local accesses performed inside it, in order.
type BasicBlock struct {
	ID      int
	Actions []Action
	Succs   []*BasicBlock
	Preds   []*BasicBlock
}

// CFG is the control-flow graph of one function body. Entry is the
// first block; Exit is a synthetic block reached by returns,
// unreachable, and falling off the body.
type CFG struct {
	Blocks []*BasicBlock
	Entry  *BasicBlock
	Exit   *BasicBlock
}

type cfgBuilder struct {
	g       *CFG
	cur     *BasicBlock
	targets map[string]*BasicBlock
}

// BuildCFG linearizes a function body into basic blocks.
func BuildCFG(fn *ir.Function) *CFG {
	b := &cfgBuilder{
		g:       &CFG{},
		targets: make(map[string]*BasicBlock),
	}
	b.g.Entry = b.newBlock()
	b.cur = b.g.Entry
	b.g.Exit = b.newBlock()

	if fn.Body != nil {
		b.walk(fn.Body)
	}
	if b.cur != nil {
		link(b.cur, b.g.Exit)
	}
	return b.g
}

func (b *cfgBuilder) newBlock() *BasicBlock {
	blk := &BasicBlock{ID: len(b.g.Blocks)}
	b.g.Blocks = append(b.g.Blocks, blk)
	return blk
}

func link(from, to *BasicBlock) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// ensure gives dead code after a control transfer its own
// (unreachable) block so linearization can continue.
func (b *cfgBuilder) ensure() *BasicBlock {
	if b.cur == nil {
		b.cur = b.newBlock()
	}
	return b.cur
}

func (b *cfgBuilder) walk(e *ir.Expr) {
	switch e.Kind {
	case ir.KindBlock:
		var cont *BasicBlock
		if e.Name != "" {
			cont = b.newBlock()
			prev, shadowed := b.targets[e.Name]
			b.targets[e.Name] = cont
			defer func() {
				if shadowed {
					b.targets[e.Name] = prev
				} else {
					delete(b.targets, e.Name)
				}
			}()
		}
		for _, child := range e.List {
			b.walk(child)
		}
		if cont != nil {
			if b.cur != nil {
				link(b.cur, cont)
			}
			b.cur = cont
		}

	case ir.KindLoop:
		header := b.newBlock()
		link(b.ensure(), header)
		b.cur = header
		if e.Name != "" {
			prev, shadowed := b.targets[e.Name]
			b.targets[e.Name] = header
			defer func() {
				if shadowed {
					b.targets[e.Name] = prev
				} else {
					delete(b.targets, e.Name)
				}
			}()
		}
		b.walk(e.Body)

	case ir.KindIf:
		b.walk(e.Cond)
		condBlock := b.ensure()
		join := b.newBlock()

		thenBlock := b.newBlock()
		link(condBlock, thenBlock)
		b.cur = thenBlock
		b.walk(e.IfTrue)
		if b.cur != nil {
			link(b.cur, join)
		}

		if e.IfFalse != nil {
			elseBlock := b.newBlock()
			link(condBlock, elseBlock)
			b.cur = elseBlock
			b.walk(e.IfFalse)
			if b.cur != nil {
				link(b.cur, join)
			}
		} else {
			link(condBlock, join)
		}
		b.cur = join

	case ir.KindBreak:
		if e.Value != nil {
			b.walk(e.Value)
		}
		if e.Cond != nil {
			b.walk(e.Cond)
		}
		from := b.ensure()
		if target, ok := b.targets[e.Target]; ok {
			link(from, target)
		}
		if e.Cond != nil {
			next := b.newBlock()
			link(from, next)
			b.cur = next
		} else {
			b.cur = nil
		}

	case ir.KindSwitch:
		if e.Value != nil {
			b.walk(e.Value)
		}
		b.walk(e.Cond)
		from := b.ensure()
		seen := make(map[*BasicBlock]bool)
		for _, name := range append(append([]string{}, e.Targets...), e.Default) {
			if target, ok := b.targets[name]; ok && !seen[target] {
				seen[target] = true
				link(from, target)
			}
		}
		b.cur = nil

	case ir.KindReturn:
		if e.Value != nil {
			b.walk(e.Value)
		}
		link(b.ensure(), b.g.Exit)
		b.cur = nil

	case ir.KindUnreachable:
		link(b.ensure(), b.g.Exit)
		b.cur = nil

	case ir.KindLocalGet:
		blk := b.ensure()
		blk.Actions = append(blk.Actions, Action{IsGet: true, Index: e.Index, Origin: e})

	case ir.KindLocalSet, ir.KindLocalTee:
		b.walk(e.Value)
		blk := b.ensure()
		blk.Actions = append(blk.Actions, Action{Index: e.Index, Origin: e})

	default:
		e.EachChild(func(slot **ir.Expr) {
			b.walk(*slot)
		})
	}
}
