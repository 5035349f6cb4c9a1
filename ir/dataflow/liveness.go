package dataflow

import "github.com/willf/bitset"

// Liveness holds, for every basic block, the sets of locals live on
// entry and on exit, computed by backward dataflow to a fixed point.
type Liveness struct {
	LiveIn  []*bitset.BitSet // indexed by block ID
	LiveOut []*bitset.BitSet

	use []*bitset.BitSet
	def []*bitset.BitSet
}

// BuildLiveness computes liveness over a CFG for a function with the
// given number of locals (parameters included).
func BuildLiveness(g *CFG, numLocals int) *Liveness {
	n := len(g.Blocks)
	l := &Liveness{
		LiveIn:  make([]*bitset.BitSet, n),
		LiveOut: make([]*bitset.BitSet, n),
		use:     make([]*bitset.BitSet, n),
		def:     make([]*bitset.BitSet, n),
	}
	for i := 0; i < n; i++ {
		l.LiveIn[i] = bitset.New(uint(numLocals))
		l.LiveOut[i] = bitset.New(uint(numLocals))
		l.use[i] = bitset.New(uint(numLocals))
		l.def[i] = bitset.New(uint(numLocals))
	}

	// Per-block gen/kill: a read before any write generates, a write
	// kills.
	for _, b := range g.Blocks {
		use, def := l.use[b.ID], l.def[b.ID]
		for _, a := range b.Actions {
			i := uint(a.Index)
			if a.IsGet {
				if !def.Test(i) {
					use.Set(i)
				}
			} else {
				def.Set(i)
			}
		}
	}

	changed := true
	for changed {
		changed = false
		for i := len(g.Blocks) - 1; i >= 0; i-- {
			b := g.Blocks[i]

			out := bitset.New(uint(numLocals))
			for _, s := range b.Succs {
				out.InPlaceUnion(l.LiveIn[s.ID])
			}

			in := out.Difference(l.def[b.ID])
			in.InPlaceUnion(l.use[b.ID])

			if !out.Equal(l.LiveOut[b.ID]) || !in.Equal(l.LiveIn[b.ID]) {
				l.LiveOut[b.ID] = out
				l.LiveIn[b.ID] = in
				changed = true
			}
		}
	}
	return l
}

// LiveAtEntry reports whether local i is live on entry to block b.
func (l *Liveness) LiveAtEntry(b *BasicBlock, i uint32) bool {
	return l.LiveIn[b.ID].Test(uint(i))
}

// LiveAtExit reports whether local i is live on exit from block b.
func (l *Liveness) LiveAtExit(b *BasicBlock, i uint32) bool {
	return l.LiveOut[b.ID].Test(uint(i))
}

// Interference is a symmetric conflict relation between locals whose
// live ranges overlap.
type Interference struct {
	matrix []*bitset.BitSet
}

// BuildInterference derives the conflict graph used by local
// coalescing: at every definition, the defined local conflicts with
// everything live at that point.
func BuildInterference(g *CFG, l *Liveness, numLocals int) *Interference {
	ig := &Interference{matrix: make([]*bitset.BitSet, numLocals)}
	for i := range ig.matrix {
		ig.matrix[i] = bitset.New(uint(numLocals))
	}

	for _, b := range g.Blocks {
		live := l.LiveOut[b.ID].Clone()
		for i := len(b.Actions) - 1; i >= 0; i-- {
			a := b.Actions[i]
			if a.IsGet {
				live.Set(uint(a.Index))
				continue
			}
			for j, ok := live.NextSet(0); ok; j, ok = live.NextSet(j + 1) {
				ig.add(a.Index, uint32(j))
			}
			live.Clear(uint(a.Index))
		}
	}
	return ig
}

func (ig *Interference) add(a, b uint32) {
	if a == b {
		return
	}
	ig.matrix[a].Set(uint(b))
	ig.matrix[b].Set(uint(a))
}

// Interferes reports whether two locals conflict.
func (ig *Interference) Interferes(a, b uint32) bool {
	return ig.matrix[a].Test(uint(b))
}
