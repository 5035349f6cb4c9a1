package ir

// Effects is a bitmask of the observable behaviors an expression may
// have. Passes consult it before any reordering, elimination, or
// motion.
type Effects uint32

const (
	EffectReadsLocal Effects = 1 << iota
	EffectWritesLocal
	EffectReadsGlobal
	EffectWritesGlobal
	EffectReadsMemory
	EffectWritesMemory
	EffectCalls
	EffectMayTrap
	EffectTraps // definitely traps (unreachable)
	EffectBranches
	EffectReturns
	EffectOther // catch-all for anything else observable

	effectsWrites    = EffectWritesLocal | EffectWritesGlobal | EffectWritesMemory
	effectsTransfers = EffectBranches | EffectReturns | EffectTraps
)

// Has reports whether all the given flags are set.
func (e Effects) Has(f Effects) bool {
	return e&f == f
}

// Intersects reports whether any of the given flags are set.
func (e Effects) Intersects(f Effects) bool {
	return e&f != 0
}

// TransfersControl reports whether evaluation may not fall through.
func (e Effects) TransfersControl() bool {
	return e.Intersects(effectsTransfers)
}

// HasSideEffects reports whether removing the expression could change
// program behavior. Reads alone are not side effects; a possible trap
// is.
func (e Effects) HasSideEffects() bool {
	return e.Intersects(effectsWrites | EffectCalls | EffectMayTrap | EffectOther | effectsTransfers)
}

// EffectSet is the analysis result for one expression: the flag mask
// plus bookkeeping of which locals are touched and which labels are
// branched to.
type EffectSet struct {
	Flags Effects

	LocalsRead    map[uint32]struct{}
	LocalsWritten map[uint32]struct{}

	// BranchTargets holds labels of breaks that escape the analyzed
	// expression. Branches fully contained in an analyzed block are
	// not visible to its parent.
	BranchTargets map[string]struct{}
}

// Pure reports whether the expression has no effects at all, reads
// included.
func (s *EffectSet) Pure() bool {
	return s.Flags == 0
}

// HasSideEffects reports whether the expression cannot be removed.
func (s *EffectSet) HasSideEffects() bool {
	return s.Flags.HasSideEffects()
}

// TransfersControl reports whether evaluation may not fall through.
func (s *EffectSet) TransfersControl() bool {
	return s.Flags.TransfersControl()
}

func (s *EffectSet) readsOrWritesLocal(i uint32) bool {
	if _, ok := s.LocalsRead[i]; ok {
		return true
	}
	_, ok := s.LocalsWritten[i]
	return ok
}

// InterferesWith reports whether the two expressions cannot be
// reordered. A call is treated as an opaque read and write of memory,
// globals, and every local.
func (s *EffectSet) InterferesWith(o *EffectSet) bool {
	a, b := s.expanded(), o.expanded()

	// Memory and global state: a write on one side conflicts with a
	// read or write on the other.
	if a.Intersects(EffectWritesMemory) && b.Intersects(EffectReadsMemory|EffectWritesMemory) {
		return true
	}
	if b.Intersects(EffectWritesMemory) && a.Intersects(EffectReadsMemory|EffectWritesMemory) {
		return true
	}
	if a.Intersects(EffectWritesGlobal) && b.Intersects(EffectReadsGlobal|EffectWritesGlobal) {
		return true
	}
	if b.Intersects(EffectWritesGlobal) && a.Intersects(EffectReadsGlobal|EffectWritesGlobal) {
		return true
	}

	// Locals, index-precise unless a call is involved.
	if s.Flags.Intersects(EffectCalls) || o.Flags.Intersects(EffectCalls) {
		if a.Intersects(EffectWritesLocal) && b.Intersects(EffectReadsLocal|EffectWritesLocal) {
			return true
		}
		if b.Intersects(EffectWritesLocal) && a.Intersects(EffectReadsLocal|EffectWritesLocal) {
			return true
		}
	} else {
		for i := range s.LocalsWritten {
			if o.readsOrWritesLocal(i) {
				return true
			}
		}
		for i := range o.LocalsWritten {
			if s.readsOrWritesLocal(i) {
				return true
			}
		}
	}

	// A possible trap must not move past a control transfer, and vice
	// versa.
	if a.Intersects(EffectMayTrap|EffectTraps) && b.TransfersControl() {
		return true
	}
	if b.Intersects(EffectMayTrap|EffectTraps) && a.TransfersControl() {
		return true
	}

	// Control transfers pin anything with observable behavior.
	if a.TransfersControl() && b.HasSideEffects() {
		return true
	}
	if b.TransfersControl() && a.HasSideEffects() {
		return true
	}

	if a.Intersects(EffectOther) || b.Intersects(EffectOther) {
		return true
	}

	return false
}

func (s *EffectSet) expanded() Effects {
	f := s.Flags
	if f.Intersects(EffectCalls) {
		f |= EffectReadsMemory | EffectWritesMemory |
			EffectReadsGlobal | EffectWritesGlobal |
			EffectReadsLocal | EffectWritesLocal | EffectMayTrap
	}
	return f
}

func (s *EffectSet) readLocal(i uint32) {
	if s.LocalsRead == nil {
		s.LocalsRead = make(map[uint32]struct{})
	}
	s.LocalsRead[i] = struct{}{}
}

func (s *EffectSet) writeLocal(i uint32) {
	if s.LocalsWritten == nil {
		s.LocalsWritten = make(map[uint32]struct{})
	}
	s.LocalsWritten[i] = struct{}{}
}

func (s *EffectSet) branchTo(name string) {
	if s.BranchTargets == nil {
		s.BranchTargets = make(map[string]struct{})
	}
	s.BranchTargets[name] = struct{}{}
}

func (s *EffectSet) merge(o *EffectSet) {
	s.Flags |= o.Flags
	for i := range o.LocalsRead {
		s.readLocal(i)
	}
	for i := range o.LocalsWritten {
		s.writeLocal(i)
	}
	for n := range o.BranchTargets {
		s.branchTo(n)
	}
}

// finishScope removes branches to the scope's own label; if none are
// left and nothing else transfers control, the branch flag is
// dropped.
func (s *EffectSet) finishScope(name string) {
	if name != "" {
		delete(s.BranchTargets, name)
	}
	if len(s.BranchTargets) == 0 {
		s.Flags &^= EffectBranches
	}
}

// EffectAnalyzer computes effect sets. The zero value is ready to
// use. Rigorous makes unknown expression kinds carry every effect;
// the relaxed mode may whitelist operators proven pure.
type EffectAnalyzer struct {
	Rigorous bool
}

// AnalyzeEffects analyzes an expression with a default analyzer.
func AnalyzeEffects(e *Expr) *EffectSet {
	return EffectAnalyzer{Rigorous: true}.Analyze(e)
}

// Analyze computes the aggregate effects of an expression: the union
// of its children's effects plus whatever the operator itself
// contributes.
func (a EffectAnalyzer) Analyze(e *Expr) *EffectSet {
	s := &EffectSet{}
	a.analyze(e, s)
	return s
}

// AnalyzeRange computes the combined effects of a sequence.
func (a EffectAnalyzer) AnalyzeRange(list []*Expr) *EffectSet {
	s := &EffectSet{}
	for _, e := range list {
		a.analyze(e, s)
	}
	return s
}

func (a EffectAnalyzer) analyze(e *Expr, s *EffectSet) {
	switch e.Kind {
	case KindNop, KindConst:

	case KindUnreachable:
		s.Flags |= EffectTraps

	case KindBlock:
		sub := a.AnalyzeRange(e.List)
		sub.finishScope(e.Name)
		s.merge(sub)
		return

	case KindLoop:
		sub := a.Analyze(e.Body)
		sub.finishScope(e.Name)
		s.merge(sub)
		return

	case KindIf:
		a.analyze(e.Cond, s)
		a.analyze(e.IfTrue, s)
		if e.IfFalse != nil {
			a.analyze(e.IfFalse, s)
		}
		return

	case KindBreak:
		s.Flags |= EffectBranches
		s.branchTo(e.Target)

	case KindSwitch:
		s.Flags |= EffectBranches
		for _, t := range e.Targets {
			s.branchTo(t)
		}
		s.branchTo(e.Default)

	case KindReturn:
		s.Flags |= EffectReturns

	case KindCall:
		s.Flags |= EffectCalls

	case KindCallIndirect:
		s.Flags |= EffectCalls | EffectMayTrap

	case KindLocalGet:
		s.Flags |= EffectReadsLocal
		s.readLocal(e.Index)

	case KindLocalSet, KindLocalTee:
		s.Flags |= EffectWritesLocal
		s.writeLocal(e.Index)

	case KindGlobalGet:
		s.Flags |= EffectReadsGlobal

	case KindGlobalSet:
		s.Flags |= EffectWritesGlobal

	case KindLoad:
		s.Flags |= EffectReadsMemory | EffectMayTrap

	case KindStore:
		s.Flags |= EffectWritesMemory | EffectMayTrap

	case KindUnary:
		if e.Unop.MayTrap() {
			s.Flags |= EffectMayTrap
		}

	case KindBinary:
		if e.Binop.MayTrap() {
			s.Flags |= EffectMayTrap
		}

	case KindSelect, KindDrop:

	case KindMemorySize:
		s.Flags |= EffectReadsMemory

	case KindMemoryGrow:
		s.Flags |= EffectReadsMemory | EffectWritesMemory | EffectOther

	case KindMemoryCopy, KindMemoryFill:
		s.Flags |= EffectReadsMemory | EffectWritesMemory | EffectMayTrap

	default:
		if a.Rigorous {
			s.Flags |= ^Effects(0)
		} else {
			s.Flags |= EffectOther
		}
	}

	e.EachChild(func(slot **Expr) {
		a.analyze(*slot, s)
	})
}
