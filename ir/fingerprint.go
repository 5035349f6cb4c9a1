package ir

import (
	"fmt"
	"strings"
)

// Fingerprint renders an expression to a canonical string: two
// expressions are syntactically identical iff their fingerprints are
// equal. Used by common-subexpression matching and structural
// comparisons in tests.
func Fingerprint(e *Expr) string {
	var sb strings.Builder
	fingerprint(e, &sb)
	return sb.String()
}

func fingerprint(e *Expr, sb *strings.Builder) {
	fmt.Fprintf(sb, "(%s:%d", e.Kind, uint64(e.Type))
	switch e.Kind {
	case KindConst:
		fmt.Fprintf(sb, " %d:%d", uint64(e.Lit.Type), e.Lit.Bits)
	case KindUnary:
		fmt.Fprintf(sb, " u%d", e.Unop)
	case KindBinary:
		fmt.Fprintf(sb, " b%d", e.Binop)
	case KindBlock, KindLoop:
		fmt.Fprintf(sb, " %q", e.Name)
	case KindBreak:
		fmt.Fprintf(sb, " %q", e.Target)
	case KindSwitch:
		fmt.Fprintf(sb, " %q%q", e.Targets, e.Default)
	case KindCall:
		fmt.Fprintf(sb, " %q", e.Target)
	case KindCallIndirect:
		fmt.Fprintf(sb, " s%d", uint64(e.Sig))
	case KindLocalGet, KindLocalSet, KindLocalTee, KindGlobalGet, KindGlobalSet:
		fmt.Fprintf(sb, " i%d", e.Index)
	case KindLoad:
		fmt.Fprintf(sb, " m%d,%v,%d,%d", e.Bytes, e.Signed, e.Offset, e.Align)
	case KindStore:
		fmt.Fprintf(sb, " m%d,%d,%d", e.Bytes, e.Offset, e.Align)
	}
	e.EachChild(func(slot **Expr) {
		sb.WriteByte(' ')
		fingerprint(*slot, sb)
	})
	sb.WriteByte(')')
}

// StructurallyEqual reports whether two expressions have identical
// shape, operators, and immediates.
func StructurallyEqual(a, b *Expr) bool {
	return Fingerprint(a) == Fingerprint(b)
}
