// Package vm executes compiled patterns against a tree.Tree. A Program is a
// flat instruction stream with explicit choice points for backtracking; it
// never recurses.
package vm

import "github.com/standardbeagle/depq/internal/symtab"

// CheckKind identifies what a Check tests against the current token.
type CheckKind int

const (
	CkLemma CheckKind = iota
	CkForm
	CkUPOS
	CkXPOS
	CkDepRel
	CkFeature
	CkHasIncoming
	CkHasOutgoing
	CkAbsentIncoming
	CkAbsentOutgoing
)

// Check is one leaf test against the current token. For CkFeature, Key is
// the feats key and Sym is the expected value. For the edge-presence kinds,
// HasLabel false means "any edge regardless of label"; Negate is always
// false on those, since the kind itself already encodes polarity (Has vs
// Absent) — Negate only carries the `!=` of an attribute leaf.
type Check struct {
	Kind     CheckKind
	Sym      symtab.Symbol
	Key      symtab.Symbol
	Negate   bool
	HasLabel bool
}

// Op identifies one bytecode instruction.
type Op int

const (
	// OpBind records the current token as the binding for Instr.Var.
	OpBind Op = iota
	// OpCheck runs Instr.Checks against the current token without moving
	// it or creating a choice point; used after OpMoveToParent (which is
	// deterministic and unfiltered).
	OpCheck
	// OpMoveToParent moves current to its parent. Fails (no parent) at
	// the root.
	OpMoveToParent
	// OpMoveToChild enumerates current's children satisfying Instr.Checks,
	// in position order; moves current to the first and pushes the rest as
	// a choice point.
	OpMoveToChild
	// OpScanDescendants performs a depth-bounded breadth-first search over
	// current's descendants, returning the matches at the shallowest
	// depth with at least one, in position order. Pushes the remainder as
	// a choice point.
	OpScanDescendants
	// OpScanAncestors walks the parent chain, bounded by the same depth
	// limit, and deterministically moves current to the closest matching
	// ancestor.
	// It never creates a choice point.
	OpScanAncestors
	// OpScanAllTokens enumerates every token of the tree, in position
	// order, satisfying Instr.Checks; used to discover a variable reached
	// only via a precedence edge, with no structural path from the
	// already-bound side. Pushes the remainder as a choice point.
	OpScanAllTokens
	// OpCheckPrecedes verifies that the token bound to Instr.Var comes
	// before the token bound to Instr.Var2. It reads both bindings
	// directly, so it runs equally well right after a discovery step or
	// as a post-hoc check between two variables bound along separate
	// paths. StrictImmediate requires adjacency instead of mere order.
	OpCheckPrecedes
	// OpCheckEdge verifies that the token bound to Instr.Var2 is a literal
	// child of the token bound to Instr.Var (optionally with a specific
	// deprel label); used for a structural edge that duplicates one
	// already implied by the traversal tree.
	OpCheckEdge
	// OpPushPos saves the current token onto the position stack.
	OpPushPos
	// OpRestorePos pops the position stack into the current token.
	OpRestorePos
	// OpMatch emits the current bindings as a match, then triggers
	// backtracking to look for further matches from the same anchor
	// candidate.
	OpMatch
	// OpFail unconditionally fails, triggering backtracking. The compiler
	// never emits this by itself; it exists for completeness and for
	// hand-written VM-level tests.
	OpFail
)

// Instr is one bytecode instruction. Not every field is meaningful for
// every Op; see the Op doc comments above.
type Instr struct {
	Op              Op
	Checks          []Check
	Var             int
	Var2            int
	Label           symtab.Symbol
	HasLabel        bool
	StrictImmediate bool
}

// Program is a compiled pattern: a bytecode stream plus the anchor's own
// constraint (checked by the outer driver, not the bytecode) and the
// variable-name table needed to present bindings to a caller.
type Program struct {
	Instrs       []Instr
	AnchorChecks []Check
	VarNames     []string // index -> declared name, in VarOrder
	DepthLimit   int       // bound for OpScanDescendants / OpScanAncestors
}

// DefaultDepthLimit bounds descendant/ancestor scans when a Program does
// not set one explicitly.
const DefaultDepthLimit = 7
