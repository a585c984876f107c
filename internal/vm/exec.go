package vm

import (
	"sort"

	"github.com/standardbeagle/depq/internal/symtab"
	"github.com/standardbeagle/depq/internal/tree"
)

func checkAll(checks []Check, t *tree.Tree, idx tree.Index) bool {
	for _, c := range checks {
		if !checkOne(c, t, idx) {
			return false
		}
	}
	return true
}

func checkOne(c Check, t *tree.Tree, idx tree.Index) bool {
	tok := &t.Tokens[idx]
	var ok bool
	switch c.Kind {
	case CkLemma:
		ok = tok.Lemma == c.Sym
	case CkForm:
		ok = tok.Form == c.Sym
	case CkUPOS:
		ok = tok.UPOS == c.Sym
	case CkXPOS:
		ok = tok.XPOS == c.Sym
	case CkDepRel:
		ok = tok.DepRel == c.Sym
	case CkFeature:
		for _, fp := range tok.Feats {
			if fp.Key == c.Key && fp.Val == c.Sym {
				ok = true
				break
			}
		}
	case CkHasIncoming:
		ok = hasIncoming(t, idx, c)
	case CkHasOutgoing:
		ok = hasOutgoing(t, idx, c)
	case CkAbsentIncoming:
		ok = !hasIncoming(t, idx, c)
	case CkAbsentOutgoing:
		ok = !hasOutgoing(t, idx, c)
	}
	if c.Negate {
		return !ok
	}
	return ok
}

func hasIncoming(t *tree.Tree, idx tree.Index, c Check) bool {
	p := t.Parent(idx)
	if p == tree.NoIndex {
		return false
	}
	if !c.HasLabel {
		return true
	}
	return t.Tokens[idx].DepRel == c.Sym
}

func hasOutgoing(t *tree.Tree, idx tree.Index, c Check) bool {
	for _, ch := range t.Children(idx) {
		if !c.HasLabel {
			return true
		}
		if t.Tokens[ch].DepRel == c.Sym {
			return true
		}
	}
	return false
}

func filterSorted(indices []tree.Index, checks []Check, t *tree.Tree) []tree.Index {
	var out []tree.Index
	for _, idx := range indices {
		if checkAll(checks, t, idx) {
			out = append(out, idx)
		}
	}
	return out
}

func scanAllTokens(t *tree.Tree, checks []Check) []tree.Index {
	var out []tree.Index
	for i := range t.Tokens {
		idx := tree.Index(i)
		if checkAll(checks, t, idx) {
			out = append(out, idx)
		}
	}
	return out
}

// scanDescendants runs a depth-bounded breadth-first search over from's
// descendants and returns the matches at the shallowest depth with at
// least one, ordered by position. A depth limit of zero or less disables
// the scan entirely.
func scanDescendants(t *tree.Tree, from tree.Index, checks []Check, depthLimit int) []tree.Index {
	if depthLimit <= 0 {
		return nil
	}
	visited := map[tree.Index]bool{from: true}
	level := append([]tree.Index(nil), t.Children(from)...)
	for _, idx := range level {
		visited[idx] = true
	}
	for depth := 1; len(level) > 0 && depth <= depthLimit; depth++ {
		matches := filterSorted(level, checks, t)
		if len(matches) > 0 {
			sort.Slice(matches, func(a, b int) bool { return matches[a] < matches[b] })
			return matches
		}
		var next []tree.Index
		for _, idx := range level {
			for _, c := range t.Children(idx) {
				if !visited[c] {
					visited[c] = true
					next = append(next, c)
				}
			}
		}
		level = next
	}
	return nil
}

// scanAncestors walks the parent chain, bounded by depthLimit, and returns
// the closest ancestor matching checks. It never produces more than one
// result: there is exactly one parent chain, so no choice point is needed.
func scanAncestors(t *tree.Tree, from tree.Index, checks []Check, depthLimit int) (tree.Index, bool) {
	cur := from
	for d := 1; d <= depthLimit; d++ {
		p := t.Parent(cur)
		if p == tree.NoIndex {
			return tree.NoIndex, false
		}
		if checkAll(checks, t, p) {
			return p, true
		}
		cur = p
	}
	return tree.NoIndex, false
}

func checkPrecedes(before, after tree.Index, strict bool) bool {
	if before == tree.NoIndex || after == tree.NoIndex {
		return false
	}
	if strict {
		return after == before+1
	}
	return before < after
}

func checkEdge(t *tree.Tree, fromIdx, toIdx tree.Index, hasLabel bool, label symtab.Symbol) bool {
	if t.Parent(toIdx) != fromIdx {
		return false
	}
	if !hasLabel {
		return true
	}
	return t.Tokens[toIdx].DepRel == label
}
