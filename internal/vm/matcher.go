package vm

import "github.com/standardbeagle/depq/internal/tree"

// Match is one successful binding of a Program's variables to tokens of a
// Tree, indexed the same way as Program.VarNames.
type Match struct {
	Bindings []tree.Index
}

// Token resolves the binding for the variable at varIndex.
func (m Match) Token(varIndex int) tree.Index {
	return m.Bindings[varIndex]
}

type choicePoint struct {
	resumeIP      int
	savedBindings []tree.Index
	savedPos      []tree.Index
	alternatives  []tree.Index
}

// Matcher enumerates a Program's matches against one Tree in leftmost-
// canonical order: candidates for the anchor are tried in position order,
// and within each candidate every further choice (child, descendant,
// whole-tree scan) is tried in position order too, deepest pending choice
// first.
type Matcher struct {
	prog       *Program
	t          *tree.Tree
	candidates []tree.Index
	candIdx    int

	active   bool
	resuming bool

	ip       int
	current  tree.Index
	bindings []tree.Index
	cps      []choicePoint
	posStack []tree.Index
}

// NewMatcher prepares a Matcher. The anchor candidate list is computed
// eagerly since it only requires one pass over the tree's tokens.
func NewMatcher(prog *Program, t *tree.Tree) *Matcher {
	m := &Matcher{prog: prog, t: t}
	for i := range t.Tokens {
		idx := tree.Index(i)
		if checkAll(prog.AnchorChecks, t, idx) {
			m.candidates = append(m.candidates, idx)
		}
	}
	return m
}

func (m *Matcher) startCandidate() bool {
	if m.candIdx >= len(m.candidates) {
		return false
	}
	m.current = m.candidates[m.candIdx]
	m.candIdx++
	m.bindings = make([]tree.Index, len(m.prog.VarNames))
	for i := range m.bindings {
		m.bindings[i] = tree.NoIndex
	}
	m.ip = 0
	m.cps = m.cps[:0]
	m.posStack = m.posStack[:0]
	m.active = true
	return true
}

func (m *Matcher) pushChoice(alternatives []tree.Index) {
	if len(alternatives) == 0 {
		return
	}
	m.cps = append(m.cps, choicePoint{
		resumeIP:      m.ip + 1,
		savedBindings: append([]tree.Index(nil), m.bindings...),
		savedPos:      append([]tree.Index(nil), m.posStack...),
		alternatives:  alternatives,
	})
}

// backtrack pops the innermost choice point with a remaining alternative
// and resumes execution there. It returns false once no choice point
// remains for the current anchor candidate.
func (m *Matcher) backtrack() bool {
	for len(m.cps) > 0 {
		cp := &m.cps[len(m.cps)-1]
		if len(cp.alternatives) == 0 {
			m.cps = m.cps[:len(m.cps)-1]
			continue
		}
		next := cp.alternatives[0]
		cp.alternatives = cp.alternatives[1:]
		m.current = next
		m.bindings = append([]tree.Index(nil), cp.savedBindings...)
		m.posStack = append([]tree.Index(nil), cp.savedPos...)
		m.ip = cp.resumeIP
		if len(cp.alternatives) == 0 {
			m.cps = m.cps[:len(m.cps)-1]
		}
		return true
	}
	return false
}

// NextMatch runs the program until it produces a Match or exhausts every
// anchor candidate. Call it repeatedly to enumerate all matches.
func (m *Matcher) NextMatch() (Match, bool) {
	if m.resuming {
		m.resuming = false
		if !m.backtrack() {
			m.active = false
		}
	}

	for {
		if !m.active {
			if !m.startCandidate() {
				return Match{}, false
			}
		}

		instr := m.prog.Instrs[m.ip]
		switch instr.Op {
		case OpMatch:
			result := Match{Bindings: append([]tree.Index(nil), m.bindings...)}
			m.resuming = true
			return result, true

		case OpFail:
			if !m.backtrack() {
				m.active = false
			}

		case OpBind:
			m.bindings[instr.Var] = m.current
			m.ip++

		case OpCheck:
			if checkAll(instr.Checks, m.t, m.current) {
				m.ip++
			} else if !m.backtrack() {
				m.active = false
			}

		case OpPushPos:
			m.posStack = append(m.posStack, m.current)
			m.ip++

		case OpRestorePos:
			n := len(m.posStack)
			m.current = m.posStack[n-1]
			m.posStack = m.posStack[:n-1]
			m.ip++

		case OpMoveToParent:
			p := m.t.Parent(m.current)
			if p == tree.NoIndex {
				if !m.backtrack() {
					m.active = false
				}
				continue
			}
			m.current = p
			m.ip++

		case OpMoveToChild:
			matches := filterSorted(m.t.Children(m.current), instr.Checks, m.t)
			if len(matches) == 0 {
				if !m.backtrack() {
					m.active = false
				}
				continue
			}
			m.pushChoice(matches[1:])
			m.current = matches[0]
			m.ip++

		case OpScanAllTokens:
			matches := scanAllTokens(m.t, instr.Checks)
			if len(matches) == 0 {
				if !m.backtrack() {
					m.active = false
				}
				continue
			}
			m.pushChoice(matches[1:])
			m.current = matches[0]
			m.ip++

		case OpScanDescendants:
			limit := m.prog.DepthLimit
			if limit <= 0 {
				limit = DefaultDepthLimit
			}
			matches := scanDescendants(m.t, m.current, instr.Checks, limit)
			if len(matches) == 0 {
				if !m.backtrack() {
					m.active = false
				}
				continue
			}
			m.pushChoice(matches[1:])
			m.current = matches[0]
			m.ip++

		case OpScanAncestors:
			limit := m.prog.DepthLimit
			if limit <= 0 {
				limit = DefaultDepthLimit
			}
			anc, ok := scanAncestors(m.t, m.current, instr.Checks, limit)
			if !ok {
				if !m.backtrack() {
					m.active = false
				}
				continue
			}
			m.current = anc
			m.ip++

		case OpCheckPrecedes:
			if checkPrecedes(m.bindings[instr.Var], m.bindings[instr.Var2], instr.StrictImmediate) {
				m.ip++
			} else if !m.backtrack() {
				m.active = false
			}

		case OpCheckEdge:
			if checkEdge(m.t, m.bindings[instr.Var], m.bindings[instr.Var2], instr.HasLabel, instr.Label) {
				m.ip++
			} else if !m.backtrack() {
				m.active = false
			}
		}
	}
}
