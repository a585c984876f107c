// Package tree holds the in-memory representation of one parsed sentence:
// an ordered token list plus the parent/child graph linked from the head
// field of the source record.
package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/standardbeagle/depq/internal/alloc"
	"github.com/standardbeagle/depq/internal/depqerr"
	"github.com/standardbeagle/depq/internal/symtab"
)

// Index addresses a Token by its position within a Tree. NoIndex marks the
// absence of a parent, head, or dependency target.
type Index int32

// NoIndex is the sentinel for "no token referenced here" (root's parent,
// an unset enhanced-dependency head, and so on).
const NoIndex Index = -1

// FeaturePair is one `key=value` entry from the feats or misc column, kept
// in source order.
type FeaturePair struct {
	Key symtab.Symbol
	Val symtab.Symbol
}

// EnhancedDep is one `head:deprel` entry from the deps column.
type EnhancedDep struct {
	Head   Index
	DepRel symtab.Symbol
}

// Token is one row of a CoNLL-U sentence after symbol interning.
type Token struct {
	Position int // 0-based, dense, equal to its own slice index
	ID       int // 1-based id as it appeared in the source record

	Form   symtab.Symbol
	Lemma  symtab.Symbol
	UPOS   symtab.Symbol
	XPOS   symtab.Symbol
	DepRel symtab.Symbol

	Feats []FeaturePair
	Deps  []EnhancedDep
	Misc  []FeaturePair

	Parent   Index
	Children []Index

	head int // raw 1-based head column (0 = root); consumed by Link, then left as-is
}

// Tree is one sentence: its tokens, the dependency graph linking them, and
// the metadata gathered from `#` comment lines.
type Tree struct {
	Tokens []Token
	Root   Index
	Text   string
	Meta   map[string]string
	Pool   *symtab.Pool
}

// Parent returns the parent index of token i, or NoIndex at the root.
func (t *Tree) Parent(i Index) Index {
	return t.Tokens[i].Parent
}

// Children returns the position-ordered child indices of token i.
func (t *Tree) Children(i Index) []Index {
	return t.Tokens[i].Children
}

// Len returns the number of tokens in the sentence.
func (t *Tree) Len() int {
	return len(t.Tokens)
}

// Builder accumulates tokens for a single sentence. Call AddToken for every
// source line, then Link to fix up the dependency graph and obtain a Tree.
// A Builder does not itself touch the graph, matching the two-phase
// construction the source format requires: heads may reference tokens that
// have not been added yet in the case of projective but non-monotonic
// annotation tools.
type Builder struct {
	pool       *symtab.Pool
	tokens     []Token
	meta       map[string]string
	text       string
	childAlloc *alloc.SlabAllocator[Index]
}

// NewBuilder creates a Builder that interns into pool.
func NewBuilder(pool *symtab.Pool) *Builder {
	return &Builder{
		pool:       pool,
		childAlloc: alloc.NewChildrenSlabAllocator[Index](),
	}
}

// SetText records the sentence's `# text = ...` metadata value.
func (b *Builder) SetText(text string) {
	b.text = text
}

// SetMeta records one `# key = value` (or bare `# key`) comment line.
func (b *Builder) SetMeta(key, value string) {
	if b.meta == nil {
		b.meta = make(map[string]string)
	}
	b.meta[key] = value
}

// TokenFields carries one token line's raw column values, already split on
// tabs but not yet interpreted.
type TokenFields struct {
	ID     string
	Form   string
	Lemma  string
	UPOS   string
	XPOS   string
	Feats  string
	Head   string
	DepRel string
	Deps   string
	Misc   string
}

// AddToken interns and appends one token. It does not validate the head
// field against the eventual token count; that is Link's job once every
// token in the sentence has been added.
func (b *Builder) AddToken(f TokenFields) error {
	id, err := parseTokenID(f.ID)
	if err != nil {
		return err
	}

	head, err := parseHead(f.Head)
	if err != nil {
		return err
	}

	lemma := f.Lemma
	if lemma == "" || lemma == "_" {
		lemma = f.Form
	}

	tok := Token{
		Position: len(b.tokens),
		ID:       id,
		Form:     b.pool.InternString(f.Form),
		Lemma:    b.pool.InternString(lemma),
		UPOS:     b.pool.InternString(f.UPOS),
		XPOS:     b.pool.InternString(f.XPOS),
		DepRel:   b.pool.InternString(f.DepRel),
		Feats:    b.parsePairs(f.Feats),
		Misc:     b.parsePairs(f.Misc),
		Deps:     b.parseDeps(f.Deps),
		head:     head,
	}

	b.tokens = append(b.tokens, tok)
	return nil
}

// parseTokenID rejects multiword-token (`n-m`) and empty-node (`n.k`)
// identifiers, which the first release does not support.
func parseTokenID(s string) (int, error) {
	if strings.ContainsAny(s, "-.") {
		return 0, fmt.Errorf("multiword tokens and empty nodes are not supported: id %q", s)
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid token id %q: %w", s, err)
	}
	return n, nil
}

func parseHead(s string) (int, error) {
	if s == "_" {
		return 0, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid head %q: %w", s, err)
	}
	return n, nil
}

func (b *Builder) parsePairs(s string) []FeaturePair {
	if s == "" || s == "_" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]FeaturePair, 0, len(parts))
	for _, p := range parts {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		out = append(out, FeaturePair{Key: b.pool.InternString(k), Val: b.pool.InternString(v)})
	}
	return out
}

func (b *Builder) parseDeps(s string) []EnhancedDep {
	if s == "" || s == "_" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]EnhancedDep, 0, len(parts))
	for _, p := range parts {
		headStr, rel, ok := strings.Cut(p, ":")
		if !ok {
			continue
		}
		head := NoIndex
		if headStr != "0" {
			var n int
			if _, err := fmt.Sscanf(headStr, "%d", &n); err == nil {
				head = Index(n - 1)
			}
		}
		out = append(out, EnhancedDep{Head: head, DepRel: b.pool.InternString(rel)})
	}
	return out
}

// Link fixes up Parent/Children from each token's raw head field and
// returns the finished, immutable Tree. It is a Bug (not a Parse error)
// for a head to point outside the token range once every token has been
// added: that would mean the reader handed Link an inconsistent sentence.
func (b *Builder) Link() (*Tree, error) {
	n := len(b.tokens)
	root := NoIndex
	childCount := make([]int, n)

	for i := range b.tokens {
		h := b.tokens[i].head
		if h == 0 {
			if root != NoIndex {
				return nil, depqerr.NewBugError("tree.Link",
					fmt.Errorf("sentence has more than one root: %d and %d", root, i)).WithRecoverable(false)
			}
			b.tokens[i].Parent = NoIndex
			root = Index(i)
			continue
		}
		if h < 1 || h > n {
			return nil, depqerr.NewBugError("tree.Link",
				fmt.Errorf("token %d has out-of-range head %d for %d tokens", i, h, n)).WithRecoverable(false)
		}
		b.tokens[i].Parent = Index(h - 1)
		childCount[h-1]++
	}

	for i := range b.tokens {
		if c := childCount[i]; c > 0 {
			b.tokens[i].Children = b.childAlloc.Get(c)
		}
	}
	for i := range b.tokens {
		p := b.tokens[i].Parent
		if p == NoIndex {
			continue
		}
		b.tokens[p].Children = append(b.tokens[p].Children, Index(i))
	}
	// Children are appended in ascending token-index (= position) order
	// already, since we iterate i in increasing order above; sort defends
	// against any future relaxation of that invariant.
	for i := range b.tokens {
		children := b.tokens[i].Children
		if len(children) > 1 && !sort.SliceIsSorted(children, func(a, c int) bool { return children[a] < children[c] }) {
			sort.Slice(children, func(a, c int) bool { return children[a] < children[c] })
		}
	}

	return &Tree{
		Tokens: b.tokens,
		Root:   root,
		Text:   b.text,
		Meta:   b.meta,
		Pool:   b.pool,
	}, nil
}
