package tree

import (
	"testing"

	"github.com/standardbeagle/depq/internal/symtab"
)

// buildSentence builds "The dog runs ." with dog as nsubj of runs, runs as root.
func buildSentence(t *testing.T) *Tree {
	t.Helper()
	pool := symtab.New()
	b := NewBuilder(pool)
	rows := []TokenFields{
		{ID: "1", Form: "The", Lemma: "the", UPOS: "DET", XPOS: "_", Feats: "_", Head: "2", DepRel: "det", Deps: "_", Misc: "_"},
		{ID: "2", Form: "dog", Lemma: "dog", UPOS: "NOUN", XPOS: "_", Feats: "Number=Sing", Head: "3", DepRel: "nsubj", Deps: "_", Misc: "_"},
		{ID: "3", Form: "runs", Lemma: "run", UPOS: "VERB", XPOS: "_", Feats: "_", Head: "0", DepRel: "root", Deps: "_", Misc: "_"},
		{ID: "4", Form: ".", Lemma: ".", UPOS: "PUNCT", XPOS: "_", Feats: "_", Head: "3", DepRel: "punct", Deps: "_", Misc: "_"},
	}
	for _, r := range rows {
		if err := b.AddToken(r); err != nil {
			t.Fatalf("AddToken: %v", err)
		}
	}
	tr, err := b.Link()
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	return tr
}

func TestLinkConsistency(t *testing.T) {
	tr := buildSentence(t)

	if tr.Root != 2 {
		t.Fatalf("Root = %d, want 2 (runs)", tr.Root)
	}
	for i, tok := range tr.Tokens {
		if tok.Position != i {
			t.Fatalf("token %d has Position %d", i, tok.Position)
		}
		if Index(i) == tr.Root {
			if tok.Parent != NoIndex {
				t.Fatalf("root token has parent %d", tok.Parent)
			}
			continue
		}
		parent := tok.Parent
		children := tr.Tokens[parent].Children
		found := false
		for _, c := range children {
			if c == Index(i) {
				found = true
			}
		}
		if !found {
			t.Fatalf("token %d not present in parent %d's children %v", i, parent, children)
		}
	}

	dog := tr.Tokens[1]
	if len(dog.Feats) != 1 || tr.Pool.Equals(dog.Feats[0].Key, []byte("Number")) == false {
		t.Fatalf("expected dog to carry Number feature, got %+v", dog.Feats)
	}

	runsChildren := tr.Tokens[2].Children
	if len(runsChildren) != 2 || runsChildren[0] != 1 || runsChildren[1] != 3 {
		t.Fatalf("runs children = %v, want [1 3] (position order)", runsChildren)
	}
}

func TestAddTokenRejectsMultiwordToken(t *testing.T) {
	pool := symtab.New()
	b := NewBuilder(pool)
	err := b.AddToken(TokenFields{ID: "1-2", Form: "don't", Head: "0"})
	if err == nil {
		t.Fatalf("expected multiword token id to be rejected")
	}
}

func TestLinkRejectsOutOfRangeHead(t *testing.T) {
	pool := symtab.New()
	b := NewBuilder(pool)
	if err := b.AddToken(TokenFields{ID: "1", Form: "x", Head: "9", UPOS: "X"}); err != nil {
		t.Fatalf("AddToken: %v", err)
	}
	if _, err := b.Link(); err == nil {
		t.Fatalf("expected Link to reject an out-of-range head")
	}
}

func TestLinkRejectsTwoRoots(t *testing.T) {
	pool := symtab.New()
	b := NewBuilder(pool)
	_ = b.AddToken(TokenFields{ID: "1", Form: "a", Head: "0"})
	_ = b.AddToken(TokenFields{ID: "2", Form: "b", Head: "0"})
	if _, err := b.Link(); err == nil {
		t.Fatalf("expected Link to reject a second root")
	}
}

func TestLemmaDefaultsToForm(t *testing.T) {
	pool := symtab.New()
	b := NewBuilder(pool)
	_ = b.AddToken(TokenFields{ID: "1", Form: "Quickly", Lemma: "_", UPOS: "ADV", Head: "0"})
	tr, err := b.Link()
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if tr.Tokens[0].Lemma != tr.Tokens[0].Form {
		t.Fatalf("expected lemma to default to form when absent")
	}
}
