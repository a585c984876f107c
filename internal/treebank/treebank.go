// Package treebank composes a conllu.Reader and a compiled pattern into
// the streaming, file-parallel iterators the rest of this codebase's
// query surface is built on. A Treebank is a cheap, cloneable description
// of an input set (in-memory text, one path, or many paths) plus the
// symtab.Pool every Tree it produces, and every Pattern run against it,
// shares.
package treebank

import (
	"context"
	"errors"
	"io"
	"iter"
	"log"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/depq/internal/compiler"
	"github.com/standardbeagle/depq/internal/conllu"
	"github.com/standardbeagle/depq/internal/depqerr"
	"github.com/standardbeagle/depq/internal/query"
	"github.com/standardbeagle/depq/internal/symtab"
	"github.com/standardbeagle/depq/internal/tree"
	"github.com/standardbeagle/depq/internal/vm"
)

type sourceKind int

const (
	sourceText sourceKind = iota
	sourcePaths
)

// Treebank describes one or many CoNLL-U files (or an in-memory record)
// sharing a single symtab.Pool. It holds no open file handles itself;
// every iterator call opens what it needs and closes it before returning.
type Treebank struct {
	kind       sourceKind
	text       string
	paths      []string
	pool       *symtab.Pool
	workers    int
	depthLimit int
}

// Option configures a Treebank at construction time.
type Option func(*Treebank)

// WithPool runs the Treebank against an existing Pool instead of minting a
// fresh one. Tests and callers that need Symbols resolved ahead of time
// (e.g. to pre-intern a pattern's literals) use this to share one Pool
// across a Treebank and its caller.
func WithPool(pool *symtab.Pool) Option {
	return func(tb *Treebank) { tb.pool = pool }
}

// WithWorkers overrides the file-level worker-pool size. n <= 0 means
// "use runtime.GOMAXPROCS(0)", matching the default documented in §5.
func WithWorkers(n int) Option {
	return func(tb *Treebank) { tb.workers = n }
}

// WithDepthLimit overrides the depth bound ScanDescendants/ScanAncestors
// instructions run against; 0 keeps vm.DefaultDepthLimit.
func WithDepthLimit(n int) Option {
	return func(tb *Treebank) { tb.depthLimit = n }
}

// New describes a Treebank over one or more CoNLL-U files. Files are not
// opened until an iterator is consumed.
func New(paths []string, opts ...Option) *Treebank {
	tb := &Treebank{kind: sourcePaths, paths: append([]string(nil), paths...)}
	tb.apply(opts)
	return tb
}

// NewFromText describes a Treebank over an in-memory CoNLL-U record,
// mainly for tests and for a CLI's `--query-text`-style inline corpus.
func NewFromText(text string, opts ...Option) *Treebank {
	tb := &Treebank{kind: sourceText, text: text}
	tb.apply(opts)
	return tb
}

func (tb *Treebank) apply(opts []Option) {
	for _, opt := range opts {
		opt(tb)
	}
	if tb.pool == nil {
		tb.pool = symtab.New()
	}
}

// Clone returns a new Treebank describing the same input set and sharing
// this one's Pool by reference, the way a compiled Pattern's bytecode is
// shared rather than copied. Iterating a clone reads its files again; every
// Tree rebuilt from disk interns into the same Pool, so Symbols minted by a
// Pattern compiled against one clone compare equal to the ones carried by
// Trees produced by another.
func (tb *Treebank) Clone() *Treebank {
	cp := *tb
	cp.paths = append([]string(nil), tb.paths...)
	return &cp
}

// Pool returns the Treebank's shared string interner, for callers (a CLI,
// a compiler.Compiler) that need to intern a pattern's literals into the
// same Pool this Treebank's Trees use.
func (tb *Treebank) Pool() *symtab.Pool {
	return tb.pool
}

func (tb *Treebank) workerCount() int {
	if tb.workers > 0 {
		return tb.workers
	}
	return runtime.GOMAXPROCS(0)
}

// treeItem is one element of the internal tree stream, fanned in from
// either the single sequential reader or the parallel file workers.
type treeItem struct {
	tree *tree.Tree
	err  error
}

// Trees iterates every Tree across the Treebank's input set. In ordered
// mode (or when there is at most one file to read), files are read one at
// a time in the order given; in unordered mode, multiple files are read
// concurrently by a bounded worker pool and results arrive in whatever
// order the workers produce them. Either way, sentences within one file
// are always yielded strictly in source order.
func (tb *Treebank) Trees(ctx context.Context, ordered bool) iter.Seq2[*tree.Tree, error] {
	if ctx == nil {
		ctx = context.Background()
	}
	switch tb.kind {
	case sourceText:
		return tb.sequentialTrees(ctx, []string{""})
	default:
		if ordered || len(tb.paths) <= 1 || tb.workerCount() <= 1 {
			return tb.sequentialTrees(ctx, tb.paths)
		}
		return tb.parallelTrees(ctx, tb.paths)
	}
}

// sequentialTrees reads each path in order on the calling goroutine. An
// empty path string (used by NewFromText) reads the Treebank's in-memory
// text instead of opening a file.
func (tb *Treebank) sequentialTrees(ctx context.Context, paths []string) iter.Seq2[*tree.Tree, error] {
	return func(yield func(*tree.Tree, error) bool) {
		for _, p := range paths {
			if ctx.Err() != nil {
				return
			}
			if !tb.streamOne(ctx, p, yield) {
				return
			}
		}
	}
}

// parallelTrees reads every path with a bounded pool of goroutines
// (errgroup.SetLimit gives the work-stealing behaviour §5 describes: a
// worker that finishes one file immediately picks up the next queued
// one), fans results into a single channel, and replays them to yield on
// the calling goroutine — the only goroutine ever allowed to call yield,
// per the iterator contract.
func (tb *Treebank) parallelTrees(ctx context.Context, paths []string) iter.Seq2[*tree.Tree, error] {
	return func(yield func(*tree.Tree, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		results := make(chan treeItem, tb.workerCount()*2)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(tb.workerCount())

		for _, p := range paths {
			path := p
			g.Go(func() error {
				tb.streamOne(gctx, path, func(t *tree.Tree, err error) bool {
					select {
					case results <- treeItem{tree: t, err: err}:
						return true
					case <-gctx.Done():
						return false
					}
				})
				return nil
			})
		}

		go func() {
			g.Wait()
			close(results)
		}()

		for item := range results {
			if !yield(item.tree, item.err) {
				cancel()
				for range results {
					// drain so in-flight workers' sends don't block forever
				}
				return
			}
		}
	}
}

// streamOne reads one file (or, for path == "", the in-memory text) and
// yields every Tree and error it produces in order. It returns false the
// moment yield asks to stop, true once the source is exhausted normally.
// A FileOpen or mid-stream Decode error is logged and yielded once; the
// file is then abandoned, matching "logged and skipped" in §7. A Parse
// error on one malformed sentence is yielded but does not end the file:
// conllu.Reader resumes at the next sentence.
func (tb *Treebank) streamOne(ctx context.Context, path string, yield func(*tree.Tree, error) bool) bool {
	var r *conllu.Reader
	var closer io.Closer

	if path == "" {
		r = conllu.New(strings.NewReader(tb.text), "<inline>", tb.pool)
	} else {
		var err error
		r, closer, err = conllu.Open(path, tb.pool)
		if err != nil {
			log.Printf("depq: treebank: %v", err)
			return yield(nil, err)
		}
		defer closer.Close()
	}

	for {
		if ctx.Err() != nil {
			return false
		}
		t, err := r.Next()
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			if bug, ok := err.(*depqerr.BugError); ok && !bug.IsRecoverable() {
				log.Printf("depq: treebank: unrecoverable: %v", bug)
				yield(nil, err)
				return false
			}
			log.Printf("depq: treebank: %v", err)
			if !yield(nil, err) {
				return false
			}
			continue
		}
		if !yield(t, nil) {
			return false
		}
	}
}

// Match pairs a vm.Match with the Tree it was found in, since a Match's
// bindings are only meaningful alongside the Tree they index into.
type Match struct {
	Tree  *tree.Tree
	Match vm.Match
}

// compileFor compiles ast against this Treebank's Pool. Compile errors are
// QuerySemanticError values surfaced once, eagerly, before any file is
// touched — see §7's propagation policy.
func (tb *Treebank) compileFor(ast *query.AST) (*vm.Program, error) {
	c := compiler.New(tb.pool)
	prog, err := c.Compile(ast)
	if err != nil {
		return nil, err
	}
	if tb.depthLimit > 0 {
		prog.DepthLimit = tb.depthLimit
	}
	return prog, nil
}

// Matches iterates every match of ast across the Treebank's Trees, in
// leftmost-canonical order within each Tree (§4.8) and in Trees' own file
// and sentence order otherwise. The pattern is compiled exactly once,
// before the first Tree is read; matching runs on the consuming goroutine
// against that one Program, while any workers Trees uses only read files.
func (tb *Treebank) Matches(ctx context.Context, ast *query.AST, ordered bool) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		prog, err := tb.compileFor(ast)
		if err != nil {
			yield(Match{}, err)
			return
		}
		for t, terr := range tb.Trees(ctx, ordered) {
			if terr != nil {
				if !yield(Match{}, terr) {
					return
				}
				continue
			}
			m := vm.NewMatcher(prog, t)
			for {
				match, ok := m.NextMatch()
				if !ok {
					break
				}
				if !yield(Match{Tree: t, Match: match}, nil) {
					return
				}
			}
		}
	}
}

// Filter iterates every Tree with at least one match of ast, short-
// circuiting the matcher after its first match instead of enumerating
// every one.
func (tb *Treebank) Filter(ctx context.Context, ast *query.AST, ordered bool) iter.Seq2[*tree.Tree, error] {
	return func(yield func(*tree.Tree, error) bool) {
		prog, err := tb.compileFor(ast)
		if err != nil {
			yield(nil, err)
			return
		}
		for t, terr := range tb.Trees(ctx, ordered) {
			if terr != nil {
				if !yield(nil, terr) {
					return
				}
				continue
			}
			m := vm.NewMatcher(prog, t)
			if _, ok := m.NextMatch(); ok {
				if !yield(t, nil) {
					return
				}
			}
		}
	}
}
