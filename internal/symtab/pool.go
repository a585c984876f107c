// Package symtab provides the content-addressed string interner shared by a
// Treebank and every Tree and compiled Pattern that runs against it.
package symtab

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Symbol is an opaque, dense, non-zero identifier for an interned byte
// string. The zero value is reserved and never returned by Intern; it means
// "no value".
type Symbol uint32

// Invalid is the reserved zero Symbol.
const Invalid Symbol = 0

// shardCount is the number of lock-striped buckets used to reduce Intern
// contention across workers touching disjoint vocabulary. Must be a power
// of two so the shard mask is a cheap bitwise AND.
const shardCount = 64

// shard owns one slice of the interning map, each guarded by its own mutex
// so that concurrent Intern calls on different strings rarely collide.
type shard struct {
	mu     sync.RWMutex
	lookup map[string]Symbol
}

// Pool is a thread-safe, append-only interner: bytes in, Symbol out, and
// back. A Pool is cheap to share by pointer between a Treebank, its Trees,
// and the Patterns compiled to run against it; two Symbols minted by
// different Pools are never comparable.
type Pool struct {
	shards []*shard

	slabMu sync.RWMutex
	slab   []string // Symbol-1 -> backing string
}

// New creates an empty Pool.
func New() *Pool {
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{lookup: make(map[string]Symbol)}
	}
	return &Pool{shards: shards}
}

func (p *Pool) shardFor(s string) *shard {
	h := xxhash.Sum64String(s)
	return p.shards[h&(shardCount-1)]
}

// Intern returns the Symbol for b, minting a fresh one on first sight. The
// same bytes always yield the same Symbol within this Pool; bytes never
// seen before still intern successfully, they just never satisfy a Tree's
// field comparison (a nonexistent feature value is simply a Symbol that
// never equals anything in the corpus).
func (p *Pool) Intern(b []byte) Symbol {
	return p.intern(string(b))
}

// InternString is Intern without the temporary []byte->string conversion
// cost when the caller already holds a string.
func (p *Pool) InternString(s string) Symbol {
	return p.intern(s)
}

func (p *Pool) intern(s string) Symbol {
	sh := p.shardFor(s)

	sh.mu.RLock()
	if sym, ok := sh.lookup[s]; ok {
		sh.mu.RUnlock()
		return sym
	}
	sh.mu.RUnlock()

	sh.mu.Lock()
	if sym, ok := sh.lookup[s]; ok {
		sh.mu.Unlock()
		return sym
	}

	p.slabMu.Lock()
	p.slab = append(p.slab, s)
	id := Symbol(len(p.slab))
	p.slabMu.Unlock()

	sh.lookup[s] = id
	sh.mu.Unlock()

	return id
}

// Resolve returns the bytes behind a Symbol. It returns ("", false) for
// Invalid or a Symbol unknown to this Pool.
func (p *Pool) Resolve(sym Symbol) (string, bool) {
	if sym == Invalid {
		return "", false
	}
	p.slabMu.RLock()
	defer p.slabMu.RUnlock()
	idx := int(sym) - 1
	if idx < 0 || idx >= len(p.slab) {
		return "", false
	}
	return p.slab[idx], true
}

// Equals reports whether sym resolves to exactly b, without allocating a
// string from b.
func (p *Pool) Equals(sym Symbol, b []byte) bool {
	s, ok := p.Resolve(sym)
	if !ok {
		return false
	}
	return s == string(b)
}

// Len returns the number of distinct strings interned so far.
func (p *Pool) Len() int {
	p.slabMu.RLock()
	defer p.slabMu.RUnlock()
	return len(p.slab)
}
