// Package pagecache implements spec §4.J/§4.K: a block-device-backing page
// cache with dirty-page flushing and LRU-style eviction driven by global
// memory pressure.
//
// Grounded on the teacher's go-microbatch Batcher[Job] (see flusher.go) for
// the "accumulate then flush as one batch" shape, and internal/lru for the
// clean-page eviction list.
package pagecache

import (
	"sync"

	"github.com/joeycumines/libos-core/internal/lru"
)

// PageState mirrors spec §3's page lifecycle.
type PageState int

const (
	Uninit PageState = iota
	Fetching
	UpToDate
	Dirty
	Flushing
)

// Key identifies a page within the cache: an open file plus its aligned
// byte offset.
type Key struct {
	FD     int
	Offset uint64
}

// PageSize is the cache's fixed page granularity.
const PageSize = 4096

// Page is one cached page-sized buffer plus its lifecycle state. A page's
// own mutex serializes state transitions and data mutation; the owning
// shard's mutex only ever guards the map lookup/insert, per spec §4.J's
// concurrency note.
type Page struct {
	mu    sync.Mutex
	key   Key
	state PageState
	data  [PageSize]byte
	refs  int // in-flight I/O referencing this page; evictable only at 0

	lruEntry   *lru.Entry[*Page]
	dirtyEntry *dirtyNode
}

// State returns the page's current lifecycle state.
func (p *Page) State() PageState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Data returns the page's backing buffer. Callers must hold a reference
// (via Ref/Unref) or otherwise know the page can't be concurrently evicted
// while reading.
func (p *Page) Data() []byte { return p.data[:] }

// Key returns the page's cache key.
func (p *Page) Key() Key { return p.key }

// Ref/Unref track in-flight I/O so the evictor can skip referenced pages.
func (p *Page) Ref() {
	p.mu.Lock()
	p.refs++
	p.mu.Unlock()
}

func (p *Page) Unref() {
	p.mu.Lock()
	if p.refs > 0 {
		p.refs--
	}
	p.mu.Unlock()
}

func (p *Page) referenced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs > 0
}

// dirtyNode is the intrusive node for a shard's dirty list (a plain
// doubly-linked list, since dirty pages are processed in insertion order
// rather than LRU order).
type dirtyNode struct {
	page       *Page
	prev, next *dirtyNode
}
