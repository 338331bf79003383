package pagecache

import (
	"sync"

	"github.com/joeycumines/libos-core/internal/errno"
	"github.com/joeycumines/libos-core/internal/lru"
	"github.com/joeycumines/libos-core/internal/poll"
	"github.com/joeycumines/libos-core/internal/prefetch"
)

const numShards = 16

// Backend is the block-device-facing side of the cache: fetch and flush a
// contiguous run of whole pages. Implementations submit the actual readv/
// writev via the I/O submission core (internal/ioring) and block the
// calling goroutine until the transport's callback fires; the cache core
// itself is agnostic to how that happens, matching spec §4.J's description
// of the cache as sitting "over (H)".
type Backend interface {
	// ReadPages fills buf (len(buf) must be a multiple of PageSize) starting
	// at the given page-aligned offset.
	ReadPages(fd int, offset uint64, buf []byte) error
	// WritePages writes buf (a multiple of PageSize) to the given
	// page-aligned offset, returning the number of bytes actually written.
	WritePages(fd int, offset uint64, buf []byte) (int, error)
}

type shard struct {
	mu         sync.Mutex
	pages      map[Key]*Page
	clean      *lru.List[*Page]
	dirtyHead  *dirtyNode
	dirtyTail  *dirtyNode
	dirtyCount int
}

func newShard() *shard {
	return &shard{pages: make(map[Key]*Page), clean: lru.New[*Page]()}
}

// Cache is a sharded page cache for one or more open files sharing a
// Backend.
type Cache struct {
	backend  Backend
	shards   [numShards]*shard
	tracker  *prefetch.Tracker
	flushPollee *poll.Pollee
}

// Flush event bits published on the cache's pollee (IN|OUT per spec
// §4.J's flusher completion signal).
const (
	EventIn  poll.EventMask = 1 << iota
	EventOut
)

// NewCache creates a Cache backed by backend.
func NewCache(backend Backend) *Cache {
	c := &Cache{backend: backend, tracker: prefetch.NewTracker(), flushPollee: poll.NewPollee()}
	for i := range c.shards {
		c.shards[i] = newShard()
	}
	return c
}

// Pollee exposes the flush-completion signal: EventIn|EventOut is added
// after each Flusher.Flush or FlushBlocks pass. No low-watermark event is
// published on it.
func (c *Cache) Pollee() *poll.Pollee { return c.flushPollee }

func (c *Cache) shardOf(key Key) *shard {
	h := uint64(key.FD)*1099511628211 ^ key.Offset
	return c.shards[h%numShards]
}

// getOrInsert returns the page for key, inserting a fresh Uninit page under
// the shard lock if absent (the short critical section spec §4.J
// requires).
func (c *Cache) getOrInsert(key Key) (p *Page, wasPresent bool) {
	s := c.shardOf(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pages[key]; ok {
		return p, true
	}
	p = &Page{key: key, state: Uninit}
	s.pages[key] = p
	return p, false
}

// ReadAt copies len(buf) bytes starting at offset (not necessarily
// page-aligned) into buf, fetching and caching any pages not already
// present, per spec §4.J's read path.
func (c *Cache) ReadAt(fd int, offset uint64, buf []byte) error {
	remaining := buf
	pos := offset
	for len(remaining) > 0 {
		pageOff := pos - pos%PageSize
		inPage := int(pos - pageOff)
		n := PageSize - inPage
		if n > len(remaining) {
			n = len(remaining)
		}

		p, err := c.fetchPage(fd, pageOff)
		if err != nil {
			return err
		}
		p.mu.Lock()
		copy(remaining[:n], p.data[inPage:inPage+n])
		p.mu.Unlock()

		c.touchClean(p)

		remaining = remaining[n:]
		pos += uint64(n)
	}
	return nil
}

// fetchPage returns the page at (fd, pageOff), fetching it from the
// backend if it is Uninit/absent, or waiting out a concurrent Fetching/
// Flushing transition.
func (c *Cache) fetchPage(fd int, pageOff uint64) (*Page, error) {
	key := Key{FD: fd, Offset: pageOff}
	for {
		p, _ := c.getOrInsert(key)
		p.mu.Lock()
		switch p.state {
		case UpToDate, Dirty:
			p.mu.Unlock()
			return p, nil
		case Fetching, Flushing:
			p.mu.Unlock()
			continue // spin-retry; a real build would park on a per-page waiter
		case Uninit:
			p.state = Fetching
			p.mu.Unlock()

			hit := c.tracker.Accept(pageOff, PageSize)
			readLen := PageSize
			if hit != nil {
				readLen += hit.PrefetchSize()
			}
			buf := make([]byte, readLen)
			err := c.backend.ReadPages(fd, pageOff, buf)
			if hit != nil {
				hit.Complete(readLen)
			}

			p.mu.Lock()
			if err != nil {
				p.state = Uninit
				p.mu.Unlock()
				return nil, err
			}
			copy(p.data[:], buf[:PageSize])
			p.state = UpToDate
			p.mu.Unlock()
			return p, nil
		}
	}
}

func (c *Cache) touchClean(p *Page) {
	s := c.shardOf(p.key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.lruEntry == nil {
		p.lruEntry = s.clean.NewEntry(p)
		s.clean.Insert(p.lruEntry)
	} else if s.clean.Contains(p.lruEntry) {
		s.clean.Touch(p.lruEntry)
	} else {
		s.clean.Insert(p.lruEntry)
	}
}

// WriteAt writes len(buf) bytes starting at offset, fetching (read-modify)
// any partially-overwritten boundary pages first, and marking every
// touched page Dirty.
func (c *Cache) WriteAt(fd int, offset uint64, buf []byte) error {
	remaining := buf
	pos := offset
	for len(remaining) > 0 {
		pageOff := pos - pos%PageSize
		inPage := int(pos - pageOff)
		n := PageSize - inPage
		if n > len(remaining) {
			n = len(remaining)
		}

		var p *Page
		var err error
		if n == PageSize {
			p, _ = c.getOrInsert(Key{FD: fd, Offset: pageOff})
			p.mu.Lock()
			if p.state == Uninit {
				p.state = UpToDate // fully overwritten, no fetch needed
			}
			p.mu.Unlock()
		} else {
			p, err = c.fetchPage(fd, pageOff)
			if err != nil {
				return err
			}
		}

		p.mu.Lock()
		copy(p.data[inPage:inPage+n], remaining[:n])
		wasDirty := p.state == Dirty
		p.state = Dirty
		p.mu.Unlock()

		if !wasDirty {
			c.markDirty(p)
		}

		remaining = remaining[n:]
		pos += uint64(n)
	}
	return nil
}

func (c *Cache) markDirty(p *Page) {
	s := c.shardOf(p.key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.dirtyEntry != nil {
		return
	}
	n := &dirtyNode{page: p}
	p.dirtyEntry = n
	if s.dirtyTail != nil {
		s.dirtyTail.next = n
		n.prev = s.dirtyTail
	} else {
		s.dirtyHead = n
	}
	s.dirtyTail = n
	s.dirtyCount++
}

// errDirtyRaceLost names the case of a page snapshotted as dirty that has
// since been flushed or re-fetched by another writer. No code path returns
// it: the flusher's snapshot skips such pages without producing an error.
var errDirtyRaceLost = errno.New(errno.EAGAIN, "pagecache: page no longer dirty")
