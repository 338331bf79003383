package pagecache

// Evictor is the shared PageEvictor task (one per allocator instance, per
// spec §4.J): on memory pressure, it flushes every registered cache, then
// asks each to evict a batch from its LRU tails, looping until the
// allocator reports pressure relieved or no progress is made.
type Evictor struct {
	caches []*Cache
}

// NewEvictor creates an Evictor with no registered caches.
func NewEvictor() *Evictor { return &Evictor{} }

// Register adds cache to the set the evictor sweeps.
func (e *Evictor) Register(c *Cache) {
	e.caches = append(e.caches, c)
}

// IsLow reports whether memory pressure persists; supplied by the caller
// (internal/untrusted.Allocator.IsLow), keeping this package decoupled
// from the allocator package.
type IsLow func() bool

// Run flushes every registered cache, then evicts up to batchPerCache
// UpToDate, unreferenced pages from each cache's LRU tail, repeating until
// isLow reports false or a full pass makes no progress.
func (e *Evictor) Run(isLow IsLow, batchPerCache int) {
	for isLow() {
		progressed := false

		for _, c := range e.caches {
			NewFlusher(c).Flush(batchPerCache)
		}

		for _, c := range e.caches {
			if c.evictBatch(batchPerCache) > 0 {
				progressed = true
			}
		}

		if !progressed {
			return
		}
	}
}

// evictBatch removes up to n UpToDate, unreferenced pages from the LRU
// tail of every shard, returning the total evicted.
func (c *Cache) evictBatch(n int) int {
	evicted := 0
	for _, s := range c.shards {
		if evicted >= n {
			break
		}
		s.mu.Lock()
		victims := s.clean.EvictNWith(n-evicted, func(p *Page) bool {
			p.mu.Lock()
			ok := p.state == UpToDate && p.refs == 0
			p.mu.Unlock()
			return ok
		})
		for _, entry := range victims {
			p := entry.Value
			delete(s.pages, p.key)
			p.lruEntry = nil
			evicted++
		}
		s.mu.Unlock()
	}
	return evicted
}
