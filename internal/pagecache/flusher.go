package pagecache

import "sort"

// Flusher drains dirty pages from a Cache's shards, grouping by fd and
// offset into maximal contiguous runs and submitting each as one writev
// through the Backend.
//
// Grounded on the teacher's go-microbatch Batcher[Job]: "snapshot up to
// maxPages dirty-list entries, submit as one batch" is the same shape as
// microbatch's MaxSize-triggered flush, adapted here to additionally group
// by fd then sort/merge into contiguous runs before submission, which
// microbatch's generic BatchProcessor has no notion of.
type Flusher struct {
	cache *Cache
}

// NewFlusher creates a Flusher over cache.
func NewFlusher(cache *Cache) *Flusher {
	return &Flusher{cache: cache}
}

// run is one contiguous group of dirty pages for a single fd.
type run struct {
	fd     int
	offset uint64
	pages  []*Page
}

// Flush snapshots up to maxPages dirty entries (taking shards in order until
// maxPages is reached), double-checks each is still Dirty, transitions them to
// Flushing, groups into contiguous runs, and submits each run as one
// writev. Returns the number of pages actually written back.
func (f *Flusher) Flush(maxPages int) (int, error) {
	snapshot := f.snapshot(maxPages)
	if len(snapshot) == 0 {
		return 0, nil
	}

	runs := groupIntoRuns(snapshot)

	written := 0
	for _, r := range runs {
		buf := make([]byte, len(r.pages)*PageSize)
		for i, p := range r.pages {
			p.mu.Lock()
			copy(buf[i*PageSize:(i+1)*PageSize], p.data[:])
			p.mu.Unlock()
		}

		n, err := f.cache.backend.WritePages(r.fd, r.offset, buf)
		if err != nil {
			f.rollback(r.pages)
			return written, err
		}
		if n != len(buf) {
			// Partial writev: commit the written head and put the unwritten
			// tail back on the dirty list rather than failing outright; the
			// next Flush pass reissues it as a fresh run.
			writtenPages := n / PageSize
			f.commit(r.pages[:writtenPages])
			written += writtenPages
			f.rollback(r.pages[writtenPages:])
			continue
		}

		f.commit(r.pages)
		written += len(r.pages)
	}

	f.cache.flushPollee.AddEvents(EventIn | EventOut)
	return written, nil
}

// snapshot pulls up to maxPages dirty entries, filtering out any that
// raced to a non-Dirty state before being claimed, and transitions the
// survivors to Flushing.
func (f *Flusher) snapshot(maxPages int) []*Page {
	var out []*Page
	for _, s := range f.cache.shards {
		if len(out) >= maxPages {
			break
		}
		s.mu.Lock()
		for n := s.dirtyHead; n != nil && len(out) < maxPages; {
			next := n.next
			p := n.page

			p.mu.Lock()
			stillDirty := p.state == Dirty
			if stillDirty {
				p.state = Flushing
			}
			p.mu.Unlock()

			f.unlinkDirtyLocked(s, n)

			if stillDirty {
				out = append(out, p)
			}
			n = next
		}
		s.mu.Unlock()
	}
	return out
}

func (f *Flusher) unlinkDirtyLocked(s *shard, n *dirtyNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.dirtyHead = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.dirtyTail = n.prev
	}
	n.page.dirtyEntry = nil
	s.dirtyCount--
}

func groupIntoRuns(pages []*Page) []run {
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].key.FD != pages[j].key.FD {
			return pages[i].key.FD < pages[j].key.FD
		}
		return pages[i].key.Offset < pages[j].key.Offset
	})

	var runs []run
	for _, p := range pages {
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			expected := last.offset + uint64(len(last.pages))*PageSize
			if last.fd == p.key.FD && p.key.Offset == expected {
				last.pages = append(last.pages, p)
				continue
			}
		}
		runs = append(runs, run{fd: p.key.FD, offset: p.key.Offset, pages: []*Page{p}})
	}
	return runs
}

func (f *Flusher) commit(pages []*Page) {
	for _, p := range pages {
		p.mu.Lock()
		p.state = UpToDate
		p.mu.Unlock()
	}
}

// rollback returns pages that failed to write back to Dirty and re-links
// them onto their shard's dirty list, so a later Flush retries them.
func (f *Flusher) rollback(pages []*Page) {
	for _, p := range pages {
		p.mu.Lock()
		p.state = Dirty
		p.mu.Unlock()
		f.cache.markDirty(p)
	}
}
