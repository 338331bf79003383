package pagecache

// Flush implements the public contract's flush(): writes back every dirty
// page, looping until none remain or a pass makes no progress (guards
// against pathological concurrent re-dirtying starving completion).
func (c *Cache) Flush() (int, error) {
	total := 0
	f := NewFlusher(c)
	for {
		n, err := f.Flush(1 << 20)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

// FlushBlocks implements flush_blocks(ids): flushes only the named (fd,
// page-offset) keys, leaving other dirty pages untouched.
func (c *Cache) FlushBlocks(keys []Key) (int, error) {
	want := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}

	var pages []*Page
	for _, s := range c.shards {
		s.mu.Lock()
		for n := s.dirtyHead; n != nil; n = n.next {
			if _, ok := want[n.page.key]; ok {
				pages = append(pages, n.page)
			}
		}
		s.mu.Unlock()
	}

	written := 0
	for _, p := range pages {
		p.mu.Lock()
		if p.state != Dirty {
			p.mu.Unlock()
			continue
		}
		p.state = Flushing
		data := append([]byte(nil), p.data[:]...)
		p.mu.Unlock()

		c.removeDirty(p)

		n, err := c.backend.WritePages(p.key.FD, p.key.Offset, data)
		if err != nil || n != PageSize {
			p.mu.Lock()
			p.state = Dirty
			p.mu.Unlock()
			c.markDirty(p)
			if err != nil {
				return written, err
			}
			continue
		}

		p.mu.Lock()
		p.state = UpToDate
		p.mu.Unlock()
		written++
	}

	c.flushPollee.AddEvents(EventIn | EventOut)
	return written, nil
}

func (c *Cache) removeDirty(p *Page) {
	s := c.shardOf(p.key)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := p.dirtyEntry
	if n == nil {
		return
	}
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
	p.dirtyEntry = nil
	s.dirtyCount--
}

// Sync implements sync(): an alias for Flush in this implementation, since
// there is no separate write-back-cache-vs-device-cache distinction here
// (the Backend's WritePages is assumed durable once it returns, per the
// BlockDevice contract §4.Q describes).
func (c *Cache) Sync() (int, error) {
	return c.Flush()
}

// Close flushes best-effort and logs (via the caller, who should check the
// returned dirty-page count) rather than blocking indefinitely; per spec
// §9's open question, no crash-consistency barrier is implemented.
func (c *Cache) Close() (flushed int, remainingDirty int) {
	flushed, _ = c.Flush()
	for _, s := range c.shards {
		s.mu.Lock()
		remainingDirty += s.dirtyCount
		s.mu.Unlock()
	}
	return flushed, remainingDirty
}
