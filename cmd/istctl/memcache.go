package main

import (
	"sort"
	"sync"

	"github.com/dutow/galera/internal/ist"
)

// memCache is a minimal in-process gcache.Cache backed by a sorted slice,
// standing in for the real write-set cache so istctl can demonstrate a
// donor/joiner session without a storage engine attached.
type memCache struct {
	mu      sync.Mutex
	entries []ist.WriteSetAction
}

func newMemCache(entries []ist.WriteSetAction) *memCache {
	sorted := append([]ist.WriteSetAction(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SeqNoG < sorted[j].SeqNoG })
	return &memCache{entries: sorted}
}

func (c *memCache) SeqnoGetBuffers(first ist.SeqNo, bufs []ist.WriteSetAction) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	want := first
	for _, e := range c.entries {
		if n >= len(bufs) {
			break
		}
		if e.SeqNoG < want {
			continue
		}
		if e.SeqNoG != want {
			break
		}
		bufs[n] = e
		n++
		want++
	}
	return n, nil
}

func (c *memCache) SeqnoUnlock() {}
