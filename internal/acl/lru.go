package acl

import (
	"container/list"
	"net/netip"
	"sync"
)

// lruCache is a fixed-capacity addr -> verdict cache with O(1) get/put,
// evicting the least recently used entry once full. Optional per ACL; no
// suitable third-party bounded-LRU dependency appears among the example
// repos, so this uses container/list directly (see DESIGN.md).
type lruCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[netip.Addr]*list.Element
	order    *list.List
}

type lruEntry struct {
	addr    netip.Addr
	verdict bool
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		entries:  make(map[netip.Addr]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *lruCache) get(addr netip.Addr) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[addr]
	if !ok {
		return false, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).verdict, true
}

func (c *lruCache) put(addr netip.Addr, verdict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[addr]; ok {
		el.Value.(*lruEntry).verdict = verdict
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&lruEntry{addr: addr, verdict: verdict})
	c.entries[addr] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*lruEntry).addr)
		}
	}
}
