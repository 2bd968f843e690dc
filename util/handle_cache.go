package util

import "sync"

// HandleCache is a reference counted LRU cache of open resources. Entries
// that are referenced by a Handle are never evicted; once the last handle is
// released and the entry is no longer cached, onEvict runs for it.
type HandleCache[K comparable, V any] struct {
	mu      sync.Mutex
	idle    Handle[K, V] // cached, not referenced; oldest first
	busy    Handle[K, V] // cached and referenced
	entries map[K]*Handle[K, V]
	used    int
	limit   int

	onEvict func(key K, value V)
}

type Handle[K comparable, V any] struct {
	key    K
	value  V
	charge int
	refs   int
	cached bool

	prev, next *Handle[K, V]
}

func (h *Handle[K, V]) Value() V {
	return h.value
}

func NewHandleCache[K comparable, V any](limit int, onEvict func(K, V)) *HandleCache[K, V] {
	c := &HandleCache[K, V]{
		entries: make(map[K]*Handle[K, V]),
		limit:   limit,
		onEvict: onEvict,
	}
	c.idle.init()
	c.busy.init()
	return c
}

// Lookup returns a referenced handle for key, or nil.
func (c *HandleCache[K, V]) Lookup(key K) *Handle[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.entries[key]
	if !ok {
		return nil
	}
	if h.refs == 1 {
		h.unlink()
		c.busy.pushBack(h)
	}
	h.refs++
	return h
}

// Insert caches value under key, replacing any previous entry, and returns
// a referenced handle for it.
func (c *HandleCache[K, V]) Insert(key K, value V, charge int) *Handle[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.drop(old)
	}

	h := &Handle[K, V]{key: key, value: value, charge: charge, refs: 2, cached: true}
	c.busy.pushBack(h)
	c.entries[key] = h
	c.used += charge

	for c.used > c.limit && !c.idle.empty() {
		oldest := c.idle.next
		Assert(oldest.refs == 1)
		c.drop(oldest)
	}
	return h
}

func (c *HandleCache[K, V]) Release(h *Handle[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unref(h)
}

// Erase removes key from the cache. Outstanding handles stay valid until
// they are released.
func (c *HandleCache[K, V]) Erase(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.entries[key]; ok {
		c.drop(h)
	}
}

// EraseIf removes every entry whose key matches pred.
func (c *HandleCache[K, V]) EraseIf(pred func(K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, h := range c.entries {
		if pred(key) {
			c.drop(h)
		}
	}
}

func (c *HandleCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close drops every idle entry. Entries still referenced are released by
// their holders.
func (c *HandleCache[K, V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.idle.empty() {
		h := c.idle.next
		Assert(h.cached && h.refs == 1)
		c.drop(h)
	}
}

func (c *HandleCache[K, V]) drop(h *Handle[K, V]) {
	Assert(h.cached)
	h.unlink()
	delete(c.entries, h.key)
	c.used -= h.charge
	h.cached = false
	c.unref(h)
}

func (c *HandleCache[K, V]) unref(h *Handle[K, V]) {
	h.refs--
	switch {
	case h.refs == 0:
		Assert(!h.cached)
		if c.onEvict != nil {
			c.onEvict(h.key, h.value)
		}
	case h.cached && h.refs == 1:
		h.unlink()
		c.idle.pushBack(h)
	}
}

func (h *Handle[K, V]) init() {
	h.prev, h.next = h, h
}

func (h *Handle[K, V]) empty() bool {
	return h.next == h
}

func (h *Handle[K, V]) pushBack(e *Handle[K, V]) {
	e.prev = h.prev
	e.next = h
	h.prev.next = e
	h.prev = e
}

func (h *Handle[K, V]) unlink() {
	h.prev.next = h.next
	h.next.prev = h.prev
	h.prev, h.next = nil, nil
}
