// Package lru provides a fixed-capacity least-recently-used cache that tracks
// an estimated memory cost per entry.
//
// Capacity is a cost budget, not an entry count; callers that want count-based
// bounding insert entries with cost 1. All operations are O(1). A single mutex
// serializes mutations of the index and recency list, so the cache is safe for
// concurrent use.
package lru

import "sync"

// entry is a node in the intrusive recency list. Head is most recently used,
// tail is least recently used.
type entry[V any] struct {
	key   string
	value V
	cost  int64

	prev *entry[V]
	next *entry[V]
}

// Cache is a bounded LRU cache from string keys to values of type V.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int64
	cost     int64
	index    map[string]*entry[V]
	head     *entry[V]
	tail     *entry[V]
}

// New creates a cache with the given cost capacity. Capacity must be positive.
func New[V any](capacity int64) *Cache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache[V]{
		capacity: capacity,
		index:    make(map[string]*entry[V]),
	}
}

// Get returns the value for key and promotes it to most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(node)
	return node.value, true
}

// Peek reports whether key is resident without touching recency order.
func (c *Cache[V]) Peek(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[key]
	return ok
}

// Set inserts or replaces an entry. Replacing an existing key is
// delete-then-insert, so the replaced entry's cost is released before the
// eviction loop runs and the entry lands at the head either way. Entries are
// evicted from the tail until the new entry fits; an entry costlier than the
// whole capacity empties the cache and is then inserted regardless, since the
// cache cannot structurally hold it.
func (c *Cache[V]) Set(key string, value V, cost int64) {
	if cost < 0 {
		cost = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.index[key]; ok {
		c.remove(node)
	}
	for c.cost+cost > c.capacity && c.tail != nil {
		c.remove(c.tail)
	}

	node := &entry[V]{key: key, value: value, cost: cost}
	c.index[key] = node
	c.pushFront(node)
	c.cost += cost
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.index[key]
	if !ok {
		return false
	}
	c.remove(node)
	return true
}

// Clear empties the cache and resets cost accounting.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*entry[V])
	c.head = nil
	c.tail = nil
	c.cost = 0
}

// Evict force-removes up to n least-recently-used entries and returns how many
// were actually removed.
func (c *Cache[V]) Evict(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for evicted < n && c.tail != nil {
		c.remove(c.tail)
		evicted++
	}
	return evicted
}

// Len returns the number of resident entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Cost returns the total tracked cost of resident entries.
func (c *Cache[V]) Cost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cost
}

// Keys returns resident keys ordered most to least recently used.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.index))
	for node := c.head; node != nil; node = node.next {
		keys = append(keys, node.key)
	}
	return keys
}

// remove unlinks node and drops it from the index. Caller holds the lock.
func (c *Cache[V]) remove(node *entry[V]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	delete(c.index, node.key)
	c.cost -= node.cost
}

// pushFront links node as most recently used. Caller holds the lock.
func (c *Cache[V]) pushFront(node *entry[V]) {
	node.next = c.head
	node.prev = nil
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

// moveToFront promotes node to most recently used. Caller holds the lock.
func (c *Cache[V]) moveToFront(node *entry[V]) {
	if c.head == node {
		return
	}
	// Unlink without touching the index or cost accounting.
	if node.prev != nil {
		node.prev.next = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	c.pushFront(node)
}
