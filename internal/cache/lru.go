package cache

import (
	"container/list"
	"sync"
)

// LRUCache is a thread-safe LRU cache bounded by entry count and by the
// total size reported by sizeOf.
type LRUCache[V any] struct {
	capacity int
	size     int64
	maxSize  int64
	sizeOf   func(V) int64
	items    map[string]*list.Element
	order    *list.List
	mu       sync.Mutex
}

type cacheEntry[V any] struct {
	key   string
	value V
	size  int64
}

func NewLRUCache[V any](capacity int, maxSize int64, sizeOf func(V) int64) *LRUCache[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache[V]{
		capacity: capacity,
		maxSize:  maxSize,
		sizeOf:   sizeOf,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry[V]).value, true
	}
	var zero V
	return zero, false
}

// Set adds or replaces an entry. Values larger than the whole cache are
// not stored.
func (c *LRUCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.sizeOf(value)
	if size > c.maxSize {
		if elem, ok := c.items[key]; ok {
			c.removeElement(elem)
		}
		return
	}

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry[V])
		c.size += size - entry.size
		entry.value, entry.size = value, size
		c.order.MoveToFront(elem)
		c.evict(elem)
		return
	}

	for c.order.Len() >= c.capacity || (c.size+size > c.maxSize && c.order.Len() > 0) {
		c.removeElement(c.order.Back())
	}

	elem := c.order.PushFront(&cacheEntry[V]{key: key, value: value, size: size})
	c.items[key] = elem
	c.size += size
}

// evict drops least recently used entries other than keep until the size
// bound holds.
func (c *LRUCache[V]) evict(keep *list.Element) {
	for c.size > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil || oldest == keep {
			return
		}
		c.removeElement(oldest)
	}
}

func (c *LRUCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

func (c *LRUCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.size = 0
}

func (c *LRUCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Size returns the summed size of all entries.
func (c *LRUCache[V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *LRUCache[V]) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry[V])
	c.order.Remove(elem)
	delete(c.items, entry.key)
	c.size -= entry.size
}
