package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is the cache.engine=memory backend: a bounded least-recently-used
// cache with no TTL sweep (routing caches are invalidated explicitly by
// the control plane, not by age) and explicit negative-hit storage.
type LRUCache[K comparable, V any] struct {
	inner *lru.Cache[K, entry[V]]
}

// NewLRUCache returns an LRUCache bounded to size entries. size must be
// positive.
func NewLRUCache[K comparable, V any](size int) *LRUCache[K, V] {
	c, err := lru.New[K, entry[V]](size)
	if err != nil {
		// size <= 0; fall back to a single-entry cache rather than panic.
		// Settings.Validate rejects negative cache.memory.* values but
		// accepts zero, so a zero capacity ends up here.
		c, _ = lru.New[K, entry[V]](1)
	}
	return &LRUCache[K, V]{inner: c}
}

func (c *LRUCache[K, V]) Get(key K) (V, Result) {
	e, ok := c.inner.Get(key)
	if !ok {
		var zero V
		return zero, Miss
	}
	if e.negative {
		var zero V
		return zero, Negative
	}
	return e.value, Hit
}

func (c *LRUCache[K, V]) Set(key K, value V) {
	c.inner.Add(key, entry[V]{value: value})
}

func (c *LRUCache[K, V]) SetNegative(key K) {
	var zero V
	c.inner.Add(key, entry[V]{value: zero, negative: true})
}

func (c *LRUCache[K, V]) Delete(key K) {
	c.inner.Remove(key)
}

func (c *LRUCache[K, V]) Clear() {
	c.inner.Purge()
}

func (c *LRUCache[K, V]) Len() int {
	return c.inner.Len()
}
