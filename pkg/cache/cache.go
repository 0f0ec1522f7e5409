package cache

import (
	"sync"
	"time"
)

type entry[Value any] struct {
	value    Value
	deadline time.Time
}

// Cache is an in-process map with per-entry expiration.
// Expired entries are dropped lazily on read.
type Cache[Key comparable, Value any] struct {
	mu     sync.Mutex
	ttl    time.Duration
	values map[Key]entry[Value]
}

func NewCache[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:    ttl,
		values: make(map[K]entry[V]),
	}
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[key] = entry[V]{
		value:    value,
		deadline: time.Now().Add(c.ttl),
	}
}

func (c *Cache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.values[key]
	if !ok {
		return value, false
	}

	if time.Now().After(stored.deadline) {
		delete(c.values, key)
		return value, false
	}

	return stored.value, true
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.values, key)
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.values)
}
