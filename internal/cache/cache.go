package cache

import (
	"sync"
	"time"
)

// Cache is a small process-local TTL map. Entries expire lazily on read.
type Cache[K comparable, V any] struct {
	mu  sync.RWMutex
	ttl time.Duration
	now func() time.Time
	m   map[K]entry[V]
}

type entry[V any] struct {
	val V
	exp time.Time
}

func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Cache[K, V]{
		ttl: ttl,
		now: time.Now,
		m:   make(map[K]entry[V]),
	}
}

// WithClock swaps the time source.
func (c *Cache[K, V]) WithClock(now func() time.Time) *Cache[K, V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	now := c.now()
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		// only drop it if nobody refreshed it meanwhile
		if cur, still := c.m[key]; still && cur.exp.Equal(e.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return e.val, true
}

func (c *Cache[K, V]) Set(key K, val V) {
	c.mu.Lock()
	c.m[key] = entry[V]{val: val, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	c.m = make(map[K]entry[V])
	c.mu.Unlock()
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
