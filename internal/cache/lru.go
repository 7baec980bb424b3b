package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCache is a size-bounded cache whose entries expire after a fixed TTL.
type LRUCache[T any] struct {
	lru *expirable.LRU[string, T]
}

var _ Cache[int] = (*LRUCache[int])(nil)

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{lru: expirable.NewLRU[string, T](maxSize, nil, ttl)}
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	return c.lru.Get(key)
}

func (c *LRUCache[T]) Set(key string, data T) {
	c.lru.Add(key, data)
}

func (c *LRUCache[T]) Delete(key string) {
	c.lru.Remove(key)
}

func (c *LRUCache[T]) DeletePrefix(prefix string) int {
	n := 0
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) && c.lru.Remove(k) {
			n++
		}
	}
	return n
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	return c.lru.Len()
}
