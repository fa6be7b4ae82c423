package content

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores validated documents keyed by (key, language). Entries are
// invalidated wholesale via Purge, never by dependency tracking: source
// content is versioned and effectively immutable within a deployment.
type Cache interface {
	Get(key string) (*Document, bool)
	Add(key string, doc *Document)
	Purge()
}

// LRUCache wraps an expirable LRU. A zero TTL means entries never expire.
type LRUCache struct {
	lru *expirable.LRU[string, *Document]
}

// NewLRUCache creates a cache holding up to size documents with the given
// TTL.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 256
	}
	return &LRUCache{lru: expirable.NewLRU[string, *Document](size, nil, ttl)}
}

func (c *LRUCache) Get(key string) (*Document, bool) {
	return c.lru.Get(key)
}

func (c *LRUCache) Add(key string, doc *Document) {
	c.lru.Add(key, doc)
}

func (c *LRUCache) Purge() {
	c.lru.Purge()
}
