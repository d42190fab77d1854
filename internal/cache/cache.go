package cache

import (
	"sync"
	"time"
)

// Package cache holds decoded dataset rows between requests. Uploads are
// stored as JSON blobs; decoding a large payload on every analysis request
// would dominate the run time, so the server keeps recently used datasets
// decoded here.
//
// Entries expire on a TTL and the cache evicts the stalest entry once full.
// Invalidation is explicit: the server drops an entry when its dataset is
// re-uploaded or deleted.

// Entry is one cached value with its expiry.
type entry struct {
	value    interface{}
	expires  time.Time
	lastUsed time.Time
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// Cache is a TTL cache with a fixed entry budget.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int
	hits       int64
	misses     int64
}

// New builds a cache. ttl<=0 means entries never expire; maxEntries<=0
// selects a default of 32.
func New(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 32
	}
	return &Cache{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get retrieves a cached value.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	e.lastUsed = time.Now()
	c.hits++
	return e.value, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	e := &entry{value: value, lastUsed: time.Now()}
	if c.ttl > 0 {
		e.expires = time.Now().Add(c.ttl)
	}
	c.entries[key] = e
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// GetStats returns hit/miss counters and the current entry count.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

// evictOldest drops the least recently used entry. Caller holds the lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.lastUsed.Before(oldest) {
			oldestKey, oldest = k, e.lastUsed
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
