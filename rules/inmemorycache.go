package rules

import (
	"sync"
	"time"
)

type cacheEntry struct {
	rules    []*Rule
	loadedAt time.Time
}

// InMemoryRulesCache is the process-local RulesCache. Safe for concurrent use.
type InMemoryRulesCache struct {
	mu         sync.Mutex
	entry      *cacheEntry
	generation uint64
	ttl        time.Duration
	now        func() time.Time
}

// NewInMemoryRulesCache returns an empty cache at generation zero.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		ttl: config.TTL,
		now: time.Now,
	}
}

// Snapshot returns a copy of the cached rules with the current generation.
// An expired entry is dropped and reported as a miss.
func (c *InMemoryRulesCache) Snapshot() ([]*Rule, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry == nil {
		return nil, c.generation
	}
	if c.ttl > 0 && c.now().Sub(c.entry.loadedAt) > c.ttl {
		c.entry = nil
		return nil, c.generation
	}

	return append(make([]*Rule, 0, len(c.entry.rules)), c.entry.rules...), c.generation
}

// Fill caches rules if no Invalidate happened since generation was read.
// A nil slice is cached as an empty list.
func (c *InMemoryRulesCache) Fill(generation uint64, rules []*Rule) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return false
	}

	c.entry = &cacheEntry{
		rules:    append(make([]*Rule, 0, len(rules)), rules...),
		loadedAt: c.now(),
	}
	return true
}

// Invalidate drops the cached rules and bumps the generation.
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entry = nil
	c.generation++
}
