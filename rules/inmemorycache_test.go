package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryRulesCache(t *testing.T) {
	cache := NewInMemoryRulesCache(DefaultCacheConfig())

	rules, gen := cache.Snapshot()
	assert.Nil(t, rules, "new cache should miss")

	assert.True(t, cache.Fill(gen, []*Rule{{ID: "a"}, {ID: "b"}}))
	rules, _ = cache.Snapshot()
	assert.Equal(t, []string{"a", "b"}, ruleIDs(rules))

	cache.Invalidate()
	rules, next := cache.Snapshot()
	assert.Nil(t, rules)
	assert.Greater(t, next, gen)
}

// A fill started before an Invalidate must not repopulate the cache.
func TestInMemoryRulesCacheStaleFill(t *testing.T) {
	cache := NewInMemoryRulesCache(DefaultCacheConfig())

	_, gen := cache.Snapshot()
	cache.Invalidate()

	assert.False(t, cache.Fill(gen, []*Rule{{ID: "stale"}}))
	rules, current := cache.Snapshot()
	assert.Nil(t, rules)

	assert.True(t, cache.Fill(current, []*Rule{{ID: "fresh"}}))
	rules, _ = cache.Snapshot()
	assert.Equal(t, []string{"fresh"}, ruleIDs(rules))
}

// An empty rule list is a valid cache entry, distinct from a miss.
func TestInMemoryRulesCacheEmpty(t *testing.T) {
	cache := NewInMemoryRulesCache(DefaultCacheConfig())
	_, gen := cache.Snapshot()
	cache.Fill(gen, nil)

	got, _ := cache.Snapshot()
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestInMemoryRulesCacheTTL(t *testing.T) {
	cache := NewInMemoryRulesCache(CacheConfig{TTL: time.Second})
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	_, gen := cache.Snapshot()
	cache.Fill(gen, []*Rule{{ID: "a"}})

	clock = clock.Add(500 * time.Millisecond)
	rules, _ := cache.Snapshot()
	assert.Equal(t, []string{"a"}, ruleIDs(rules))

	clock = clock.Add(time.Second)
	rules, after := cache.Snapshot()
	assert.Nil(t, rules)
	assert.Equal(t, gen, after, "expiry does not start a new generation")
}

// Reordering the returned slice does not affect the cached one.
func TestInMemoryRulesCacheCopies(t *testing.T) {
	cache := NewInMemoryRulesCache(DefaultCacheConfig())
	_, gen := cache.Snapshot()
	cache.Fill(gen, []*Rule{{ID: "a"}, {ID: "b"}})

	got, _ := cache.Snapshot()
	got[0], got[1] = got[1], got[0]

	again, _ := cache.Snapshot()
	assert.Equal(t, []string{"a", "b"}, ruleIDs(again))
}
