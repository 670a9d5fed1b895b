package rules

import "time"

// RulesCache holds the active rules of one engine between mutations.
//
// Every Invalidate starts a new generation. A reader that misses records the
// generation from Snapshot, loads the rules from the store, and hands both
// back to Fill; a fill from an older generation is dropped so that a load
// racing a mutation cannot resurrect the pre-mutation list.
type RulesCache interface {
	// Snapshot returns the cached rules and the current generation.
	// rules is nil on a miss or once the entry expired.
	Snapshot() (rules []*Rule, generation uint64)

	// Fill caches rules loaded at generation. It reports false, storing
	// nothing, when the cache was invalidated after that generation began.
	Fill(generation uint64, rules []*Rule) bool

	// Invalidate drops the cached rules and starts a new generation.
	Invalidate()
}

// CacheConfig controls how long a filled cache is trusted.
type CacheConfig struct {
	// TTL bounds the age of a cached list. Zero keeps it until the next
	// mutation through the engine.
	TTL time.Duration
}

// DefaultCacheConfig keeps cached rules until the next mutation.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{}
}
