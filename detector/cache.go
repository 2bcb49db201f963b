package detector

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const cacheCleanupInterval = 5 * time.Minute

// VerdictCache provides thread-safe caching of classification verdicts
type VerdictCache struct {
	mu    sync.RWMutex
	cache map[cacheKey]*CacheEntry
	ttl   time.Duration
	now   func() time.Time
}

// CacheEntry represents a cached verdict with expiration
type CacheEntry struct {
	Verdict   Verdict
	ExpiresAt time.Time
}

type cacheKey struct {
	content    uint64
	generation uint64
}

// NewVerdictCache creates a new cache with the specified TTL. Expired entries
// are swept in the background until ctx is done.
func NewVerdictCache(ctx context.Context, ttl time.Duration) *VerdictCache {
	cache := &VerdictCache{
		cache: make(map[cacheKey]*CacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}

	go cache.cleanup(ctx, cacheCleanupInterval)

	return cache
}

// generateKey ties the content hash to the table build it was classified against
func (vc *VerdictCache) generateKey(text string, table *RuleTable) cacheKey {
	return cacheKey{
		content:    xxhash.Sum64String(text),
		generation: table.Generation(),
	}
}

// Get retrieves a cached verdict if it exists and hasn't expired
func (vc *VerdictCache) Get(text string, table *RuleTable) (Verdict, bool) {
	if vc == nil || !table.Built() {
		return Verdict{}, false
	}

	vc.mu.RLock()
	defer vc.mu.RUnlock()

	entry, exists := vc.cache[vc.generateKey(text, table)]
	if !exists {
		return Verdict{}, false
	}

	// Check if expired
	if vc.now().After(entry.ExpiresAt) {
		return Verdict{}, false
	}

	return entry.Verdict.clone(), true
}

// Set stores a verdict in the cache
func (vc *VerdictCache) Set(text string, table *RuleTable, verdict Verdict) {
	if vc == nil || !table.Built() {
		return
	}

	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.cache[vc.generateKey(text, table)] = &CacheEntry{
		Verdict:   verdict.clone(),
		ExpiresAt: vc.now().Add(vc.ttl),
	}
}

// Len returns the number of stored entries, expired or not.
func (vc *VerdictCache) Len() int {
	if vc == nil {
		return 0
	}
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return len(vc.cache)
}

// clone detaches the verdict's map and slice from the caller's copy
func (v Verdict) clone() Verdict {
	v.Scores = maps.Clone(v.Scores)
	v.Matched = slices.Clone(v.Matched)
	return v
}

// sweep removes expired entries
func (vc *VerdictCache) sweep() {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	now := vc.now()
	for key, entry := range vc.cache {
		if now.After(entry.ExpiresAt) {
			delete(vc.cache, key)
		}
	}
}

// cleanup periodically removes expired entries
func (vc *VerdictCache) cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			vc.sweep()
		}
	}
}
