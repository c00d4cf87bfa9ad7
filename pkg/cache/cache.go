// Package cache provides the thread-safe search result cache with LRU
// eviction, TTL expiry, and fuzzy query-similarity lookup, plus the
// pre-flight plan deduplicator that collapses near-identical queries before
// they are fanned out.
package cache

import (
	"sync"
	"time"

	"github.com/codeready-toolchain/scout/pkg/models"
)

// DefaultSimilarityThreshold is the minimum similarity for a fuzzy cache hit
// and for plan dedup.
const DefaultSimilarityThreshold = 0.85

type entry struct {
	query      string // original (pre-normalization) query
	results    []models.SearchHit
	insertedAt time.Time
	lastAccess time.Time
	hitCount   int
}

// SearchCache is a thread-safe mapping from normalized query to search
// results, bounded by (maxSize, ttl). Expired entries are invisible to all
// lookups and removed lazily on access — no background goroutine.
type SearchCache struct {
	mu        sync.Mutex
	entries   map[string]*entry
	maxSize   int
	ttl       time.Duration
	threshold float64

	hits        uint64
	similarHits uint64
	misses      uint64

	now func() time.Time // test hook
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	Hits        uint64  `json:"hits"`
	SimilarHits uint64  `json:"similar_hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
}

// NewSearchCache creates a cache bounded by maxSize entries and ttl age.
// similarityThreshold <= 0 selects DefaultSimilarityThreshold.
func NewSearchCache(maxSize int, ttl time.Duration, similarityThreshold float64) *SearchCache {
	if similarityThreshold <= 0 {
		similarityThreshold = DefaultSimilarityThreshold
	}
	return &SearchCache{
		entries:   make(map[string]*entry),
		maxSize:   maxSize,
		ttl:       ttl,
		threshold: similarityThreshold,
		now:       time.Now,
	}
}

// LookupKind tells which access path satisfied a Lookup.
type LookupKind int

const (
	LookupMiss LookupKind = iota
	LookupExact
	LookupSimilar
)

// Lookup consults the exact path first, then the fuzzy path, counting exactly
// one of {hit, similar_hit, miss}. matchedQuery is the normalized query of
// the entry that satisfied a fuzzy lookup.
func (c *SearchCache) Lookup(query string) (results []models.SearchHit, matchedQuery string, kind LookupKind) {
	key := Normalize(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.live(key); ok {
		c.touch(e)
		c.hits++
		return e.results, key, LookupExact
	}
	if key2, e := c.scanSimilar(key); e != nil {
		c.touch(e)
		c.similarHits++
		return e.results, key2, LookupSimilar
	}
	c.misses++
	return nil, "", LookupMiss
}

// Get returns cached results for the exact normalized query, if unexpired.
func (c *SearchCache) Get(query string) ([]models.SearchHit, bool) {
	key := Normalize(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key)
	if !ok {
		c.misses++
		return nil, false
	}
	c.touch(e)
	c.hits++
	return e.results, true
}

// GetSimilar scans unexpired entries for the first whose similarity to query
// meets the threshold, returning its results and normalized query.
func (c *SearchCache) GetSimilar(query string) ([]models.SearchHit, string, bool) {
	key := Normalize(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if matched, e := c.scanSimilar(key); e != nil {
		c.touch(e)
		c.similarHits++
		return e.results, matched, true
	}
	c.misses++
	return nil, "", false
}

// Set stores results under the normalized query, evicting the
// least-recently-used entry when the cache is full. Overwriting an existing
// key refreshes its insertion time and resets its hit count.
func (c *SearchCache) Set(query string, results []models.SearchHit) {
	key := Normalize(query)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}
	c.entries[key] = &entry{
		query:      query,
		results:    results,
		insertedAt: now,
		lastAccess: now,
	}
}

// Stats returns a snapshot of the cache counters. The expiry scan runs first
// so Size reflects only live entries.
func (c *SearchCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpired()
	lookups := c.hits + c.similarHits + c.misses
	rate := 0.0
	if lookups > 0 {
		rate = float64(c.hits+c.similarHits) / float64(lookups)
	}
	return Stats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		SimilarHits: c.similarHits,
		Misses:      c.misses,
		HitRate:     rate,
	}
}

// Purge removes all expired entries and returns how many were dropped.
func (c *SearchCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpired()
}

// purgeExpired removes every expired entry and returns how many were
// dropped. Caller holds c.mu.
func (c *SearchCache) purgeExpired() int {
	dropped := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

// live returns the entry for key if present and unexpired, removing it when
// expired. Caller holds c.mu.
func (c *SearchCache) live(key string) (*entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

// scanSimilar linearly scans unexpired entries for the first similarity hit,
// dropping expired entries it walks over. Caller holds c.mu.
func (c *SearchCache) scanSimilar(key string) (string, *entry) {
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			continue
		}
		if Similarity(key, k) >= c.threshold {
			return k, e
		}
	}
	return "", nil
}

func (c *SearchCache) expired(e *entry) bool {
	return c.ttl > 0 && c.now().Sub(e.insertedAt) > c.ttl
}

func (c *SearchCache) touch(e *entry) {
	e.lastAccess = c.now()
	e.hitCount++
}

// evictLRU removes the entry with the oldest lastAccess. Caller holds c.mu.
func (c *SearchCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.lastAccess.Before(oldest) {
			oldestKey, oldest = k, e.lastAccess
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
