// Package cache implements the fingerprint-keyed result cache: a sharded,
// byte-budgeted LRU with TTL eviction and per-fingerprint single-flight
// coalescing, per spec.md §4.9.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is one cached result.
type Entry[T any] struct {
	Value      T
	SizeBytes  int64
	InsertedAt time.Time
	TTL        time.Duration
	DatasetID  string
}

func (e Entry[T]) expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.InsertedAt.Add(e.TTL))
}

const shardCount = 16

type shard[T any] struct {
	mu        sync.Mutex
	entries   map[string]*list.Element // fingerprint -> element
	lru       *list.List               // front = most recently used
	usedBytes int64
}

type lruItem[T any] struct {
	key   string
	entry Entry[T]
}

// Cache is a sharded, TTL + byte-budgeted LRU result cache keyed by
// fingerprint, with single-flight coalescing of concurrent identical
// requests and a per-dataset invalidation index.
type Cache[T any] struct {
	shards        [shardCount]*shard[T]
	maxBytesPer   int64
	maxEntryBytes int64
	group         singleflight.Group

	invMu     sync.Mutex
	byDataset map[string]map[string]struct{} // dataset id -> set of fingerprints
}

// New builds a Cache with a total byte budget split evenly across shards,
// and a per-entry size cap (spec.md §4.9's "cacheable predicate").
func New[T any](maxBytes, maxEntryBytes int64) *Cache[T] {
	c := &Cache[T]{
		maxBytesPer:   maxBytes / shardCount,
		maxEntryBytes: maxEntryBytes,
		byDataset:     make(map[string]map[string]struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard[T]{
			entries: make(map[string]*list.Element),
			lru:     list.New(),
		}
	}
	return c
}

func (c *Cache[T]) shardFor(fingerprint string) *shard[T] {
	var h uint32
	for i := 0; i < len(fingerprint); i++ {
		h = h*31 + uint32(fingerprint[i])
	}
	return c.shards[h%shardCount]
}

// Get returns the cached value for fingerprint, if present and unexpired.
func (c *Cache[T]) Get(fingerprint string) (T, bool) {
	var zero T
	s := c.shardFor(fingerprint)

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[fingerprint]
	if !ok {
		return zero, false
	}
	item := el.Value.(*lruItem[T])
	if item.entry.expired(time.Now()) {
		s.removeLocked(el)
		return zero, false
	}

	s.lru.MoveToFront(el)
	return item.entry.Value, true
}

// Set inserts or replaces a cache entry, evicting least-recently-used
// entries in the same shard until the shard's byte budget is respected.
// Entries larger than maxEntryBytes are silently not cached.
func (c *Cache[T]) Set(fingerprint string, value T, sizeBytes int64, ttl time.Duration, datasetID string) {
	if c.maxEntryBytes > 0 && sizeBytes > c.maxEntryBytes {
		return
	}

	s := c.shardFor(fingerprint)
	entry := Entry[T]{Value: value, SizeBytes: sizeBytes, InsertedAt: time.Now(), TTL: ttl, DatasetID: datasetID}

	s.mu.Lock()
	if el, ok := s.entries[fingerprint]; ok {
		s.removeLocked(el)
	}

	el := s.lru.PushFront(&lruItem[T]{key: fingerprint, entry: entry})
	s.entries[fingerprint] = el
	s.usedBytes += sizeBytes

	for s.usedBytes > c.maxBytesPer && s.lru.Len() > 0 {
		back := s.lru.Back()
		s.removeLocked(back)
	}
	s.mu.Unlock()

	c.indexDataset(datasetID, fingerprint)
}

func (s *shard[T]) removeLocked(el *list.Element) {
	item := el.Value.(*lruItem[T])
	delete(s.entries, item.key)
	s.lru.Remove(el)
	s.usedBytes -= item.entry.SizeBytes
}

func (c *Cache[T]) indexDataset(datasetID, fingerprint string) {
	if datasetID == "" {
		return
	}
	c.invMu.Lock()
	set, ok := c.byDataset[datasetID]
	if !ok {
		set = make(map[string]struct{})
		c.byDataset[datasetID] = set
	}
	set[fingerprint] = struct{}{}
	c.invMu.Unlock()
}

// InvalidateDataset drops every cached fingerprint belonging to datasetID,
// per spec.md §4.9's per-dataset invalidation.
func (c *Cache[T]) InvalidateDataset(datasetID string) {
	c.invMu.Lock()
	fingerprints := c.byDataset[datasetID]
	delete(c.byDataset, datasetID)
	c.invMu.Unlock()

	for fp := range fingerprints {
		s := c.shardFor(fp)
		s.mu.Lock()
		if el, ok := s.entries[fp]; ok {
			s.removeLocked(el)
		}
		s.mu.Unlock()
	}
}

// Clear empties the entire cache (admin /admin/cache/clear).
func (c *Cache[T]) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[string]*list.Element)
		s.lru = list.New()
		s.usedBytes = 0
		s.mu.Unlock()
	}
	c.invMu.Lock()
	c.byDataset = make(map[string]map[string]struct{})
	c.invMu.Unlock()
}

// Compute is what GetOrCompute calls on a cache miss.
type Compute[T any] func(ctx context.Context) (value T, sizeBytes int64, err error)

// GetOrCompute implements the read-through, single-flight-coalesced path:
// a cache hit returns immediately; a miss runs compute, with concurrent
// identical fingerprints sharing one execution (the "leader"). The leader's
// successful, cacheable result is stored before being returned to every
// waiter. bypass skips the lookup (Cache-Control: no-cache) but still
// populates the cache on success, per spec.md §4.9.
func (c *Cache[T]) GetOrCompute(ctx context.Context, fingerprint, datasetID string, ttl time.Duration, bypass bool, compute Compute[T]) (value T, cached bool, err error) {
	if !bypass {
		if v, ok := c.Get(fingerprint); ok {
			return v, true, nil
		}
	}

	result, err, shared := c.group.Do(fingerprint, func() (any, error) {
		v, size, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(fingerprint, v, size, ttl, datasetID)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}

	return result.(T), shared, nil
}
