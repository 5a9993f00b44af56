package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryEntries bounds the in-memory store when no size is given.
const DefaultMemoryEntries = 256

// MemoryStore is a process-local LRU cache. It is used when no Redis is
// configured, so repeated requests within one run are still deduplicated.
type MemoryStore struct {
	lru *expirable.LRU[string, *CacheEntry]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an LRU store holding up to size entries.
// ttl bounds every entry's lifetime; ttl <= 0 keeps entries until evicted.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	return &MemoryStore{
		lru: expirable.NewLRU[string, *CacheEntry](size, nil, ttl),
	}
}

// Get retrieves a cache entry by key.
func (s *MemoryStore) Get(_ context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	entry, ok := s.lru.Get(cacheKey)
	if !ok {
		CacheMisses.WithLabelValues(LayerMemory).Inc()
		return nil, ErrCacheMiss
	}
	if entry.IsExpired() {
		s.lru.Remove(cacheKey)
		CacheMisses.WithLabelValues(LayerMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(LayerMemory).Inc()
	return entry, nil
}

// Set stores a cache entry.
func (s *MemoryStore) Set(_ context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.IsExpired() {
		return nil
	}
	s.lru.Add(key.String(), entry)
	return nil
}

// Delete removes a cache entry.
func (s *MemoryStore) Delete(_ context.Context, key CacheKey) error {
	s.lru.Remove(key.String())
	return nil
}

// Len returns the number of cached entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
