package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a response cache backend.
type Store interface {
	// Get returns ErrCacheMiss if the key doesn't exist or the entry is expired.
	Get(ctx context.Context, key CacheKey) (*CacheEntry, error)
	Set(ctx context.Context, key CacheKey, entry *CacheEntry) error
	Delete(ctx context.Context, key CacheKey) error
}
