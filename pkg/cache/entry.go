package cache

import (
	"time"
)

// CacheEntry represents a cached response body.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Expires is when the entry becomes stale. The zero value never expires.
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry builds an entry for body that lives for ttl. A ttl <= 0 never expires.
func NewEntry(body []byte, statusCode int, ttl time.Duration) *CacheEntry {
	now := time.Now()
	entry := &CacheEntry{
		Data:       body,
		StatusCode: statusCode,
		CachedAt:   now,
	}
	if ttl > 0 {
		entry.Expires = now.Add(ttl)
	}
	return entry
}

// Permanent reports whether the entry has no expiry.
func (e *CacheEntry) Permanent() bool {
	return e.Expires.IsZero()
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return !e.Permanent() && time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 for permanent entries and for entries already expired; use
// Permanent and IsExpired to tell the two apart.
func (e *CacheEntry) TTL() time.Duration {
	if e.Permanent() {
		return 0
	}
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
