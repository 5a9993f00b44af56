package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces all cache keys.
const KeyPrefix = "citydata"

// CacheKey represents a unique identifier for a cached GET request.
type CacheKey struct {
	// Host is the API host (e.g. "data.cityofnewyork.us")
	Host string

	// Endpoint is the request path (e.g. "/resource/erm2-nwe9.json")
	Endpoint string

	// QueryParams are the query parameters
	QueryParams url.Values
}

// KeyFromURL builds a cache key from a request URL.
func KeyFromURL(u *url.URL) CacheKey {
	return CacheKey{
		Host:        u.Host,
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}
}

// String generates a deterministic cache key string.
// Format: citydata:host:endpoint:query1=val1:query2=val2
//
// Example:
//
//	citydata:data.cityofnewyork.us:resource/erm2-nwe9.json:$limit=50000:$offset=0
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if k.Host != "" {
		parts = append(parts, k.Host)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Query params sorted for determinism; repeated values keep their order.
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
