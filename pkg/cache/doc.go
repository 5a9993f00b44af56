// Package cache stores fetched API responses so identical requests are not
// sent twice.
//
// Two backends implement Store:
//
//   - RedisStore keeps entries in Redis, so the cache survives across runs
//     and can be shared by several machines.
//   - MemoryStore is a bounded LRU living for one process.
//
// Entries created with a ttl <= 0 never expire, which matches archive data
// that does not change once published.
//
// # Basic Usage
//
//	store := cache.NewRedisStore(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := cache.KeyFromURL(req.URL)
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch, then
//		_ = store.Set(ctx, key, cache.NewEntry(body, http.StatusOK, 0))
//	}
//
// # Metrics
//
//   - citydata_cache_hits_total{layer} - Cache hits
//   - citydata_cache_misses_total{layer} - Cache misses
//   - citydata_cache_size_bytes{layer} - Bytes written
//   - citydata_cache_errors_total{operation} - Cache operation errors
package cache
