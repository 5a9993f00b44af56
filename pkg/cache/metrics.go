package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache layers used as metric labels.
const (
	LayerRedis  = "redis"
	LayerMemory = "memory"
)

var (
	// CacheHits tracks cache hits by layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citydata_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses by layer
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citydata_cache_misses_total",
			Help: "Total number of response cache misses",
		},
		[]string{"layer"},
	)

	// CacheSize tracks bytes written to the cache by layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citydata_cache_size_bytes",
			Help: "Bytes written to the response cache",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citydata_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
