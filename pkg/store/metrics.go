package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chroute_store_cache_requests_total",
		Help: "Graph store cache lookups by cache and result.",
	}, []string{"cache", "result"})

	blockDecodeSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chroute_store_block_decode_seconds",
		Help:    "Time to read and decode one block on a cache miss.",
		Buckets: prometheus.ExponentialBuckets(10e-6, 4, 8),
	}, []string{"section"})
)

func observeLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequests.WithLabelValues(cache, result).Inc()
}

func observeDecode(section string, start time.Time) {
	blockDecodeSeconds.WithLabelValues(section).Observe(time.Since(start).Seconds())
}
