package routing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chroute_query_total",
		Help: "Router queries by operation and result.",
	}, []string{"op", "result"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chroute_query_duration_seconds",
		Help:    "Router query latency.",
		Buckets: prometheus.ExponentialBuckets(50e-6, 4, 10),
	}, []string{"op"})

	querySettled = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chroute_query_settled_vertices",
		Help:    "Vertices settled per query, both frontiers combined.",
		Buckets: prometheus.ExponentialBuckets(4, 4, 10),
	}, []string{"op"})
)

const (
	opCalculate       = "calculate"
	opCalculateWeight = "calculate_weight"
	opManyToMany      = "many_to_many"
	opConnectivity    = "connectivity"
	opRange           = "calculate_range"
)

func observeQuery(op string, start time.Time, settled int, err error, found bool) {
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case !found:
		result = "no_route"
	}
	queryTotal.WithLabelValues(op, result).Inc()
	queryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	querySettled.WithLabelValues(op).Observe(float64(settled))
}
