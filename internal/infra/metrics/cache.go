package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal) }

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gptq_cache_requests_total",
		Help: "Total number of cache requests, labeled by entity and result.",
	},
	[]string{"entity", "result"}, // result: 'hit', 'miss'
)

func IncCacheRequest(entity, result string) {
	cacheRequestsTotal.WithLabelValues(norm(entity), norm(result)).Inc()
}
