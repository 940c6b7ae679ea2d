package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(httpRequestDuration) }

var httpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "gptq_http_request_duration_seconds",
		Help:    "Duration of HTTP front end requests by route and status class.",
		Buckets: []float64{0.005, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	},
	[]string{"route", "status"},
)

func ObserveHTTP(route, status string, seconds float64) {
	httpRequestDuration.WithLabelValues(route, status).Observe(seconds)
}
