package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(deliveriesTotal) }

// kind: webhook|channel|direct
// delivered: true|false
var deliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gptq_deliveries_total",
		Help: "Delivery attempts by destination kind and outcome.",
	},
	[]string{"kind", "delivered"},
)

func IncDelivery(kind string, delivered bool) {
	deliveriesTotal.WithLabelValues(norm(kind), strconv.FormatBool(delivered)).Inc()
}
