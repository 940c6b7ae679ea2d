package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		completionTokensIn,
		completionLatencyMs,
		completionBudgetBlocks,
	)
}

var (
	completionTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gptq_completion_tokens_in",
			Help: "Sum of prompt tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	completionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gptq_completion_latency_ms",
			Help:    "Completion call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		},
		[]string{"provider", "model", "success"},
	)

	completionBudgetBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gptq_completion_budget_blocks",
			Help: "Prompts refused because no reply budget remained.",
		},
		[]string{"provider", "model"},
	)
)

func BudgetBlocked(provider, model string) {
	completionBudgetBlocks.WithLabelValues(norm(provider), norm(model)).Inc()
}

func ObserveCompletion(provider, model string, tokensIn, latencyMs int, success bool) {
	completionTokensIn.WithLabelValues(norm(provider), norm(model)).Add(float64(tokensIn))
	completionLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
