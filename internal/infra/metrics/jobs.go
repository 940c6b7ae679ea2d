package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobsEnqueuedTotal,
		jobsClaimedTotal,
		jobsFinishedTotal,
		queueDepth,
		jobsProcessing,
		commandsTotal,
		pollerIdleTotal,
	)
}

var (
	jobsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gptq_jobs_enqueued_total",
			Help: "Total number of jobs placed in the queue.",
		},
	)

	jobsClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gptq_jobs_claimed_total",
			Help: "Total number of jobs claimed by the poller.",
		},
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gptq_jobs_finished_total",
			Help: "Total number of jobs finalized by the poller, labeled by state.",
		},
		[]string{"state"}, // 'completed', 'failed'
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gptq_queue_depth",
			Help: "Number of queued jobs observed at the last count.",
		},
	)

	jobsProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gptq_jobs_processing",
			Help: "Number of jobs in processing observed at the last count.",
		},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gptq_commands_total",
			Help: "Commands received by front ends, labeled by origin and intent.",
		},
		[]string{"origin", "intent"},
	)

	pollerIdleTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gptq_poller_idle_total",
			Help: "Poll cycles that found no queued job.",
		},
	)
)

func IncJobEnqueued() {
	jobsEnqueuedTotal.Inc()
}

func IncJobClaimed() {
	jobsClaimedTotal.Inc()
}

func IncJobFinished(state string) {
	jobsFinishedTotal.WithLabelValues(norm(state)).Inc()
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func SetJobsProcessing(n int) {
	jobsProcessing.Set(float64(n))
}

func IncCommand(origin, intent string) {
	commandsTotal.WithLabelValues(norm(origin), norm(intent)).Inc()
}

func IncPollerIdle() {
	pollerIdleTotal.Inc()
}
