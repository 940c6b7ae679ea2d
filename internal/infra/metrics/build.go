package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(buildInfo)
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "gptq_build_info",
		Help: "A constant metric with labels for process role and version.",
	},
	[]string{"role", "version"},
)

func SetBuildInfo(role, version string) {
	buildInfo.WithLabelValues(norm(role), version).Set(1)
}
