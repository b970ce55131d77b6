package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "autodeploy"

var (
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Total number of deployment pipelines run, labeled by final status.",
		},
		[]string{"status"},
	)

	RejectedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_requests_total",
			Help:      "Requests rejected before any oracle call, labeled by reason.",
		},
		[]string{"reason"},
	)

	PipelineStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_steps_total",
			Help:      "Total number of pipeline steps attempted, labeled by step and outcome.",
		},
		[]string{"step", "outcome"},
	)

	PipelineStepLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_step_latency_seconds",
			Help:      "Wall time spent in each pipeline step (seconds).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"step"},
	)

	CallbackDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_deliveries_total",
			Help:      "Total number of callback deliveries, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests delayed or rejected by a rate limit bucket.",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(
		DeploymentsTotal,
		RejectedRequestsTotal,
		PipelineStepsTotal,
		PipelineStepLatencySeconds,
		CallbackDeliveriesTotal,
		RateLimitHitsTotal,
	)
}

// Outcome maps an error to the outcome label used by the step and delivery counters.
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
