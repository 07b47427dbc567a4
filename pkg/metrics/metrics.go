package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "stageboard"

	ResultOK    = "ok"
	ResultError = "error"
)

var (
	pageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "page_fetches_total",
			Help:      "Pages fetched per kind, stage and result",
		},
		[]string{"kind", "stage", "result"},
	)

	staleResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "stale_responses_total",
			Help:      "Responses discarded because their generation token was superseded",
		},
		[]string{"kind", "source"},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transition",
			Name:      "requests_total",
			Help:      "Optimistic stage transitions per kind, target stage and result",
		},
		[]string{"kind", "to", "result"},
	)

	transitionRejects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transition",
			Name:      "rejected_total",
			Help:      "Transitions rejected locally before any request was made",
		},
		[]string{"kind", "reason"},
	)

	serverRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests served by the reference server",
		},
		[]string{"route", "code"},
	)
)

func PageFetched(kind, stage, result string) {
	pageFetches.WithLabelValues(kind, stage, result).Inc()
}

func StaleDiscarded(kind, source string) {
	staleResponses.WithLabelValues(kind, source).Inc()
}

func TransitionFinished(kind, to, result string) {
	transitions.WithLabelValues(kind, to, result).Inc()
}

func TransitionRejected(kind, reason string) {
	transitionRejects.WithLabelValues(kind, reason).Inc()
}

func ServerRequest(route, code string) {
	serverRequests.WithLabelValues(route, code).Inc()
}
