package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the default registry. Labels are kept low-cardinality:
// role and status come from small fixed enums, kind is the cache subject kind.
var (
	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulseguard",
		Name:      "events_processed_total",
		Help:      "Events that completed the full pipeline.",
	})

	Delegations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulseguard",
		Name:      "delegations_total",
		Help:      "Stage delegations by worker role and outcome status.",
	}, []string{"role", "status"})

	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulseguard",
		Name:      "stage_fallbacks_total",
		Help:      "Local fallback computations by stage.",
	}, []string{"stage"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulseguard",
		Name:      "cache_lookups_total",
		Help:      "Score cache lookups by subject kind and result.",
	}, []string{"kind", "result"})

	RiskScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pulseguard",
		Name:      "risk_score",
		Help:      "Distribution of overall risk scores.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	AssessmentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulseguard",
		Name:      "analyzer_errors_total",
		Help:      "Factor analyzer failures absorbed by the engine.",
	}, []string{"category"})
)
