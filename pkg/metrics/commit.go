package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pos"

// Outcome label used for successful engine operations.
const OutcomeOK = "ok"

// CommitMetrics instruments the transaction commit engine and catalog cache.
// A nil *CommitMetrics is valid and records nothing.
type CommitMetrics struct {
	duration      *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	retries       *prometheus.CounterVec
	negative      prometheus.Counter
	cacheRebuilds *prometheus.CounterVec
}

func NewCommitMetrics(reg prometheus.Registerer) *CommitMetrics {
	if reg == nil {
		return &CommitMetrics{}
	}
	m := &CommitMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_duration_seconds",
			Help:      "Duration of engine operations (commit, void, adjust).",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_outcomes_total",
			Help:      "Engine operations by outcome code.",
		}, []string{"operation", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_retries_total",
			Help:      "Atomic units retried after a lost race.",
		}, []string{"reason"}),
		negative: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_negative_total",
			Help:      "Inventory writes that left quantity on hand below zero.",
		}),
		cacheRebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_rebuilds_total",
			Help:      "Wholesale catalog cache rebuilds by trigger.",
		}, []string{"trigger"}),
	}
	reg.MustRegister(m.duration, m.outcomes, m.retries, m.negative, m.cacheRebuilds)
	return m
}

// Observe records the duration and outcome of one engine operation.
// outcome is OutcomeOK or an error code.
func (m *CommitMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	operation = normalizeLabel(operation)
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
	m.outcomes.WithLabelValues(operation, normalizeLabel(outcome)).Inc()
}

func (m *CommitMetrics) IncRetry(reason string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *CommitMetrics) IncNegativeStock() {
	if m == nil || m.negative == nil {
		return
	}
	m.negative.Inc()
}

func (m *CommitMetrics) IncCacheRebuild(trigger string) {
	if m == nil || m.cacheRebuilds == nil {
		return
	}
	m.cacheRebuilds.WithLabelValues(normalizeLabel(trigger)).Inc()
}
