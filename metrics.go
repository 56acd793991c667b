package accessctl

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// managerMetrics exposes Prometheus collectors for the decision path. The
// manager works without them; WithMetrics opts in.
type managerMetrics struct {
	checks        *prometheus.CounterVec
	checkDuration prometheus.Histogram
	cacheHits     prometheus.Counter
	invalidations prometheus.Counter
	auditDropped  prometheus.Counter
}

// newManagerMetrics registers the collectors against the provided registerer.
// When the registerer is nil the default Prometheus registerer is used.
func newManagerMetrics(registerer prometheus.Registerer) *managerMetrics {
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accessctl_checks_total",
		Help: "Access checks partitioned by outcome.",
	}, []string{"outcome"})
	checkDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "accessctl_check_duration_seconds",
		Help:    "Latency of access checks in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accessctl_cache_hits_total",
		Help: "Decisions served from the decision cache.",
	})
	invalidations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accessctl_cache_invalidations_total",
		Help: "Full flushes of the decision cache.",
	})
	auditDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "accessctl_audit_dropped_total",
		Help: "Audit records dropped because the queue was full.",
	})
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(checks, checkDuration, cacheHits, invalidations, auditDropped)
	return &managerMetrics{
		checks:        checks,
		checkDuration: checkDuration,
		cacheHits:     cacheHits,
		invalidations: invalidations,
		auditDropped:  auditDropped,
	}
}

// observeCheck records one completed access check, cached or evaluated.
func (mm *managerMetrics) observeCheck(dec *AccessDecision, d time.Duration) {
	outcome := "denied"
	if dec != nil && dec.Granted {
		outcome = "granted"
	}
	mm.checks.WithLabelValues(outcome).Inc()
	mm.checkDuration.Observe(d.Seconds())
}
