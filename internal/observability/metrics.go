package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the gateway exposes on
// /metrics. A single NewMetrics() call per process registers every
// collector against the default registerer.
type Metrics struct {
	JobsProcessedTotal *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	QueueDepth         prometheus.Gauge
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	BreakerOpenSeconds prometheus.Gauge
	QuotaRejectedTotal prometheus.Counter
}

// NewMetrics constructs and registers the gateway's collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		JobsProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_jobs_processed_total",
			Help: "Completed jobs by terminal status.",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_job_duration_seconds",
			Help:    "Job latency from worker pickup to completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_queue_depth",
			Help: "Current number of jobs waiting in the queue.",
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Lookups served from the TTL cache without an upstream action.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "Lookups that required an upstream action.",
		}),
		BreakerOpenSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_breaker_open_seconds",
			Help: "Seconds remaining until the circuit breaker's cooldown elapses (0 when closed).",
		}),
		QuotaRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_quota_rejected_total",
			Help: "Requests rejected by the per-user quota.",
		}),
	}

	prometheus.MustRegister(
		m.JobsProcessedTotal,
		m.JobDuration,
		m.QueueDepth,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.BreakerOpenSeconds,
		m.QuotaRejectedTotal,
	)

	return m
}
