package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquireCounter tracks successful single-lock acquisitions.
	AcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockset_acquire_total",
		Help: "Total number of successful lock acquisitions",
	})
	// AcquireFailureCounter tracks acquisitions that failed mid-chain.
	AcquireFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockset_acquire_failures_total",
		Help: "Total number of failed lock acquisitions",
	})
	// ReleaseCounter tracks guard releases, including unwinds after failures.
	ReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockset_release_total",
		Help: "Total number of lock releases",
	})
	// HeldGauge reports the number of guards currently held.
	HeldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lockset_held_locks",
		Help: "Current number of held locks",
	})
	// AcquireWaitSeconds observes how long each acquisition step waited.
	AcquireWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lockset_acquire_wait_seconds",
		Help:    "Time spent waiting for a single lock acquisition",
		Buckets: prometheus.DefBuckets,
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers lockset core metrics on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquireCounter, AcquireFailureCounter, ReleaseCounter, HeldGauge, AcquireWaitSeconds)
}
