package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transaction outcomes used as the "outcome" label.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
)

// Default histogram buckets for durations (in milliseconds)
var defaultBuckets = []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Prometheus wraps the collectors for pool and transaction activity.
// A nil *Prometheus is valid and records nothing.
type Prometheus struct {
	registry  *prometheus.Registry
	namespace string

	// Counters
	statementsTotal       *prometheus.CounterVec
	transactionsTotal     *prometheus.CounterVec
	acquireFailuresTotal  *prometheus.CounterVec
	rollbackFailuresTotal *prometheus.CounterVec

	// Histograms
	acquireDuration     *prometheus.HistogramVec
	transactionDuration *prometheus.HistogramVec

	// Gauges
	connectionsInUse *prometheus.GaugeVec
	uptime           prometheus.GaugeFunc
}

// NewPrometheus builds a Prometheus recorder with its own registry.
func NewPrometheus(namespace string, buckets []float64) *Prometheus {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	started := time.Now()

	registry := prometheus.NewRegistry()
	// Register default Go and process collectors
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &Prometheus{
		registry:  registry,
		namespace: namespace,

		statementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "statements_total",
				Help:      "Total number of statements executed",
			},
			[]string{"backend", "status"},
		),

		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of transactions by terminal outcome",
			},
			[]string{"backend", "outcome"},
		),

		acquireFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "acquire_failures_total",
				Help:      "Connection acquisitions that failed",
			},
			[]string{"backend"},
		),

		rollbackFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollback_failures_total",
				Help:      "Rollbacks that returned an error",
			},
			[]string{"backend"},
		),

		acquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "acquire_duration_milliseconds",
				Help:      "Time spent waiting for a pooled connection in milliseconds",
				Buckets:   buckets,
			},
			[]string{"backend"},
		),

		transactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_milliseconds",
				Help:      "Duration of transactions from start until the connection is released, in milliseconds",
				Buckets:   buckets,
			},
			[]string{"backend", "outcome"},
		),

		connectionsInUse: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connections_in_use",
				Help:      "Connections currently leased from the pool",
			},
			[]string{"backend"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the recorder was created",
		},
		func() float64 {
			return time.Since(started).Seconds()
		},
	)

	registry.MustRegister(
		pm.statementsTotal,
		pm.transactionsTotal,
		pm.acquireFailuresTotal,
		pm.rollbackFailuresTotal,
		pm.acquireDuration,
		pm.transactionDuration,
		pm.connectionsInUse,
		pm.uptime,
	)

	return pm
}

// ObserveAcquire records one pool acquisition attempt and, on success, a
// leased connection.
func (p *Prometheus) ObserveAcquire(backend string, d time.Duration, err error) {
	if p == nil {
		return
	}
	p.acquireDuration.WithLabelValues(backend).Observe(durationMs(d))
	if err != nil {
		p.acquireFailuresTotal.WithLabelValues(backend).Inc()
		return
	}
	p.connectionsInUse.WithLabelValues(backend).Inc()
}

// ObserveAcquireFailure records an acquisition refused before the pool was
// asked, such as a full gateway slot. No wait time is recorded.
func (p *Prometheus) ObserveAcquireFailure(backend string) {
	if p == nil {
		return
	}
	p.acquireFailuresTotal.WithLabelValues(backend).Inc()
}

// ObserveRelease records a connection returned to the pool.
func (p *Prometheus) ObserveRelease(backend string) {
	if p == nil {
		return
	}
	p.connectionsInUse.WithLabelValues(backend).Dec()
}

// ObserveStatement records one executed statement.
func (p *Prometheus) ObserveStatement(backend string, err error) {
	if p == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	p.statementsTotal.WithLabelValues(backend, status).Inc()
}

// ObserveTransaction records a transaction reaching a terminal state.
func (p *Prometheus) ObserveTransaction(backend, outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.transactionsTotal.WithLabelValues(backend, outcome).Inc()
	p.transactionDuration.WithLabelValues(backend, outcome).Observe(durationMs(d))
}

// ObserveRollbackFailure records a rollback that itself failed.
func (p *Prometheus) ObserveRollbackFailure(backend string) {
	if p == nil {
		return
	}
	p.rollbackFailuresTotal.WithLabelValues(backend).Inc()
}

// Handler returns an HTTP handler for Prometheus metrics scraping
func (p *Prometheus) Handler() http.Handler {
	if p == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the prometheus registry (for custom collectors)
func (p *Prometheus) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
