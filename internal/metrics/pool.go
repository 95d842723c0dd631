package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oriys/dbkit/internal/db"
)

// poolCollector reads db.PoolStats at scrape time.
type poolCollector struct {
	backend string
	stats   func() db.PoolStats

	open         *prometheus.Desc
	inUse        *prometheus.Desc
	idle         *prometheus.Desc
	maxConns     *prometheus.Desc
	waitCount    *prometheus.Desc
	waitDuration *prometheus.Desc
}

func newPoolCollector(namespace, backend string, stats func() db.PoolStats) *poolCollector {
	labels := prometheus.Labels{"backend": backend}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", name), help, nil, labels)
	}
	return &poolCollector{
		backend:      backend,
		stats:        stats,
		open:         desc("open_connections", "Connections currently open in the driver pool"),
		inUse:        desc("in_use_connections", "Connections currently checked out of the driver pool"),
		idle:         desc("idle_connections", "Idle connections in the driver pool"),
		maxConns:     desc("max_connections", "Maximum connections the driver pool allows, 0 for unlimited"),
		waitCount:    desc("wait_total", "Acquires that had to wait for a free connection"),
		waitDuration: desc("wait_seconds_total", "Total time spent waiting for a free connection"),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.open
	ch <- c.inUse
	ch <- c.idle
	ch <- c.maxConns
	ch <- c.waitCount
	ch <- c.waitDuration
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(s.Open))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(s.Max))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(s.WaitCount))
	ch <- prometheus.MustNewConstMetric(c.waitDuration, prometheus.CounterValue, s.WaitDuration.Seconds())
}

// RegisterPool exports the driver pool statistics of backend. stats is called
// on every scrape.
func (p *Prometheus) RegisterPool(backend string, stats func() db.PoolStats) error {
	if p == nil || stats == nil {
		return nil
	}
	return p.registry.Register(newPoolCollector(p.namespace, backend, stats))
}
