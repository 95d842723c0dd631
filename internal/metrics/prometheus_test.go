package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/dbkit/internal/db"
)

func TestNilRecorderIsNoop(t *testing.T) {
	var p *Prometheus
	p.ObserveAcquire("mysql", time.Millisecond, nil)
	p.ObserveRelease("mysql")
	p.ObserveStatement("mysql", errors.New("boom"))
	p.ObserveTransaction("mysql", OutcomeCommitted, time.Millisecond)
	p.ObserveRollbackFailure("mysql")
	assert.Nil(t, p.Registry())

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConnectionsInUseTracksLeases(t *testing.T) {
	p := NewPrometheus("dbkit", nil)

	p.ObserveAcquire("postgres", 2*time.Millisecond, nil)
	p.ObserveAcquire("postgres", time.Millisecond, nil)
	p.ObserveAcquire("postgres", time.Millisecond, errors.New("pool closed"))
	p.ObserveRelease("postgres")

	assert.Equal(t, 1.0, testutil.ToFloat64(p.connectionsInUse.WithLabelValues("postgres")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.acquireFailuresTotal.WithLabelValues("postgres")))
}

func TestTransactionAndStatementCounters(t *testing.T) {
	p := NewPrometheus("dbkit", nil)

	p.ObserveStatement("mysql", nil)
	p.ObserveStatement("mysql", nil)
	p.ObserveStatement("mysql", errors.New("syntax"))
	p.ObserveTransaction("mysql", OutcomeRolledBack, 3*time.Millisecond)
	p.ObserveRollbackFailure("mysql")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.statementsTotal.WithLabelValues("mysql", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.statementsTotal.WithLabelValues("mysql", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.transactionsTotal.WithLabelValues("mysql", OutcomeRolledBack)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.rollbackFailuresTotal.WithLabelValues("mysql")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	p := NewPrometheus("dbkit", nil)
	p.ObserveTransaction("cassandra", OutcomeCommitted, time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `dbkit_transactions_total{backend="cassandra",outcome="committed"} 1`))
}

func TestAcquireFailureSkipsDurationHistogram(t *testing.T) {
	p := NewPrometheus("dbkit", nil)
	p.ObserveAcquireFailure("mysql")
	p.ObserveAcquireFailure("mysql")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.acquireFailuresTotal.WithLabelValues("mysql")))
	assert.Zero(t, testutil.CollectAndCount(p.acquireDuration))
	assert.Zero(t, testutil.CollectAndCount(p.connectionsInUse))

	var nilRecorder *Prometheus
	nilRecorder.ObserveAcquireFailure("mysql")
}

func TestRegisterPoolExportsStats(t *testing.T) {
	p := NewPrometheus("dbkit", nil)
	stats := db.PoolStats{Open: 5, InUse: 2, Idle: 3, Max: 10, WaitCount: 7, WaitDuration: 250 * time.Millisecond}
	require.NoError(t, p.RegisterPool("postgres", func() db.PoolStats { return stats }))

	expected := `
# HELP dbkit_pool_idle_connections Idle connections in the driver pool
# TYPE dbkit_pool_idle_connections gauge
dbkit_pool_idle_connections{backend="postgres"} 3
# HELP dbkit_pool_max_connections Maximum connections the driver pool allows, 0 for unlimited
# TYPE dbkit_pool_max_connections gauge
dbkit_pool_max_connections{backend="postgres"} 10
# HELP dbkit_pool_open_connections Connections currently open in the driver pool
# TYPE dbkit_pool_open_connections gauge
dbkit_pool_open_connections{backend="postgres"} 5
# HELP dbkit_pool_wait_total Acquires that had to wait for a free connection
# TYPE dbkit_pool_wait_total counter
dbkit_pool_wait_total{backend="postgres"} 7
`
	assert.NoError(t, testutil.GatherAndCompare(p.Registry(), strings.NewReader(expected),
		"dbkit_pool_idle_connections", "dbkit_pool_max_connections",
		"dbkit_pool_open_connections", "dbkit_pool_wait_total"))

	// Stats are read on every scrape.
	stats.Open = 9
	assert.Contains(t, scrape(t, p), `dbkit_pool_open_connections{backend="postgres"} 9`)

	// A second registration for the same backend collides.
	assert.Error(t, p.RegisterPool("postgres", func() db.PoolStats { return stats }))
	assert.NoError(t, p.RegisterPool("mysql", func() db.PoolStats { return db.PoolStats{} }))

	var nilRecorder *Prometheus
	assert.NoError(t, nilRecorder.RegisterPool("postgres", func() db.PoolStats { return stats }))
}

func scrape(t *testing.T, p *Prometheus) string {
	t.Helper()
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
