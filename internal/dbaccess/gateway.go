// Package dbaccess is the data-access entry point shared by every backend.
//
// It provides:
//   - Single statement execution on a leased connection
//   - Ordered, atomic multi-statement transactions with guaranteed release
//   - Per-gateway session and transaction slot limits
//   - Structured logs, Prometheus metrics and OpenTelemetry spans for both
package dbaccess

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/dbkit/internal/db"
	"github.com/oriys/dbkit/internal/logging"
	"github.com/oriys/dbkit/internal/metrics"
	"github.com/oriys/dbkit/internal/observability"
)

// Gateway runs statements and transactions against a db.Pool. It is the
// explicit handle returned by initialization; own one per pool at the
// application root and pass it where queries are made.
//
// A nil Gateway, or one built without a pool, fails every call with
// ErrNotInitialized.
type Gateway struct {
	pool    db.Pool
	backend string
	logger  *slog.Logger
	metrics *metrics.Prometheus

	sessions *slot
	txs      *slot

	newID func() string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger. Defaults to logging.Op().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithMetrics sets the Prometheus recorder. Defaults to none.
func WithMetrics(m *metrics.Prometheus) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLimits sets session and transaction slot limits.
func WithLimits(l Limits) Option {
	return func(g *Gateway) {
		g.sessions = newSlot("max_sessions", l.MaxSessions)
		g.txs = newSlot("max_tx_concurrency", l.MaxTx)
	}
}

// New creates a Gateway over pool. A nil pool, including a nil pointer of a
// concrete pool type, yields a Gateway that returns ErrNotInitialized.
//
// With WithMetrics set, a pool implementing db.StatsReporter also exports its
// driver statistics.
func New(pool db.Pool, opts ...Option) *Gateway {
	if isNil(pool) {
		pool = nil
	}
	g := &Gateway{
		pool:     pool,
		sessions: newSlot("max_sessions", 0),
		txs:      newSlot("max_tx_concurrency", 0),
		newID:    uuid.NewString,
	}
	if pool != nil {
		g.backend = pool.Backend()
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrOp(g.logger)

	if sr, ok := pool.(db.StatsReporter); ok && g.metrics != nil {
		if err := g.metrics.RegisterPool(g.backend, sr.Stats); err != nil {
			g.logger.Warn("pool stats not exported", "backend", g.backend, "error", err)
		}
	}
	return g
}

func isNil(pool db.Pool) bool {
	if pool == nil {
		return true
	}
	v := reflect.ValueOf(pool)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func (g *Gateway) initialized() bool {
	return g != nil && g.pool != nil
}

// Backend returns the name of the backing store.
func (g *Gateway) Backend() string {
	if g == nil {
		return ""
	}
	return g.backend
}

// Execute acquires a connection, runs one statement on it and releases the
// connection before returning, whatever the outcome.
func (g *Gateway) Execute(ctx context.Context, query string, params ...any) (*db.RowSet, error) {
	if !g.initialized() {
		return nil, ErrNotInitialized
	}

	ctx, span := observability.StartSpan(ctx, "dbkit.execute",
		observability.AttrBackend.String(g.backend),
		observability.AttrStatementHash.String(hashStatement(query)),
	)
	defer span.End()

	conn, release, err := g.acquire(ctx, false)
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, err
	}
	defer release()

	rs, err := conn.Run(ctx, query, params)
	g.metrics.ObserveStatement(g.backend, err)
	if err != nil {
		err = &Error{Op: OpStatement, Index: 0, Query: query, Err: err}
		observability.SetSpanError(span, err)
		g.logger.DebugContext(ctx, "statement failed",
			"backend", g.backend,
			"stmt_hash", hashStatement(query),
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(observability.AttrRowsReturned.Int(rs.Len()))
	observability.SetSpanOK(span)
	return rs, nil
}

// Close closes the underlying pool.
func (g *Gateway) Close() error {
	if !g.initialized() {
		return ErrNotInitialized
	}
	return g.pool.Close()
}

// PoolStats returns the number of sessions and transactions currently
// holding a connection through this gateway.
func (g *Gateway) PoolStats() (activeSessions, activeTx int) {
	if !g.initialized() {
		return 0, 0
	}
	return g.sessions.inUse(), g.txs.inUse()
}

// acquire takes the gateway slots and leases a connection. The returned
// release func gives back the connection and the slots; it must be called
// exactly once, and only when err is nil.
func (g *Gateway) acquire(ctx context.Context, tx bool) (db.Conn, func(), error) {
	if err := g.sessions.acquire(); err != nil {
		g.metrics.ObserveAcquireFailure(g.backend)
		return nil, nil, &Error{Op: OpAcquire, Index: -1, Err: err}
	}
	if tx {
		if err := g.txs.acquire(); err != nil {
			g.sessions.release()
			g.metrics.ObserveAcquireFailure(g.backend)
			return nil, nil, &Error{Op: OpAcquire, Index: -1, Err: err}
		}
	}

	start := time.Now()
	conn, err := g.pool.Acquire(ctx)
	g.metrics.ObserveAcquire(g.backend, time.Since(start), err)
	if err != nil {
		if tx {
			g.txs.release()
		}
		g.sessions.release()
		return nil, nil, &Error{Op: OpAcquire, Index: -1, Err: err}
	}

	release := func() {
		conn.Release()
		g.metrics.ObserveRelease(g.backend)
		if tx {
			g.txs.release()
		}
		g.sessions.release()
	}
	return conn, release, nil
}

func hashStatement(sql string) string {
	h := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(h[:8])
}
