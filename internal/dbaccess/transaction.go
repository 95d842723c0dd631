package dbaccess

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/dbkit/internal/db"
	"github.com/oriys/dbkit/internal/logging"
	"github.com/oriys/dbkit/internal/metrics"
	"github.com/oriys/dbkit/internal/observability"
)

// Transaction runs stmts in order on one leased connection inside a single
// database transaction and commits them, or rolls everything back.
//
// The connection is released exactly once on every path once it has been
// acquired: after commit, after rollback, and after a failed begin. Statement
// i+1 is never issued before statement i has returned. A failing statement or
// a failing commit triggers one rollback; if that rollback fails too, the
// returned *Error still carries the triggering error and exposes the rollback
// error only through RollbackErr.
//
// On a Cassandra pool the transaction is a logged batch: statements are
// queued in order and applied atomically on commit.
func (g *Gateway) Transaction(ctx context.Context, stmts []db.Statement) (err error) {
	if !g.initialized() {
		return ErrNotInitialized
	}

	txID := g.newID()
	log := logging.WithTx(g.logger, txID, g.backend)
	started := time.Now()

	ctx, span := observability.StartSpan(ctx, "dbkit.transaction",
		observability.AttrBackend.String(g.backend),
		observability.AttrTxID.String(txID),
		observability.AttrStatementCount.Int(len(stmts)),
	)
	defer span.End()

	// Deferred before release so the outcome is recorded once the
	// connection is back in the pool.
	outcome := metrics.OutcomeFailed
	defer func() {
		g.finish(ctx, span, log, outcome, started, err)
	}()

	conn, release, err := g.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer release()

	if err := conn.Begin(ctx); err != nil {
		return &Error{Op: OpBegin, Index: -1, Err: err}
	}
	log.DebugContext(ctx, "transaction started", "statements", len(stmts))

	if txErr := g.runAll(ctx, conn, stmts); txErr != nil {
		outcome = metrics.OutcomeRolledBack
		return g.rollback(ctx, conn, span, log, txErr)
	}

	if err := conn.Commit(ctx); err != nil {
		outcome = metrics.OutcomeRolledBack
		return g.rollback(ctx, conn, span, log, &Error{Op: OpCommit, Index: -1, Err: err})
	}

	outcome = metrics.OutcomeCommitted
	return nil
}

// Batch is Transaction under the name used by wide-column stores.
func (g *Gateway) Batch(ctx context.Context, stmts []db.Statement) error {
	return g.Transaction(ctx, stmts)
}

func (g *Gateway) runAll(ctx context.Context, conn db.Conn, stmts []db.Statement) *Error {
	for i, stmt := range stmts {
		sctx, span := observability.StartSpan(ctx, "dbkit.statement",
			observability.AttrBackend.String(g.backend),
			observability.AttrStatementIndex.Int(i),
			observability.AttrStatementHash.String(hashStatement(stmt.Query)),
		)
		_, err := conn.Run(sctx, stmt.Query, stmt.Params)
		g.metrics.ObserveStatement(g.backend, err)
		if err != nil {
			observability.SetSpanError(span, err)
			span.End()
			return &Error{Op: OpStatement, Index: i, Query: stmt.Query, Err: err}
		}
		span.End()
	}
	return nil
}

// rollback is the single compensating action for a failed transaction. It
// uses a context detached from cancellation so a cancelled caller cannot
// leave the connection mid-transaction.
func (g *Gateway) rollback(ctx context.Context, conn db.Conn, span trace.Span, log *slog.Logger, cause *Error) error {
	if err := conn.Rollback(context.WithoutCancel(ctx)); err != nil {
		cause.RollbackErr = err
		g.metrics.ObserveRollbackFailure(g.backend)
		span.RecordError(err)
		log.ErrorContext(ctx, "rollback failed",
			"error", err,
			"cause", cause.Err,
		)
	}
	return cause
}

func (g *Gateway) finish(ctx context.Context, span trace.Span, log *slog.Logger, outcome string, started time.Time, err error) {
	elapsed := time.Since(started)
	g.metrics.ObserveTransaction(g.backend, outcome, elapsed)
	span.SetAttributes(observability.AttrOutcome.String(outcome))

	if err != nil {
		observability.SetSpanError(span, err)
		log.WarnContext(ctx, "transaction failed",
			"outcome", outcome,
			"duration", elapsed,
			"error", err,
		)
		return
	}
	observability.SetSpanOK(span)
	log.DebugContext(ctx, "transaction committed", "duration", elapsed)
}
