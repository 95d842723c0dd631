package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new client span with the given name and attributes
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError marks the span as errored
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Span attribute keys
var (
	AttrBackend        = attribute.Key("db.system")
	AttrTxID           = attribute.Key("dbkit.tx.id")
	AttrStatementCount = attribute.Key("dbkit.tx.statements")
	AttrStatementIndex = attribute.Key("dbkit.statement.index")
	AttrStatementHash  = attribute.Key("dbkit.statement.hash")
	AttrOutcome        = attribute.Key("dbkit.tx.outcome")
	AttrRowsReturned   = attribute.Key("dbkit.rows.returned")
)
