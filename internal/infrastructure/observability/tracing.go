package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "collab-server/groupchat-api"

// GetTracer returns the tracer for the groupchat-api service.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSocketEventSpan starts a span for one inbound websocket event.
func StartSocketEventSpan(ctx context.Context, event, connID string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "socket."+event,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("socket.event", event),
			attribute.String("socket.connection_id", connID),
		),
	)
}

// GroupAttribute tags a span with the chat group it operates on.
func GroupAttribute(groupID int64) attribute.KeyValue {
	return attribute.Int64("chat.group_id", groupID)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
