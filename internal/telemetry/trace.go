package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names used by the auth services.
const (
	TracerAPIToken = "gridauth/services/iam/apitoken"
	TracerSession  = "gridauth/services/iam/session"
)

// Common attribute keys
const (
	AttrUserID          = "user.id"
	AttrTokenType       = "token.type"
	AttrTokenEnv        = "token.environment"
	AttrTokenGroup      = "token.group"
	AttrAuthMethod      = "auth.method"
	AttrViaRemember     = "auth.via_remember"
	AttrRejectionReason = "auth.rejection_reason"
)

// StartSpan creates a new span for a service operation.
//
//	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerAPIToken, "apitoken.Generate",
//	    attribute.String(telemetry.AttrUserID, id),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds a named event to the span with optional attributes.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
