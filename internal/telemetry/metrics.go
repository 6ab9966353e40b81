package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics holds metric instruments for authentication operations.
// A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	AuthAttempts    metric.Int64Counter // Total auth attempts
	AuthFailures    metric.Int64Counter // Failed auth attempts
	AuthDuration    metric.Float64Histogram
	TokensIssued    metric.Int64Counter
	RememberRotated metric.Int64Counter
}

// NewAuthMetrics creates metric instruments for authentication telemetry.
func NewAuthMetrics() (*AuthMetrics, error) {
	meter := otel.Meter("gridauth/auth")

	authAttempts, err := meter.Int64Counter(
		"auth.attempt.count",
		metric.WithDescription("Total number of authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	authFailures, err := meter.Int64Counter(
		"auth.failure.count",
		metric.WithDescription("Total number of failed authentication attempts"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	authDuration, err := meter.Float64Histogram(
		"auth.duration",
		metric.WithDescription("Authentication latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return nil, err
	}

	tokensIssued, err := meter.Int64Counter(
		"auth.token.issued.count",
		metric.WithDescription("Total number of API tokens issued"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	rememberRotated, err := meter.Int64Counter(
		"auth.remember.rotation.count",
		metric.WithDescription("Remember-me token rotations by outcome"),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		AuthAttempts:    authAttempts,
		AuthFailures:    authFailures,
		AuthDuration:    authDuration,
		TokensIssued:    tokensIssued,
		RememberRotated: rememberRotated,
	}, nil
}

// RecordAuth records an authentication attempt with method, outcome, and duration.
func (m *AuthMetrics) RecordAuth(ctx context.Context, method string, success bool, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("auth.method", method),
		attribute.Bool("auth.success", success),
	)

	m.AuthAttempts.Add(ctx, 1, attrs)
	m.AuthDuration.Record(ctx, durationMs, attrs)
	if !success {
		m.AuthFailures.Add(ctx, 1, attrs)
	}
}

// RecordTokenIssued counts an issued API token.
func (m *AuthMetrics) RecordTokenIssued(ctx context.Context, tokenType, environment string) {
	if m == nil {
		return
	}
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("token.type", tokenType),
		attribute.String("token.environment", environment),
	))
}

// RecordRememberRotation counts a remember token rotation ("rotated", "conflict").
func (m *AuthMetrics) RecordRememberRotation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.RememberRotated.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
