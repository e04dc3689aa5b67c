package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the counters recorded by the authentication services.
type Metrics struct {
	ceremonyOutcomes  metric.Int64Counter
	codeVerifications metric.Int64Counter
	httpRequests      metric.Int64Counter
	httpDuration      metric.Float64Histogram
}

// NewMetrics creates the auth counters on mp. A nil mp yields no-op counters.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	outcomes, err := meter.Int64Counter("auth.ceremony.outcomes",
		metric.WithDescription("WebAuthn ceremony completions by ceremony and outcome"))
	if err != nil {
		return nil, err
	}
	codes, err := meter.Int64Counter("auth.code.verifications",
		metric.WithDescription("Participant code verifications by method and outcome"))
	if err != nil {
		return nil, err
	}
	requests, err := meter.Int64Counter("auth.http.requests",
		metric.WithDescription("HTTP requests by route and status"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("auth.http.duration",
		metric.WithDescription("HTTP request latency by route"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		ceremonyOutcomes:  outcomes,
		codeVerifications: codes,
		httpRequests:      requests,
		httpDuration:      duration,
	}, nil
}

// CeremonyOutcome counts one completed ceremony ("registration" or "authentication").
func (m *Metrics) CeremonyOutcome(ctx context.Context, ceremony, outcome string) {
	if m == nil {
		return
	}
	m.ceremonyOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ceremony", ceremony),
		attribute.String("outcome", outcome),
	))
}

// CodeVerification counts one code check ("email" or "totp").
func (m *Metrics) CodeVerification(ctx context.Context, method string, ok bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if ok {
		outcome = "accepted"
	}
	m.codeVerifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
}

// HTTPRequest records one served request. route is the matched pattern, not the raw path.
func (m *Metrics) HTTPRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}
