// Package observe provides the observability primitives for VeritasVoice:
// OpenTelemetry metrics, distributed tracing, trace-aware structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping through a Prometheus exporter set up by [InitProvider]. Tests
// should use [NewMetrics] with their own [metric.MeterProvider] instead of
// [DefaultMetrics] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/veritasvoice"

// Classification paths, recorded as the "path" attribute.
const (
	PathInvalid   = "invalid"
	PathShort     = "trap_short"
	PathSilence   = "trap_silence"
	PathHeuristic = "heuristic"
)

// Explanation fallback reasons, recorded as the "reason" attribute.
const (
	FallbackSkipped     = "skipped"
	FallbackUnavailable = "unavailable"
	FallbackTimeout     = "timeout"
	FallbackError       = "error"
)

// Metrics holds all metric instruments. All fields are safe for concurrent
// use.
type Metrics struct {
	// AnalysisDuration tracks the full decode-to-response latency of Analyze.
	AnalysisDuration metric.Float64Histogram

	// ExplainDuration tracks time spent waiting on the explanation provider.
	ExplainDuration metric.Float64Histogram

	// Classifications counts verdicts. Attributes: prediction, path.
	Classifications metric.Int64Counter

	// ExplainFallbacks counts responses that used the templated explanation.
	// Attribute: reason.
	ExplainFallbacks metric.Int64Counter

	// ProviderRequests counts explanation backend calls. Attributes:
	// provider, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed explanation backend calls. Attribute:
	// provider.
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// provider, to.
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path, status_class.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Local analysis lands in
// the low buckets, remote explanations in the high ones.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 8, 10,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AnalysisDuration, err = m.Float64Histogram("veritasvoice.analysis.duration",
		metric.WithDescription("Latency of a full audio analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExplainDuration, err = m.Float64Histogram("veritasvoice.explain.duration",
		metric.WithDescription("Latency of the explanation provider call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Classifications, err = m.Int64Counter("veritasvoice.classifications",
		metric.WithDescription("Verdicts by prediction and classification path."),
	); err != nil {
		return nil, err
	}
	if met.ExplainFallbacks, err = m.Int64Counter("veritasvoice.explain.fallbacks",
		metric.WithDescription("Responses that used the templated explanation, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("veritasvoice.provider.requests",
		metric.WithDescription("Explanation backend calls by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("veritasvoice.provider.errors",
		metric.WithDescription("Failed explanation backend calls by provider."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("veritasvoice.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and target state."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("veritasvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status class."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Call it after [InitProvider] so the
// instruments bind to the Prometheus exporter.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordClassification counts one verdict.
func (m *Metrics) RecordClassification(ctx context.Context, prediction, path string) {
	m.Classifications.Add(ctx, 1,
		metric.WithAttributes(Attr("prediction", prediction), Attr("path", path)),
	)
}

// RecordExplainFallback counts one templated explanation.
func (m *Metrics) RecordExplainFallback(ctx context.Context, reason string) {
	m.ExplainFallbacks.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordProviderRequest counts one backend call and, when err is non-nil, one
// backend error.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider)))
	}
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(Attr("provider", provider), Attr("status", status)),
	)
}

// RecordBreakerTransition counts one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(Attr("provider", provider), Attr("to", to)),
	)
}
