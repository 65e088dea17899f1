package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the int64 sum data point whose attributes
// include every key/value in want.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, want map[string]string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		matched := 0
		for _, kv := range dp.Attributes.ToSlice() {
			if v, ok := want[string(kv.Key)]; ok && kv.Value.AsString() == v {
				matched++
			}
		}
		if matched == len(want) {
			return dp.Value
		}
	}
	t.Fatalf("metric %q: no data point with attributes %v", name, want)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"veritasvoice.analysis.duration", m.AnalysisDuration},
		{"veritasvoice.explain.duration", m.ExplainDuration},
		{"veritasvoice.http.request.duration", m.HTTPRequestDuration},
	}
	for _, tc := range histograms {
		tc.h.Record(ctx, 0.004)
		tc.h.Record(ctx, 7.9)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordClassification(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordClassification(ctx, "HUMAN", PathSilence)
	m.RecordClassification(ctx, "HUMAN", PathSilence)
	m.RecordClassification(ctx, "AI_GENERATED", PathHeuristic)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "veritasvoice.classifications", map[string]string{"prediction": "HUMAN", "path": PathSilence}); got != 2 {
		t.Errorf("HUMAN/trap_silence = %d, want 2", got)
	}
	if got := sumFor(t, rm, "veritasvoice.classifications", map[string]string{"prediction": "AI_GENERATED"}); got != 1 {
		t.Errorf("AI_GENERATED = %d, want 1", got)
	}
}

func TestRecordExplainFallback(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordExplainFallback(ctx, FallbackTimeout)
	m.RecordExplainFallback(ctx, FallbackUnavailable)
	m.RecordExplainFallback(ctx, FallbackTimeout)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "veritasvoice.explain.fallbacks", map[string]string{"reason": FallbackTimeout}); got != 2 {
		t.Errorf("timeout fallbacks = %d, want 2", got)
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "gemini", nil)
	m.RecordProviderRequest(ctx, "gemini", nil)
	m.RecordProviderRequest(ctx, "gemini", errors.New("503"))

	rm := collect(t, reader)
	if got := sumFor(t, rm, "veritasvoice.provider.requests", map[string]string{"provider": "gemini", "status": "ok"}); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumFor(t, rm, "veritasvoice.provider.errors", map[string]string{"provider": "gemini"}); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordBreakerTransition(context.Background(), "openai", "open")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "veritasvoice.breaker.transitions", map[string]string{"provider": "openai", "to": "open"}); got != 1 {
		t.Errorf("transitions = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
