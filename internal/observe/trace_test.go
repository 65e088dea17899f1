package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var traceIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// useTracer installs an in-memory tracer provider as the global provider for
// the duration of the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLog redirects the default logger into a buffer.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	useTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "analysis.decode")
		cid := CorrelationID(ctx)
		span.End()
		if !traceIDPattern.MatchString(cid) {
			t.Fatalf("CorrelationID = %q, want 32 lowercase hex chars", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestStartSpan_NestsAnalysisStages(t *testing.T) {
	exp := useTracer(t)

	ctx, root := StartSpan(context.Background(), "HTTP POST /api/v1/detect")
	for _, stage := range []string{"analysis.decode", "analysis.extract", "analysis.classify"} {
		_, span := StartSpan(ctx, stage)
		EndSpan(span, nil)
	}
	EndSpan(root, nil)

	spans := exp.GetSpans()
	if len(spans) != 4 {
		t.Fatalf("recorded %d spans, want 4", len(spans))
	}
	rootID := spans[3].SpanContext.SpanID()
	for _, s := range spans[:3] {
		if s.Parent.SpanID() != rootID {
			t.Errorf("span %s parent = %s, want the request span", s.Name, s.Parent.SpanID())
		}
	}
	if Tracer() == nil {
		t.Error("Tracer() returned nil")
	}
}

func TestEndSpan_Status(t *testing.T) {
	exp := useTracer(t)

	_, ok := StartSpan(context.Background(), "analysis.classify")
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "analysis.explain")
	EndSpan(failed, errors.New("explain timeout"))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("ok span status = %v", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "explain timeout" {
		t.Errorf("failed span status = %+v", spans[1].Status)
	}
	if len(spans[1].Events) == 0 {
		t.Error("failed span should carry an exception event")
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)

	tests := []struct {
		name      string
		withSpan  bool
		wantTrace bool
	}{
		{name: "inside span", withSpan: true, wantTrace: true},
		{name: "no span", withSpan: false, wantTrace: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureLog(t)
			ctx := context.Background()
			var cid string
			if tc.withSpan {
				c, s := StartSpan(ctx, "analysis.explain")
				defer s.End()
				ctx, cid = c, CorrelationID(c)
			}

			Logger(ctx).Warn("explanation fallback", "reason", "timeout")

			out := buf.String()
			if got := strings.Contains(out, "trace_id="); got != tc.wantTrace {
				t.Errorf("trace_id present = %v, want %v: %s", got, tc.wantTrace, out)
			}
			if tc.wantTrace && (!strings.Contains(out, "trace_id="+cid) || !strings.Contains(out, "span_id=")) {
				t.Errorf("log line should carry trace %s and a span id: %s", cid, out)
			}
			if !strings.Contains(out, "reason=timeout") {
				t.Errorf("log line lost its attributes: %s", out)
			}
		})
	}
}
