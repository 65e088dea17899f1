// Package analysis orchestrates a single audio verdict: decode, extract
// features, classify, optionally explain, and assemble the response.
//
// The local classification is authoritative. Nothing that happens after it,
// in particular a slow or failing explanation backend, can change the verdict
// or turn the call into an error.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/veritasvoice/internal/forensic"
	"github.com/MrWong99/veritasvoice/internal/observe"
	"github.com/MrWong99/veritasvoice/internal/resilience"
	"github.com/MrWong99/veritasvoice/pkg/provider/explain"
	"github.com/MrWong99/veritasvoice/pkg/types"
)

// Defaults for [Settings].
const (
	DefaultExplainTimeout  = 8 * time.Second
	DefaultMinExplainBytes = 1024
)

// Values used when no verdict could be computed from the payload.
const (
	InvalidSignature   = "ERROR"
	InvalidExplanation = "invalid audio format"
)

// DefaultTranscription accompanies templated explanations.
const DefaultTranscription = "Signal analyzed."

// Explanation sources reported in [Response.ExplanationSource].
const (
	SourceProvider = "provider"
	SourceTemplate = "template"
	SourceNone     = "none"
)

// Settings are the hot-reloadable knobs of an [Analyzer].
type Settings struct {
	// ExplainTimeout bounds each explanation call. Default: 8s.
	ExplainTimeout time.Duration

	// MinExplainBytes is the decoded size a clip must exceed before the
	// explanation backend is asked. Default: 1024.
	MinExplainBytes int
}

func (s Settings) withDefaults() Settings {
	if s.ExplainTimeout <= 0 {
		s.ExplainTimeout = DefaultExplainTimeout
	}
	if s.MinExplainBytes <= 0 {
		s.MinExplainBytes = DefaultMinExplainBytes
	}
	return s
}

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithSettings sets the initial settings.
func WithSettings(s Settings) Option {
	return func(a *Analyzer) { a.settings.Store(ptr(s.withDefaults())) }
}

// WithMetrics records metrics on m instead of a no-op meter.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// Analyzer runs analyses. It holds no per-request state and is safe for
// concurrent use.
type Analyzer struct {
	explainer explain.Provider
	metrics   *observe.Metrics
	settings  atomic.Pointer[Settings]
}

// New creates an Analyzer. A nil explainer is replaced by
// [explain.Unavailable].
func New(explainer explain.Provider, opts ...Option) *Analyzer {
	if explainer == nil {
		explainer = explain.Unavailable{}
	}
	a := &Analyzer{explainer: explainer}
	a.settings.Store(ptr(Settings{}.withDefaults()))
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		m, err := observe.NewMetrics(noop.NewMeterProvider())
		if err != nil {
			panic("analysis: noop metrics: " + err.Error())
		}
		a.metrics = m
	}
	return a
}

// Settings returns the active settings.
func (a *Analyzer) Settings() Settings { return *a.settings.Load() }

// UpdateSettings replaces the settings for subsequent calls.
func (a *Analyzer) UpdateSettings(s Settings) {
	a.settings.Store(ptr(s.withDefaults()))
}

// Analyze decodes base64 audio and analyses it. An undecodable payload is
// not an error: it yields a HUMAN verdict with confidence 0 and signature
// [InvalidSignature]. The only error is one wrapping
// [forensic.ErrClassifierInvariant].
func (a *Analyzer) Analyze(ctx context.Context, encoded, languageCode string) (*Response, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "analysis.decode")
	audio, err := DecodeAudio(encoded)
	observe.EndSpan(span, err)
	if err != nil {
		observe.Logger(ctx).Debug("undecodable audio payload", "err", err)
		a.metrics.RecordClassification(ctx, string(types.PredictionHuman), observe.PathInvalid)
		a.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
		return invalidResponse(languageCode), nil
	}
	return a.analyze(ctx, start, Input{Audio: audio, Language: languageCode})
}

// Input is already-decoded audio.
type Input struct {
	Audio []byte

	// Language is a code or name; unknown values pass through.
	Language string

	// Format is the audio format name. Empty means DefaultFormat.
	Format string
}

// AnalyzeAudio analyses decoded audio. Inputs shorter than [MinAudioBytes]
// get the same treatment as undecodable payloads in [Analyzer.Analyze].
func (a *Analyzer) AnalyzeAudio(ctx context.Context, in Input) (*Response, error) {
	start := time.Now()
	if len(in.Audio) < MinAudioBytes {
		a.metrics.RecordClassification(ctx, string(types.PredictionHuman), observe.PathInvalid)
		a.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
		return invalidResponse(in.Language), nil
	}
	return a.analyze(ctx, start, in)
}

func (a *Analyzer) analyze(ctx context.Context, start time.Time, in Input) (*Response, error) {
	settings := a.Settings()
	defer func() {
		a.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
	}()

	_, span := observe.StartSpan(ctx, "analysis.extract",
		trace.WithAttributes(attribute.Int("audio.bytes", len(in.Audio))))
	features := forensic.Extract(in.Audio)
	span.SetAttributes(attribute.Bool("features.empty", features.IsEmpty()))
	observe.EndSpan(span, nil)

	_, span = observe.StartSpan(ctx, "analysis.classify")
	verdict, err := forensic.Classify(in.Audio, features)
	if err == nil {
		span.SetAttributes(
			attribute.String("prediction", verdict.Prediction.String()),
			attribute.Float64("confidence", verdict.Confidence),
			attribute.String("signature", verdict.Signature),
		)
	}
	observe.EndSpan(span, err)
	if err != nil {
		observe.Logger(ctx).Error("classifier failed", "err", err)
		return nil, fmt.Errorf("analysis: classify: %w", err)
	}
	a.metrics.RecordClassification(ctx, verdict.Prediction.String(), classificationPath(verdict.Reason))

	language := NormalizeLanguage(in.Language)
	mime, ok := MIMEType(in.Format)
	if !ok {
		mime, _ = MIMEType(DefaultFormat)
	}

	resp := &Response{
		Language:   language,
		Prediction: verdict.Prediction,
		Confidence: verdict.Confidence,
		Signature:  verdict.Signature,
		Reason:     verdict.Reason,
		Features:   features,
	}

	if len(in.Audio) <= settings.MinExplainBytes {
		a.metrics.RecordExplainFallback(ctx, observe.FallbackSkipped)
		resp.setTemplate()
		return resp, nil
	}

	res, err := a.explain(ctx, settings.ExplainTimeout, explain.Request{
		Audio:      in.Audio,
		MIMEType:   mime,
		Prediction: verdict.Prediction,
		Confidence: verdict.Confidence,
		Language:   language,
		Features:   features,
		Signature:  verdict.Signature,
	})
	if err != nil {
		reason := fallbackReason(err)
		a.metrics.RecordExplainFallback(ctx, reason)
		observe.Logger(ctx).Info("using templated explanation",
			"reason", reason, "signature", verdict.Signature, "err", err)
		resp.setTemplate()
		return resp, nil
	}

	resp.Explanation = res.Explanation
	resp.Transcription = res.Transcription
	if resp.Transcription == "" {
		resp.Transcription = DefaultTranscription
	}
	resp.ExplanationSource = SourceProvider
	return resp, nil
}

// explain calls the explainer under its own deadline. The deadline is
// derived from ctx, so a cancelled request also cancels the explanation.
func (a *Analyzer) explain(ctx context.Context, timeout time.Duration, req explain.Request) (explain.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "analysis.explain")
	start := time.Now()
	res, err := a.explainer.Explain(ctx, req)
	a.metrics.ExplainDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("outcome", outcome(err))))
	if err == nil && res.Explanation == "" {
		err = explain.ErrEmptyExplanation
	}
	observe.EndSpan(span, err)
	return res, err
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, explain.ErrUnavailable), errors.Is(err, resilience.ErrCircuitOpen):
		return observe.FallbackUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return observe.FallbackTimeout
	default:
		return observe.FallbackError
	}
}

func classificationPath(reason string) string {
	switch reason {
	case forensic.ReasonTooShort:
		return observe.PathShort
	case forensic.ReasonSilence:
		return observe.PathSilence
	default:
		return observe.PathHeuristic
	}
}

func ptr[T any](v T) *T { return &v }
