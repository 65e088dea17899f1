package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/MrWong99/veritasvoice/pkg/provider/llm"
	"github.com/MrWong99/veritasvoice/pkg/types"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 300
)

const systemPrompt = `You are a senior audio forensic pathologist.
You never overturn the local verdict you are given; you only justify it.
Answer with a JSON object {"explanation": string, "transcription": string}.`

// LLM is a Provider that asks an llm.Provider to justify the verdict.
type LLM struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
}

// LLMOption configures an LLM explainer.
type LLMOption func(*LLM)

// WithTemperature overrides the sampling temperature (default 0.1).
func WithTemperature(t float64) LLMOption {
	return func(e *LLM) { e.temperature = t }
}

// WithMaxTokens overrides the completion token cap (default 300).
func WithMaxTokens(n int) LLMOption {
	return func(e *LLM) { e.maxTokens = n }
}

// NewLLM wraps p as an explanation Provider.
func NewLLM(p llm.Provider, opts ...LLMOption) *LLM {
	e := &LLM{provider: p, temperature: defaultTemperature, maxTokens: defaultMaxTokens}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Explain implements Provider.
func (e *LLM) Explain(ctx context.Context, req Request) (Result, error) {
	creq := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []types.Message{{Role: "user", Content: BuildPrompt(req)}},
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
		JSONResponse: true,
	}
	if len(req.Audio) > 0 && e.provider.Capabilities().SupportsAudioInput {
		mime := req.MIMEType
		if mime == "" {
			mime = "audio/mp3"
		}
		creq.Attachments = []types.Attachment{{MIMEType: mime, Data: req.Audio}}
	}

	resp, err := e.provider.Complete(ctx, creq)
	if err != nil {
		return Result{}, fmt.Errorf("explain: complete: %w", err)
	}
	if resp == nil {
		return Result{}, ErrEmptyExplanation
	}
	return ParseResult(resp.Content)
}

// BuildPrompt renders the user turn describing the verdict to justify.
func BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CONTEXT: %s speech audit.\n\n", req.Language)
	b.WriteString("LOCAL RESULT:\n")
	fmt.Fprintf(&b, "- Result: %s\n", req.Prediction)
	fmt.Fprintf(&b, "- Confidence: %.4f\n", req.Confidence)
	fmt.Fprintf(&b, "- Signature: %s\n\n", req.Signature)
	b.WriteString("LOCAL METRICS:\n")
	fmt.Fprintf(&b, "- Compression ratio: %.4f\n", req.Features.Compression)
	fmt.Fprintf(&b, "- Average energy: %.4f\n", req.Features.AvgEnergy)
	fmt.Fprintf(&b, "- Zero-crossing rate: %.4f\n", req.Features.ZCR)
	fmt.Fprintf(&b, "- Size: %.4f KB\n\n", req.Features.SizeKB)
	b.WriteString("TASK:\n")
	fmt.Fprintf(&b, "Explain this %s result in 1-2 technical sentences.\n", req.Prediction)
	if req.Prediction == types.PredictionAI {
		b.WriteString("Focus on vocoder spectral artifacts or harmonic rigidity.\n")
	} else {
		b.WriteString("Focus on natural pitch micro-drifts and asymmetric transients.\n")
	}
	b.WriteString("Your justification MUST match the local result.")
	return b.String()
}

// ParseResult decodes a model reply into a Result. Markdown code fences are
// stripped and malformed JSON is repaired once before giving up. A blank
// explanation yields ErrEmptyExplanation.
func ParseResult(content string) (Result, error) {
	content = stripFences(content)
	if content == "" {
		return Result{}, ErrEmptyExplanation
	}

	var r Result
	if err := unmarshalJSON([]byte(content), &r); err != nil {
		return Result{}, fmt.Errorf("explain: parse response: %w", err)
	}
	r.Explanation = strings.TrimSpace(r.Explanation)
	r.Transcription = strings.TrimSpace(r.Transcription)
	if r.Explanation == "" {
		return Result{}, ErrEmptyExplanation
	}
	return r, nil
}

// unmarshalJSON retries with a repaired document on syntax errors.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil {
		return fmt.Errorf("%w (repair: %v)", err, rerr)
	}
	return json.Unmarshal([]byte(fixed), v)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var _ Provider = (*LLM)(nil)
