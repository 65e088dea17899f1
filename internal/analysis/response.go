package analysis

import (
	"fmt"

	"github.com/MrWong99/veritasvoice/pkg/types"
)

// StatusSuccess is the status reported for every completed analysis,
// including the invalid-payload fallback.
const StatusSuccess = "success"

// Response is the result of one analysis. It is built once and not modified
// after Analyze returns.
type Response struct {
	Language      string
	Prediction    types.Prediction
	Confidence    float64
	Explanation   string
	Transcription string
	Signature     string
	Reason        string
	Features      types.FeatureSet

	// ExplanationSource is SourceProvider, SourceTemplate or SourceNone.
	ExplanationSource string
}

// Metadata returns the features and signature that back the verdict.
func (r *Response) Metadata() types.ForensicMetadata {
	return types.ForensicMetadata{Features: r.Features, Signature: r.Signature}
}

// Classification returns the verdict part of r.
func (r *Response) Classification() types.ClassificationResult {
	return types.ClassificationResult{
		Prediction: r.Prediction,
		Confidence: r.Confidence,
		Signature:  r.Signature,
		Reason:     r.Reason,
	}
}

func (r *Response) setTemplate() {
	r.Explanation = TemplateExplanation(r.Signature, r.Reason)
	r.Transcription = DefaultTranscription
	r.ExplanationSource = SourceTemplate
}

// TemplateExplanation is the deterministic explanation used whenever the
// explanation backend is skipped or fails.
func TemplateExplanation(signature, reason string) string {
	return fmt.Sprintf("Classification verified via local acoustic signature %s. %s", signature, reason)
}

func invalidResponse(language string) *Response {
	return &Response{
		Language:          language,
		Prediction:        types.PredictionHuman,
		Confidence:        0,
		Explanation:       InvalidExplanation,
		Signature:         InvalidSignature,
		ExplanationSource: SourceNone,
	}
}
