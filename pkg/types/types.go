// Package types defines the shared types used across all VeritasVoice packages.
//
// These types form the lingua franca between the forensic classifier, the
// explanation providers, the LLM backends and the HTTP layer. Each package
// defines its own domain types; only cross-cutting structures live here.
package types

import "fmt"

// Prediction is the binary verdict produced by the local forensic classifier.
type Prediction string

const (
	// PredictionAI marks audio judged to be synthesised by a generative model.
	PredictionAI Prediction = "AI_GENERATED"

	// PredictionHuman marks audio judged to be natural human speech.
	PredictionHuman Prediction = "HUMAN"
)

// IsValid reports whether p is one of the two recognised predictions.
func (p Prediction) IsValid() bool {
	return p == PredictionAI || p == PredictionHuman
}

// String returns the wire representation of p.
func (p Prediction) String() string { return string(p) }

// FeatureSet holds the cheap signal proxies extracted from a decoded audio
// blob. It is produced once per blob and never mutated afterwards.
//
// The zero value is the "empty" feature set returned when extraction could
// not run (e.g. on an empty input).
type FeatureSet struct {
	// SizeKB is the blob length in kibibytes.
	SizeKB float64 `json:"size_kb"`

	// Compression is the zlib-compressed length divided by the original
	// length. Values near 1.0 indicate high-entropy content.
	Compression float64 `json:"compression"`

	// AvgEnergy is the mean squared amplitude of the subsampled prefix.
	AvgEnergy float64 `json:"avg_energy"`

	// ZCR is the fraction of adjacent subsamples that change sign.
	ZCR float64 `json:"zcr"`
}

// IsEmpty reports whether fs is the zero-value feature set.
func (fs FeatureSet) IsEmpty() bool {
	return fs == FeatureSet{}
}

// String renders fs as a compact key=value summary suitable for prompts and
// log lines.
func (fs FeatureSet) String() string {
	return fmt.Sprintf("size_kb=%.4f compression=%.4f avg_energy=%.4f zcr=%.4f",
		fs.SizeKB, fs.Compression, fs.AvgEnergy, fs.ZCR)
}

// ClassificationResult is the authoritative verdict of the local classifier.
type ClassificationResult struct {
	// Prediction is the binary verdict.
	Prediction Prediction `json:"prediction"`

	// Confidence is the certainty of Prediction. It never reaches 1.0.
	Confidence float64 `json:"confidence"`

	// Signature is a short audit token derived purely from the content hash.
	Signature string `json:"signature"`

	// Reason is a short structured string describing which rule fired.
	Reason string `json:"reason"`
}

// ForensicMetadata bundles the extracted features with the audit signature
// so that callers can verify how a verdict was reached.
type ForensicMetadata struct {
	Features  FeatureSet `json:"features"`
	Signature string     `json:"signature"`
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Attachment is an inline binary payload (e.g. the audio clip under audit)
// offered to models that accept non-text input.
type Attachment struct {
	// MIMEType describes Data, e.g. "audio/mp3".
	MIMEType string

	// Data is the raw payload.
	Data []byte
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsAudioInput indicates the model accepts inline audio attachments.
	SupportsAudioInput bool

	// SupportsJSONMode indicates the model can be constrained to emit JSON.
	SupportsJSONMode bool
}
