// Package explain defines the boundary to the optional prose explanation
// collaborator.
//
// An explanation provider receives the local verdict together with the
// extracted features and, optionally, the audio itself, and returns a short
// technical justification. The local verdict is authoritative: a provider
// only ever adds prose, and every failure it reports is treated identically
// by the caller (a deterministic template takes its place).
//
// Implementors must be safe for concurrent use.
package explain

import (
	"context"
	"errors"

	"github.com/MrWong99/veritasvoice/pkg/types"
)

var (
	// ErrUnavailable is returned when no explanation backend is configured
	// or the configured ones are all refusing traffic.
	ErrUnavailable = errors.New("explain: provider unavailable")

	// ErrEmptyExplanation is returned when the backend answered but the
	// explanation text is missing or blank.
	ErrEmptyExplanation = errors.New("explain: empty explanation")
)

// Request carries the local verdict to be justified.
type Request struct {
	// Audio is the decoded clip. Providers that cannot consume audio ignore it.
	Audio []byte

	// MIMEType describes Audio, e.g. "audio/mp3".
	MIMEType string

	// Prediction and Confidence are the authoritative local verdict.
	Prediction types.Prediction
	Confidence float64

	// Language is the human-readable language name, e.g. "Tamil".
	Language string

	// Features are the signal proxies the verdict was computed from.
	Features types.FeatureSet

	// Signature is the audit token of the clip.
	Signature string
}

// Result is a successful explanation.
type Result struct {
	// Explanation is the 1-2 sentence technical justification.
	Explanation string `json:"explanation"`

	// Transcription is an optional transcript or description of the audio.
	Transcription string `json:"transcription"`
}

// Provider produces prose explanations for local verdicts.
type Provider interface {
	// Explain returns a justification for req. It must honour ctx
	// cancellation and return promptly once ctx is done.
	Explain(ctx context.Context, req Request) (Result, error)
}

// Unavailable is the explicit "no explainer" variant. Its Explain always
// fails with ErrUnavailable without doing any work.
type Unavailable struct{}

// Explain implements Provider.
func (Unavailable) Explain(context.Context, Request) (Result, error) {
	return Result{}, ErrUnavailable
}

var _ Provider = Unavailable{}
