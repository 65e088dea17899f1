package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MrWong99/veritasvoice/internal/analysis"
	"github.com/MrWong99/veritasvoice/internal/observe"
	"github.com/MrWong99/veritasvoice/pkg/types"
)

// Response messages.
const (
	msgAuth      = "Invalid API key or malformed request"
	msgInternal  = "Forensic Engine Interruption."
	msgMalformed = "Malformed request: "
)

// Status values of the response envelope.
const (
	statusSuccess = analysis.StatusSuccess
	statusError   = "error"
)

// AuditSignatureHeader carries the verdict's signature on detect responses.
const AuditSignatureHeader = "X-Audit-Signature"

// Analyzer runs the forensic analysis behind the detect endpoint.
type Analyzer interface {
	AnalyzeAudio(ctx context.Context, in analysis.Input) (*analysis.Response, error)
}

// DetectRequest is the body of POST /api/v1/detect.
type DetectRequest struct {
	Language    string `json:"language" binding:"required"`
	AudioFormat string `json:"audioFormat"`
	AudioBase64 string `json:"audioBase64" binding:"required"`
}

// DetectResponse is the success body of POST /api/v1/detect.
type DetectResponse struct {
	Status          string            `json:"status"`
	Language        string            `json:"language"`
	Classification  types.Prediction  `json:"classification"`
	ConfidenceScore float64           `json:"confidenceScore"`
	Explanation     string            `json:"explanation"`
	Metadata        *ForensicMetadata `json:"forensicMetadata,omitempty"`
}

// ForensicMetadata is included when the client asks for ?metadata=true.
type ForensicMetadata struct {
	Features          types.FeatureSet `json:"features"`
	Signature         string           `json:"signature"`
	Reason            string           `json:"reason"`
	Transcription     string           `json:"transcription"`
	ExplanationSource string           `json:"explanationSource"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func abortError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, ErrorResponse{Status: statusError, Message: msg})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// detect validates the request, runs the analysis and renders the verdict.
func (s *Server) detect(c *gin.Context) {
	ctx := c.Request.Context()
	log := observe.Logger(ctx)

	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug("rejecting detect request", "err", err)
		abortError(c, http.StatusBadRequest, msgMalformed+bindMessage(err))
		return
	}

	in, err := s.validate(req)
	if err != nil {
		log.Debug("rejecting detect request", "err", err)
		abortError(c, http.StatusBadRequest, msgMalformed+err.Error())
		return
	}

	resp, err := s.analyzer.AnalyzeAudio(ctx, in)
	if err != nil {
		log.Error("analysis failed", "err", err)
		abortError(c, http.StatusInternalServerError, msgInternal)
		return
	}

	out := NewDetectResponse(resp, wantMetadata(c))
	c.Header(AuditSignatureHeader, resp.Signature)
	c.JSON(http.StatusOK, out)
}

// NewDetectResponse renders an analysis result as the detect success body.
// Forensic metadata is attached when withMetadata is set.
func NewDetectResponse(resp *analysis.Response, withMetadata bool) DetectResponse {
	out := DetectResponse{
		Status:          statusSuccess,
		Language:        resp.Language,
		Classification:  resp.Prediction,
		ConfidenceScore: resp.Confidence,
		Explanation:     resp.Explanation,
	}
	if withMetadata {
		out.Metadata = &ForensicMetadata{
			Features:          resp.Features,
			Signature:         resp.Signature,
			Reason:            resp.Reason,
			Transcription:     resp.Transcription,
			ExplanationSource: resp.ExplanationSource,
		}
	}
	return out
}

// validate checks the request fields and decodes the audio.
func (s *Server) validate(req DetectRequest) (analysis.Input, error) {
	encoded := strings.TrimSpace(req.AudioBase64)
	if encoded == "" {
		return analysis.Input{}, errors.New("audioBase64 is empty")
	}
	if limit := s.maxAudioBytes * 3 / 2; len(encoded) > limit {
		return analysis.Input{}, fmt.Errorf("audioBase64 exceeds %d bytes", limit)
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return analysis.Input{}, errors.New("audioBase64 is not valid base64")
	}
	if len(audio) < analysis.MinAudioBytes {
		return analysis.Input{}, fmt.Errorf("decoded audio is %d bytes, need at least %d", len(audio), analysis.MinAudioBytes)
	}

	language, err := analysis.ParseLanguage(req.Language)
	if err != nil {
		return analysis.Input{}, err
	}

	format := strings.ToLower(strings.TrimSpace(req.AudioFormat))
	if _, ok := analysis.MIMEType(format); !ok {
		return analysis.Input{}, fmt.Errorf("audioFormat %q is not one of %s", req.AudioFormat, strings.Join(analysis.SupportedFormats, ", "))
	}

	return analysis.Input{Audio: audio, Language: language, Format: format}, nil
}

func wantMetadata(c *gin.Context) bool {
	v, err := strconv.ParseBool(c.Query("metadata"))
	return err == nil && v
}

// bindMessage turns a JSON binding error into a short client message.
func bindMessage(err error) string {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return "request body too large"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "'Language'"):
		return "language is required"
	case strings.Contains(msg, "'AudioBase64'"):
		return "audioBase64 is required"
	}
	return "body is not valid JSON"
}
