// Package gemini provides an LLM provider backed by the Google Gemini API via
// google.golang.org/genai.
//
// Unlike the other backends it forwards request attachments as inline data,
// so the model can listen to the clip it is asked to explain.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/veritasvoice/pkg/provider/llm"
	"github.com/MrWong99/veritasvoice/pkg/types"
)

// generator is the subset of *genai.Models used by Provider.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider implements llm.Provider using Google Gemini.
type Provider struct {
	models generator
	model  string
}

// New constructs a Gemini provider. Model names must not start with "models/".
func New(ctx context.Context, apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model must not be empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{models: client.Models, model: strings.TrimPrefix(model, "models/")}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	cfg, contents, err := p.convRequest(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.New("gemini: no candidates")
	}

	c := resp.Candidates[0]
	switch c.FinishReason {
	case genai.FinishReasonStop, genai.FinishReasonUnspecified, "":
	case genai.FinishReasonMaxTokens:
		// Truncated JSON is still handed back; callers repair it.
	default:
		return nil, fmt.Errorf("gemini: unexpected finish reason: %s", c.FinishReason)
	}

	var sb strings.Builder
	if c.Content != nil {
		for _, part := range c.Content.Parts {
			if part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
	}

	out := &llm.CompletionResponse{
		Content:      sb.String(),
		FinishReason: strings.ToLower(string(c.FinishReason)),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	caps := types.ModelCapabilities{
		ContextWindow:      1_048_576,
		MaxOutputTokens:    8_192,
		SupportsAudioInput: true,
		SupportsJSONMode:   true,
	}
	if strings.Contains(strings.ToLower(p.model), "1.5-pro") {
		caps.ContextWindow = 2_097_152
	}
	return caps
}

// convRequest maps a CompletionRequest onto genai contents. System messages
// fold into the system instruction; attachments ride on the last user turn.
func (p *Provider) convRequest(req llm.CompletionRequest) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := &genai.GenerateContentConfig{}

	var system []*genai.Part
	if req.SystemPrompt != "" {
		system = append(system, genai.NewPartFromText(req.SystemPrompt))
	}

	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for _, m := range req.Messages {
		var role string
		switch m.Role {
		case "system":
			system = append(system, genai.NewPartFromText(m.Content))
			continue
		case "user":
			role = "user"
		case "assistant":
			role = "model"
		default:
			return nil, nil, fmt.Errorf("unknown message role %q", m.Role)
		}
		part := genai.NewPartFromText(m.Content)
		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, part)
			continue
		}
		last = &genai.Content{Role: role, Parts: []*genai.Part{part}}
		contents = append(contents, last)
	}

	if len(req.Attachments) > 0 {
		if last == nil || last.Role != "user" {
			last = &genai.Content{Role: "user"}
			contents = append(contents, last)
		}
		for _, a := range req.Attachments {
			last.Parts = append(last.Parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
		}
	}

	if len(contents) == 0 {
		return nil, nil, errors.New("no contents")
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}
	if req.Temperature != 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONResponse {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg, contents, nil
}
