package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/veritasvoice/internal/config"
	"github.com/MrWong99/veritasvoice/internal/observe"
	"github.com/MrWong99/veritasvoice/internal/resilience"
	"github.com/MrWong99/veritasvoice/pkg/provider/explain"
	"github.com/MrWong99/veritasvoice/pkg/provider/llm"
	"github.com/MrWong99/veritasvoice/pkg/provider/llm/anyllm"
	"github.com/MrWong99/veritasvoice/pkg/provider/llm/gemini"
	"github.com/MrWong99/veritasvoice/pkg/provider/llm/openai"
)

// RegisterBuiltinProviders wires the LLM backends that ship with VeritasVoice
// into reg. Gemini and OpenAI use their native SDKs; the other vendors go
// through any-llm-go.
func RegisterBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		return gemini.New(context.Background(), entry.APIKey, entry.Model)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range []string{"anthropic", "deepseek", "mistral", "groq", "ollama", "llamacpp", "llamafile"} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}
}

// BuildExplainer turns the configured explainer and fallbacks into one
// explain.Provider guarded by per-backend circuit breakers. It returns nil
// when no explainer is configured. Fallbacks that fail to construct are
// logged and skipped; a primary that fails to construct is an error.
func BuildExplainer(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*resilience.ExplainFallback, error) {
	if cfg.Providers.Explainer.Name == "" {
		return nil, nil
	}

	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
			HalfOpenMax:  cfg.Resilience.HalfOpenMax,
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
		OnAttempt: func(name string, err error) {
			m.RecordProviderRequest(context.Background(), name, err)
		},
	}

	primary, err := buildEntry(reg, cfg.Providers.Explainer)
	if err != nil {
		return nil, fmt.Errorf("app: explainer %q: %w", cfg.Providers.Explainer.Name, err)
	}
	fb := resilience.NewExplainFallback(primary, cfg.Providers.Explainer.Name, fbCfg)
	slog.Info("provider created", "kind", "explainer", "name", cfg.Providers.Explainer.Name, "model", cfg.Providers.Explainer.Model)

	for _, entry := range cfg.Providers.Fallbacks {
		p, err := buildEntry(reg, entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("fallback provider not available, skipping", "name", entry.Name)
			continue
		} else if err != nil {
			slog.Warn("failed to create fallback provider, skipping", "name", entry.Name, "err", err)
			continue
		}
		fb.AddFallback(entry.Name, p)
		slog.Info("provider created", "kind", "fallback", "name", entry.Name, "model", entry.Model)
	}
	return fb, nil
}

func buildEntry(reg *config.Registry, entry config.ProviderEntry) (explain.Provider, error) {
	p, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, err
	}
	var opts []explain.LLMOption
	if t, ok := optFloat(entry.Options, "temperature"); ok {
		opts = append(opts, explain.WithTemperature(t))
	}
	if n, ok := optFloat(entry.Options, "max_tokens"); ok && n > 0 {
		opts = append(opts, explain.WithMaxTokens(int(n)))
	}
	return explain.NewLLM(p, opts...), nil
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat extracts a numeric value; YAML decodes integers as int.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// optDuration parses a duration string such as "30s". Invalid values are 0.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
