package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by [ApplyEnv].
const (
	// EnvAPIKey adds one accepted x-api-key value.
	EnvAPIKey = "HACKATHON_API_KEY"

	// EnvProviderKey supplies the explainer's API key when the file leaves
	// it empty.
	EnvProviderKey = "API_KEY"
)

// ValidProviderNames lists the explainer backends known to the server.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{
	"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// LoadEnv loads KEY=VALUE pairs from the given dotenv files into the process
// environment, defaulting to ".env". Variables that are already set are not
// overwritten and missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %q: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. An empty document yields the
// default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given, with
// environment overrides applied.
func Default() *Config {
	cfg := &Config{}
	ApplyEnv(cfg)
	ApplyDefaults(cfg)
	return cfg
}

// ApplyEnv merges secrets from the environment into cfg.
func ApplyEnv(cfg *Config) {
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" && !slices.Contains(cfg.Server.APIKeys, key) {
		cfg.Server.APIKeys = append(cfg.Server.APIKeys, key)
	}
	if key := strings.TrimSpace(os.Getenv(EnvProviderKey)); key != "" && cfg.Providers.Explainer.APIKey == "" {
		cfg.Providers.Explainer.APIKey = key
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.MaxAudioBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_audio_bytes %d must not be negative", cfg.Server.MaxAudioBytes))
	}
	for i, key := range cfg.Server.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Errorf("server.api_keys[%d] is empty", i))
		}
	}
	for i, origin := range cfg.Server.CORS.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, fmt.Errorf("server.cors.allowed_origins[%d] %q must be \"*\" or start with http:// or https://", i, origin))
		}
	}
	if len(cfg.Server.APIKeys) == 0 {
		slog.Warn("no API keys configured; protected endpoints will answer 500", "env", EnvAPIKey)
	}

	// Analysis
	if cfg.Analysis.ExplainTimeout < 0 {
		errs = append(errs, fmt.Errorf("analysis.explain_timeout %s must not be negative", cfg.Analysis.ExplainTimeout))
	}
	if cfg.Analysis.MinExplainBytes < 0 {
		errs = append(errs, fmt.Errorf("analysis.min_explain_bytes %d must not be negative", cfg.Analysis.MinExplainBytes))
	}

	// Providers
	validateProviderName("providers.explainer", cfg.Providers.Explainer.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		prefix := fmt.Sprintf("providers.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(prefix, fb.Name)
	}
	if cfg.Providers.Explainer.Name == "" && len(cfg.Providers.Fallbacks) > 0 {
		errs = append(errs, errors.New("providers.fallbacks requires providers.explainer to be set"))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}
	if cfg.Resilience.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("resilience.half_open_max %d must not be negative", cfg.Resilience.HalfOpenMax))
	}

	// Telemetry
	if p := cfg.Telemetry.MetricsPath; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", p))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not one of
// [ValidProviderNames].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidProviderNames,
	)
}
