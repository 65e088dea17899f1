// Package config provides the configuration schema, loader, and explainer
// provider registry for the VeritasVoice server.
package config

import "time"

// LogLevel controls log verbosity for the VeritasVoice server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8000"
	DefaultMaxAudioBytes   = 10 << 20
	DefaultExplainTimeout  = 8 * time.Second
	DefaultMinExplainBytes = 1024
	DefaultMaxFailures     = 5
	DefaultResetTimeout    = 30 * time.Second
	DefaultHalfOpenMax     = 1
	DefaultServiceName     = "veritasvoice"
	DefaultMetricsPath     = "/metrics"
)

// Config is the root configuration structure for VeritasVoice.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network, auth and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// APIKeys are the accepted values of the x-api-key header. More than one
	// key may be listed to allow rotation.
	APIKeys []string `yaml:"api_keys"`

	// CORS configures cross-origin access.
	CORS CORSConfig `yaml:"cors"`

	// MaxAudioBytes caps the decoded audio size accepted by the detect
	// endpoint. Default: 10 MiB.
	MaxAudioBytes int `yaml:"max_audio_bytes"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// CORSConfig lists the allowed origins. Empty means any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AnalysisConfig tunes the explanation stage of an analysis.
type AnalysisConfig struct {
	// ExplainTimeout bounds each explanation backend call.
	ExplainTimeout time.Duration `yaml:"explain_timeout"`

	// MinExplainBytes is the decoded size a clip must exceed before the
	// explanation backend is called.
	MinExplainBytes int `yaml:"min_explain_bytes"`
}

// ProvidersConfig selects the explanation backends. Explainer is tried
// first, then each entry of Fallbacks in order.
type ProvidersConfig struct {
	Explainer ProviderEntry   `yaml:"explainer"`
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// ProviderEntry is the configuration block of one LLM backend.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gemini-2.5-flash").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// ResilienceConfig configures the circuit breaker guarding each explanation
// backend.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`

	// MetricsPath is the HTTP path of the Prometheus scrape endpoint.
	MetricsPath string `yaml:"metrics_path"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxAudioBytes == 0 {
		cfg.Server.MaxAudioBytes = DefaultMaxAudioBytes
	}
	if cfg.Analysis.ExplainTimeout == 0 {
		cfg.Analysis.ExplainTimeout = DefaultExplainTimeout
	}
	if cfg.Analysis.MinExplainBytes == 0 {
		cfg.Analysis.MinExplainBytes = DefaultMinExplainBytes
	}
	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultResetTimeout
	}
	if cfg.Resilience.HalfOpenMax == 0 {
		cfg.Resilience.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.MetricsPath == "" {
		cfg.Telemetry.MetricsPath = DefaultMetricsPath
	}
}
