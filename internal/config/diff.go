package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// APIKeysChanged is true when the set of accepted keys differs.
	// Ordering is ignored.
	APIKeysChanged bool

	AnalysisChanged bool
	NewAnalysis     AnalysisConfig

	// RestartRequired is true when a field that is only read at startup
	// changed (listen address, TLS, CORS, providers, resilience, telemetry).
	RestartRequired bool
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.APIKeysChanged || d.AnalysisChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !sameSet(old.Server.APIKeys, new.Server.APIKeys) {
		d.APIKeysChanged = true
	}

	if old.Analysis != new.Analysis {
		d.AnalysisChanged = true
		d.NewAnalysis = new.Analysis
	}

	d.RestartRequired = old.Server.ListenAddr != new.Server.ListenAddr ||
		!sameTLS(old.Server.TLS, new.Server.TLS) ||
		!slices.Equal(old.Server.CORS.AllowedOrigins, new.Server.CORS.AllowedOrigins) ||
		old.Server.MaxAudioBytes != new.Server.MaxAudioBytes ||
		!sameProviders(old.Providers, new.Providers) ||
		old.Resilience != new.Resilience ||
		old.Telemetry != new.Telemetry

	return d
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameProviders(a, b ProvidersConfig) bool {
	return reflect.DeepEqual(a, b)
}
