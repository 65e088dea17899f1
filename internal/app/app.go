// Package app wires the VeritasVoice subsystems into a running server.
//
// New builds the explainer chain, the analyzer and the HTTP surface from a
// [config.Config]. Run serves until its context is cancelled and then drains
// in-flight requests. ApplyConfig hot-swaps the settings that may change
// without a restart.
//
// For testing, inject doubles via functional options (WithExplainer,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/veritasvoice/internal/analysis"
	"github.com/MrWong99/veritasvoice/internal/api"
	"github.com/MrWong99/veritasvoice/internal/config"
	"github.com/MrWong99/veritasvoice/internal/health"
	"github.com/MrWong99/veritasvoice/internal/observe"
	"github.com/MrWong99/veritasvoice/internal/resilience"
	"github.com/MrWong99/veritasvoice/pkg/provider/explain"
)

// ShutdownTimeout bounds how long Run waits for in-flight requests after its
// context is cancelled.
const ShutdownTimeout = 15 * time.Second

// App owns the server's subsystems.
type App struct {
	cfg *config.Config

	registry       *config.Registry
	metrics        *observe.Metrics
	metricsHandler http.Handler
	levelVar       *slog.LevelVar

	explainer explain.Provider
	fallback  *resilience.ExplainFallback
	analyzer  *analysis.Analyzer
	server    *api.Server
	handler   http.Handler
}

// Option is a functional option for New.
type Option func(*App)

// WithExplainer uses p instead of building the explainer chain from config.
func WithExplainer(p explain.Provider) Option {
	return func(a *App) { a.explainer = p }
}

// WithRegistry uses reg to construct providers. Default: a registry with the
// built-in providers.
func WithRegistry(reg *config.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithMetrics records metrics on m. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on the metrics path. Default: promhttp.Handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets ApplyConfig change the log level at runtime.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// New creates an App by wiring all subsystems together.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
		RegisterBuiltinProviders(a.registry)
	}

	// ── 1. Explainer chain ───────────────────────────────────────────────
	if a.explainer == nil {
		fb, err := BuildExplainer(cfg, a.registry, a.metrics)
		if err != nil {
			return nil, err
		}
		if fb != nil {
			a.fallback = fb
			a.explainer = fb
		} else {
			slog.Warn("no explainer configured; responses will use templated explanations")
		}
	}

	// ── 2. Analyzer ──────────────────────────────────────────────────────
	a.analyzer = analysis.New(a.explainer,
		analysis.WithMetrics(a.metrics),
		analysis.WithSettings(analysisSettings(cfg.Analysis)),
	)

	// ── 3. HTTP surface ──────────────────────────────────────────────────
	var checkers []health.Checker
	if a.fallback != nil {
		checkers = append(checkers, health.ExplainerChecker(a.fallback))
	}
	a.server = api.NewServer(a.analyzer, api.Options{
		Keys:           api.NewKeyStore(cfg.Server.APIKeys...),
		Health:         health.New(checkers...),
		MetricsHandler: a.metricsHandler,
		MetricsPath:    cfg.Telemetry.MetricsPath,
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		MaxAudioBytes:  cfg.Server.MaxAudioBytes,
	})
	a.handler = observe.Middleware(a.metrics,
		observe.WithRoutes(api.Routes(cfg.Telemetry.MetricsPath)...),
		observe.WithQuietPaths(api.PathHealth, api.PathHealthz, api.PathReadyz, cfg.Telemetry.MetricsPath),
	)(a.server.Handler())

	return a, nil
}

// Analyzer returns the analyzer, e.g. for offline use.
func (a *App) Analyzer() *analysis.Analyzer { return a.analyzer }

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// ExplainerStatus returns the breaker state of each explanation backend, or
// nil when the chain was not built from config.
func (a *App) ExplainerStatus() []resilience.EntryStatus {
	if a.fallback == nil {
		return nil
	}
	return a.fallback.Status()
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully
// within [ShutdownTimeout]. It takes ownership of ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		slog.Info("http server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// ApplyConfig applies the hot-reloadable parts of a new config: log level,
// API keys and analysis settings.
func (a *App) ApplyConfig(old, updated *config.Config) {
	d := config.Diff(old, updated)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.APIKeysChanged {
		a.server.Keys().Set(updated.Server.APIKeys)
		slog.Info("api keys reloaded", "count", a.server.Keys().Len())
	}
	if d.AnalysisChanged {
		a.analyzer.UpdateSettings(analysisSettings(d.NewAnalysis))
		slog.Info("analysis settings reloaded",
			"explain_timeout", d.NewAnalysis.ExplainTimeout,
			"min_explain_bytes", d.NewAnalysis.MinExplainBytes,
		)
	}
}

// SlogLevel maps a config log level to its slog level. Unknown values map
// to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func analysisSettings(c config.AnalysisConfig) analysis.Settings {
	return analysis.Settings{
		ExplainTimeout:  c.ExplainTimeout,
		MinExplainBytes: c.MinExplainBytes,
	}
}
