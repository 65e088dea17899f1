// Command veritasvoice is the entry point for the VeritasVoice forensic
// audio classifier.
//
// Usage:
//
//	veritasvoice serve   [--config config.yaml] [--env-file .env]
//	veritasvoice analyze --file clip.mp3 [--language en] [--format mp3] [--explain] [--metadata]
//	veritasvoice version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/veritasvoice/internal/analysis"
	"github.com/MrWong99/veritasvoice/internal/api"
	"github.com/MrWong99/veritasvoice/internal/app"
	"github.com/MrWong99/veritasvoice/internal/config"
	"github.com/MrWong99/veritasvoice/internal/observe"
	"github.com/MrWong99/veritasvoice/pkg/provider/explain"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "config.yaml"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "veritasvoice: %v\n", err)
		return 1
	}
	return 0
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:   "veritasvoice",
		Short: "Forensic AI-vs-human voice classifier",
		Long: `VeritasVoice classifies speech recordings as AI_GENERATED or HUMAN.

The verdict comes from a deterministic local classifier. An optional LLM
explainer writes a short technical justification of that verdict; when it
is unavailable a templated explanation is used instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", defaultConfigPath, "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file with API keys (ignored when missing)")

	root.AddCommand(newServeCmd(&g), newAnalyzeCmd(&g), newVersionCmd())
	return root
}

// loadConfig loads the env file and then the config file. A missing config
// file falls back to [config.Default] unless the path was set explicitly.
func loadConfig(cmd *cobra.Command, g *globalFlags) (cfg *config.Config, fromFile bool, err error) {
	if err := config.LoadEnv(g.envFile); err != nil {
		return nil, false, err
	}
	cfg, err = config.Load(g.configPath)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		slog.Warn("config file not found, using defaults", "path", g.configPath)
		cfg = config.Default()
		if err := config.Validate(cfg); err != nil {
			return nil, false, err
		}
		return cfg, false, nil
	default:
		return nil, false, err
	}
}

// ── serve ─────────────────────────────────────────────────────────────────────

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

The config file is watched for changes; log level, API keys and analysis
settings are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, g)
		},
	}
}

func serve(cmd *cobra.Command, g *globalFlags) error {
	levelVar := new(slog.LevelVar)
	slog.SetDefault(newLogger(os.Stderr, levelVar))

	cfg, fromFile, err := loadConfig(cmd, g)
	if err != nil {
		return err
	}
	levelVar.Set(app.SlogLevel(cfg.Server.LogLevel))

	slog.Info("veritasvoice starting",
		"version", version,
		"config", g.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := app.New(cfg,
		app.WithLevelVar(levelVar),
		app.WithMetrics(observe.DefaultMetrics()),
	)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	// ── Config hot-reload ─────────────────────────────────────────────────────
	if fromFile {
		w, err := config.NewWatcher(g.configPath, application.ApplyConfig)
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	printStartupSummary(cmd.OutOrStdout(), cfg, application.ExplainerStatus())
	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// ── analyze ───────────────────────────────────────────────────────────────────

type analyzeFlags struct {
	file     string
	language string
	format   string
	explain  bool
	metadata bool
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Classify a local audio file and print the response JSON",
		Long: `Classify a local audio file without starting the server.

The explainer configured in the config file is only contacted with
--explain; otherwise the templated explanation is printed.

Examples:
  veritasvoice analyze --file clip.mp3
  veritasvoice analyze --file clip.wav --language ta --explain --metadata`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return analyzeFile(cmd, g, f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "audio file to analyze (required)")
	cmd.Flags().StringVarP(&f.language, "language", "l", "en", "language code or name")
	cmd.Flags().StringVar(&f.format, "format", "", "audio format (default: from the file extension)")
	cmd.Flags().BoolVar(&f.explain, "explain", false, "ask the configured explainer for a justification")
	cmd.Flags().BoolVar(&f.metadata, "metadata", false, "include forensic metadata in the output")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func analyzeFile(cmd *cobra.Command, g *globalFlags, f analyzeFlags) error {
	audio, err := os.ReadFile(f.file)
	if err != nil {
		return err
	}
	language, err := analysis.ParseLanguage(f.language)
	if err != nil {
		return err
	}
	format := f.format
	if format == "" {
		format = formatFromPath(f.file)
	}
	if _, ok := analysis.MIMEType(format); !ok {
		return fmt.Errorf("unsupported audio format %q, want one of %s", format, strings.Join(analysis.SupportedFormats, ", "))
	}

	var explainer explain.Provider
	if f.explain {
		cfg, _, err := loadConfig(cmd, g)
		if err != nil {
			return err
		}
		reg := config.NewRegistry()
		app.RegisterBuiltinProviders(reg)
		fb, err := app.BuildExplainer(cfg, reg, observe.DefaultMetrics())
		if err != nil {
			return err
		}
		if fb == nil {
			return errors.New("--explain needs providers.explainer in the config file")
		}
		explainer = fb
	}

	resp, err := analysis.New(explainer).AnalyzeAudio(cmd.Context(), analysis.Input{
		Audio:    audio,
		Language: language,
		Format:   format,
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), api.NewDetectResponse(resp, f.metadata))
}

// formatFromPath guesses the audio format from the file extension. Unknown
// extensions map to [analysis.DefaultFormat].
func formatFromPath(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if _, ok := analysis.MIMEType(ext); ok && ext != "" {
		return ext
	}
	return analysis.DefaultFormat
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── version ───────────────────────────────────────────────────────────────────

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "veritasvoice %s\n", version)
		},
	}
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
