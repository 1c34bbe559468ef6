// Package main implements the embedpipe CLI: one-shot embedding commands
// and an HTTP server for out-of-process indexers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/embedpipe/internal/config"
	"github.com/fyrsmithlabs/embedpipe/internal/embeddings"
	"github.com/fyrsmithlabs/embedpipe/internal/logging"
	"github.com/fyrsmithlabs/embedpipe/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "embedpipe",
		Short: "Local embedding generation for semantic indexing",
		Long: `embedpipe turns text into embedding vectors using a locally running
model server. Ollama is tried first, then any OpenAI-compatible server
(LM Studio and similar).

Settings are read from ~/.config/embedpipe/settings.json unless --config
is given, and EMBEDPIPE_* environment variables override the file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "settings file path (default ~/.config/embedpipe/settings.json)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newDetectCmd(opts),
		newEmbedCmd(opts),
		newBatchCmd(opts),
		newEnsureModelCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// app holds the dependencies a command runs with.
type app struct {
	settings  *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
}

// newApp loads settings and initializes logging and telemetry. CLI commands
// log to stderr so stdout carries only vectors.
func newApp(ctx context.Context, opts *rootOptions, toStderr bool) (*app, error) {
	settings, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if opts.logLevel != "" {
		settings.Logging.Level = opts.logLevel
	}

	tel, err := telemetry.New(ctx, telemetry.ConfigFromSettings(settings.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger, err := logging.NewFromSettings(settings.Logging, toStderr, tel.LoggerProvider(), settings.Embeddings.OpenAIAPIKey)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if health := tel.Health(); !health.Healthy || health.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", health.Reason))
	}

	return &app{
		settings:  settings,
		logger:    logger,
		telemetry: tel,
	}, nil
}

// newPipeline builds a pipeline from a settings snapshot.
func (a *app) newPipeline(settings *config.Config) (*embeddings.Pipeline, error) {
	e := settings.Embeddings
	a.logger.Debug(context.Background(), "building embedding pipeline",
		zap.String("model", e.Model),
		zap.String("ollama_host", e.OllamaHost),
		zap.String("openai_host", e.OpenAIHost),
		logging.Secret("openai_api_key", e.OpenAIAPIKey))
	return embeddings.New(
		embeddings.ConfigFromSettings(settings.Embeddings),
		embeddings.WithLogger(a.logger.Underlying()),
		embeddings.WithMeterProvider(a.telemetry.MeterProvider()),
		embeddings.WithTracerProvider(a.telemetry.TracerProvider()),
	)
}

// Close flushes telemetry and logs.
func (a *app) Close(ctx context.Context) {
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "embedpipe by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
