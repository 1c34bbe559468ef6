package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/embedpipe/internal/config"
	httpserver "github.com/fyrsmithlabs/embedpipe/internal/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the embedding pipeline over HTTP",
		Long: `Start an HTTP server exposing the embedding pipeline.

Endpoints:
  GET  /health                 detected provider
  POST /api/v1/embed           {"text": "..."}
  POST /api/v1/embed/batch     {"texts": ["...", "..."]}
  POST /api/v1/models/ensure   pull the configured model if missing
  GET  /metrics                Prometheus metrics

The settings file is watched; embedding settings changes take effect on
the next request without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			serverCfg := httpserver.ConfigFromSettings(a.settings.Server)
			if cmd.Flags().Changed("host") {
				serverCfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				serverCfg.Port = port
			}
			return runServe(ctx, a, opts.configPath, serverCfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides settings)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides settings)")
	return cmd
}

// runServe starts the HTTP server and blocks until ctx is cancelled.
func runServe(ctx context.Context, a *app, configPath string, serverCfg *httpserver.Config) error {
	logger := a.logger.Underlying()

	pipeline, err := a.newPipeline(a.settings)
	if err != nil {
		return err
	}

	srv, err := httpserver.NewServer(pipeline, logger, serverCfg,
		httpserver.WithMeterProvider(a.telemetry.MeterProvider()))
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	watcher, err := config.NewWatcher(configPath, logger)
	if err != nil {
		logger.Warn("settings watcher unavailable, hot reload disabled", zap.Error(err))
	} else {
		watcher.OnChange(func(settings *config.Config) {
			p, err := a.newPipeline(settings)
			if err != nil {
				logger.Warn("reloaded embedding settings rejected", zap.Error(err))
				return
			}
			srv.SetPipeline(p)
		})
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("settings watcher failed to start", zap.Error(err))
		}
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := serverCfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}
