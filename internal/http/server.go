// Package http exposes the embedding pipeline over HTTP for indexers that
// run out of process.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/embedpipe/internal/config"
	"github.com/fyrsmithlabs/embedpipe/internal/embeddings"
	"github.com/fyrsmithlabs/embedpipe/internal/logging"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Server provides HTTP endpoints for embedpipe.
type Server struct {
	echo    *echo.Echo
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics

	pipeline atomic.Pointer[embeddings.Pipeline]
	// provider caches the last detection; nil means detect on next request.
	provider atomic.Pointer[embeddings.ProviderInfo]
}

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	// MaxBatchTexts bounds the texts accepted by one batch request.
	MaxBatchTexts int
	// BodyLimit bounds request bodies, in echo's size notation.
	BodyLimit string
}

// ConfigFromSettings builds a server config from the settings file section.
func ConfigFromSettings(s config.ServerConfig) *Config {
	return &Config{
		Host:            s.Host,
		Port:            s.Port,
		ShutdownTimeout: s.ShutdownTimeout.Duration(),
		MaxBatchTexts:   1000,
		BodyLimit:       "8M",
	}
}

// NewServer creates a new HTTP server.
func NewServer(pipeline *embeddings.Pipeline, logger *zap.Logger, cfg *Config, opts ...MetricsOption) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}
	if cfg.MaxBatchTexts <= 0 {
		cfg.MaxBatchTexts = 1000
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "8M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger, opts...),
	}
	s.pipeline.Store(pipeline)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			if logging.IsValidID(id) {
				req := c.Request()
				c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
			}
		},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := append(logging.ContextFields(c.Request().Context()),
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			logger.Info("http request", fields...)
			return nil
		}
	})

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/embed", s.handleEmbed)
	v1.POST("/embed/batch", s.handleEmbedBatch)
	v1.POST("/models/ensure", s.handleEnsureModel)
}

// SetPipeline swaps in a pipeline built from new settings. The next request
// detects the provider again.
func (s *Server) SetPipeline(p *embeddings.Pipeline) {
	if p == nil {
		return
	}
	s.pipeline.Store(p)
	s.provider.Store(nil)
	s.logger.Info("embedding pipeline reloaded", zap.String("model", p.Config().Model))
}

// detectProvider returns the cached provider or detects one.
func (s *Server) detectProvider(ctx context.Context) (embeddings.ProviderInfo, bool) {
	if info := s.provider.Load(); info != nil {
		return *info, true
	}
	info, ok := s.pipeline.Load().DetectEmbeddingProvider(ctx)
	if ok {
		s.provider.Store(&info)
	}
	return info, ok
}

// handleHealth reports the detected provider, or null when none is reachable.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if info, ok := s.detectProvider(c.Request().Context()); ok {
		resp.Provider = &info
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleEmbed(c echo.Context) error {
	var req EmbedRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid embed request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	ctx := c.Request().Context()
	info, ok := s.detectProvider(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, embeddings.ErrUnavailable.Error())
	}

	vec, err := s.pipeline.Load().Embed(ctx, info, req.Text)
	if err != nil {
		return s.embedError(ctx, err)
	}
	return c.JSON(http.StatusOK, EmbedResponse{Embedding: vec})
}

func (s *Server) handleEmbedBatch(c echo.Context) error {
	var req EmbedBatchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid batch request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Texts) > s.config.MaxBatchTexts {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("too many texts: %d (max %d)", len(req.Texts), s.config.MaxBatchTexts))
	}
	if len(req.Texts) == 0 {
		return c.JSON(http.StatusOK, EmbedBatchResponse{Embeddings: [][]float32{}})
	}

	ctx := c.Request().Context()
	info, ok := s.detectProvider(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, embeddings.ErrUnavailable.Error())
	}

	vecs, err := s.pipeline.Load().EmbedBatch(ctx, info, req.Texts)
	if err != nil {
		return s.embedError(ctx, err)
	}
	return c.JSON(http.StatusOK, EmbedBatchResponse{Embeddings: vecs})
}

func (s *Server) handleEnsureModel(c echo.Context) error {
	ctx := c.Request().Context()
	info, ok := s.detectProvider(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, embeddings.ErrUnavailable.Error())
	}
	p := s.pipeline.Load()
	return c.JSON(http.StatusOK, EnsureModelResponse{
		Ready: p.EnsureModel(ctx, info),
		Model: p.Config().Model,
	})
}

// embedError maps pipeline failures to HTTP status codes.
func (s *Server) embedError(ctx context.Context, err error) error {
	s.logger.Warn("embedding request failed", append(logging.ContextFields(ctx), zap.Error(err))...)

	switch {
	case errors.Is(err, embeddings.ErrEmptyInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case embeddings.IsContextTooLong(err):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case embeddings.IsProviderFailure(err):
		// The provider may have gone away; detect again next time.
		s.provider.Store(nil)
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, embeddings.ErrEmbeddingFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
