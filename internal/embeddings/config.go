package embeddings

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fyrsmithlabs/embedpipe/internal/config"
)

const (
	// EmbeddingDimension is the vector length produced by DefaultModel.
	EmbeddingDimension = 768

	// DefaultModel is used when no model is configured.
	DefaultModel = "nomic-embed-text"

	// DefaultOllamaHost is the Ollama base URL when none is configured.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOpenAIHost is the OpenAI-compatible base URL (LM Studio default).
	DefaultOpenAIHost = "http://localhost:1234/v1"

	// MaxInputChars caps every text before it is sent, in characters.
	MaxInputChars = 2000

	// BatchSize is the number of texts sent per bulk request.
	BatchSize = 10

	// MaxTransientRetries is the retry budget for transient failures.
	MaxTransientRetries = 3

	// MaxShrinkAttempts is how many times a text is halved after a
	// context-length rejection.
	MaxShrinkAttempts = 3

	DefaultRetryBackoff   = 2 * time.Second
	DefaultGroupPause     = 100 * time.Millisecond
	DefaultProbeTimeout   = 3 * time.Second
	DefaultRequestTimeout = 60 * time.Second
)

// Config is the settings snapshot a Pipeline is bound to.
type Config struct {
	Model        string
	OllamaHost   string
	OpenAIHost   string
	OpenAIAPIKey string

	// ProbeTimeout bounds each provider health check during detection.
	ProbeTimeout time.Duration
	// RequestTimeout bounds each HTTP attempt. Model pulls are bounded only
	// by the caller's context.
	RequestTimeout time.Duration
	// RequestsPerSecond throttles provider requests. Zero disables throttling.
	RequestsPerSecond float64

	BatchSize     int
	MaxInputChars int
	GroupPause    time.Duration

	// Retry governs transient failures of a single request.
	Retry RetryPolicy
	// Shrink governs halving a text after context-length rejections.
	Shrink RetryPolicy

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		Model:          DefaultModel,
		OllamaHost:     DefaultOllamaHost,
		OpenAIHost:     DefaultOpenAIHost,
		ProbeTimeout:   DefaultProbeTimeout,
		RequestTimeout: DefaultRequestTimeout,
		BatchSize:      BatchSize,
		MaxInputChars:  MaxInputChars,
		GroupPause:     DefaultGroupPause,
		Retry: RetryPolicy{
			MaxRetries: MaxTransientRetries,
			Backoff:    LinearBackoff(DefaultRetryBackoff),
		},
		Shrink: RetryPolicy{
			MaxRetries: MaxShrinkAttempts,
		},
	}
}

// ConfigFromSettings overlays the settings file section on DefaultConfig.
// Unset values keep their defaults.
func ConfigFromSettings(s config.EmbeddingsConfig) Config {
	cfg := DefaultConfig()
	if s.Model != "" {
		cfg.Model = s.Model
	}
	if s.OllamaHost != "" {
		cfg.OllamaHost = s.OllamaHost
	}
	if s.OpenAIHost != "" {
		cfg.OpenAIHost = s.OpenAIHost
	}
	cfg.OpenAIAPIKey = s.OpenAIAPIKey.Value()
	if d := s.ProbeTimeout.Duration(); d > 0 {
		cfg.ProbeTimeout = d
	}
	if d := s.RequestTimeout.Duration(); d > 0 {
		cfg.RequestTimeout = d
	}
	cfg.RequestsPerSecond = s.RequestsPerSecond
	if s.BatchSize > 0 {
		cfg.BatchSize = s.BatchSize
	}
	if s.MaxInputChars > 0 {
		cfg.MaxInputChars = s.MaxInputChars
	}
	if d := s.GroupPause.Duration(); d > 0 {
		cfg.GroupPause = d
	}
	if d := s.RetryBackoff.Duration(); d > 0 {
		cfg.Retry.Backoff = LinearBackoff(d)
	}
	return cfg
}

// withDefaults fills zero values so a partially populated Config works.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.OllamaHost == "" {
		c.OllamaHost = d.OllamaHost
	}
	if c.OpenAIHost == "" {
		c.OpenAIHost = d.OpenAIHost
	}
	c.OllamaHost = strings.TrimRight(c.OllamaHost, "/")
	c.OpenAIHost = strings.TrimRight(c.OpenAIHost, "/")
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = d.MaxInputChars
	}
	if c.GroupPause < 0 {
		c.GroupPause = 0
	}
	return c
}

// Validate checks the provider URLs and tuning values.
func (c Config) Validate() error {
	for name, host := range map[string]string{"ollama host": c.OllamaHost, "openai host": c.OpenAIHost} {
		u, err := url.Parse(host)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %s must be an http(s) URL, got %q", ErrInvalidConfig, name, host)
		}
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second cannot be negative", ErrInvalidConfig)
	}
	return nil
}
