// Package config provides settings loading for embedpipe.
//
// Settings are read from a JSON (or YAML) file written by the host
// application, then overridden by EMBEDPIPE_* environment variables.
// The embedding pipeline never reads this file itself; callers load a
// snapshot once per session and hand it to the pipeline.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds the complete embedpipe settings.
type Config struct {
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Server     ServerConfig     `koanf:"server"`
}

// EmbeddingsConfig holds the settings the embedding pipeline consumes.
//
// Zero values mean "use the pipeline default"; defaults are owned by the
// embeddings package so that the fallback model name lives in one place.
type EmbeddingsConfig struct {
	Model             string   `koanf:"model"`
	OllamaHost        string   `koanf:"ollama_host"`
	OpenAIHost        string   `koanf:"openai_host"`
	OpenAIAPIKey      Secret   `koanf:"openai_api_key"`
	ProbeTimeout      Duration `koanf:"probe_timeout"`
	RequestTimeout    Duration `koanf:"request_timeout"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	BatchSize         int      `koanf:"batch_size"`
	MaxInputChars     int      `koanf:"max_input_chars"`
	GroupPause        Duration `koanf:"group_pause"`
	RetryBackoff      Duration `koanf:"retry_backoff"`
}

// LoggingConfig holds the logger settings exposed in the settings file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// ServerConfig holds HTTP server settings for `embedpipe serve`.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Logging format is not json or console
//   - Any embeddings tuning value is negative
//   - Telemetry is enabled without an endpoint
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	e := c.Embeddings
	if e.BatchSize < 0 {
		return fmt.Errorf("embeddings batch_size cannot be negative: %d", e.BatchSize)
	}
	if e.MaxInputChars < 0 {
		return fmt.Errorf("embeddings max_input_chars cannot be negative: %d", e.MaxInputChars)
	}
	if e.RequestsPerSecond < 0 {
		return fmt.Errorf("embeddings requests_per_second cannot be negative: %v", e.RequestsPerSecond)
	}
	for name, host := range map[string]string{"ollama_host": e.OllamaHost, "openai_host": e.OpenAIHost} {
		if host != "" && !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
			return fmt.Errorf("embeddings %s must be an http(s) URL, got %q", name, host)
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry endpoint required when telemetry is enabled")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate)
	}

	return nil
}
