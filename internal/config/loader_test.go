package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeSettings writes content to a settings file in a temp dir and returns its path.
func writeSettings(t *testing.T, name, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("Failed to write test settings: %v", err)
	}
	return path
}

// TestLoadWithFile_JSON tests loading the JSON settings file written by the host app.
func TestLoadWithFile_JSON(t *testing.T) {
	path := writeSettings(t, "settings.json", `{
  "embeddings": {
    "model": "mxbai-embed-large",
    "ollama_host": "http://127.0.0.1:11434",
    "openai_host": "http://127.0.0.1:1234/v1",
    "openai_api_key": "sk-local",
    "probe_timeout": "2s",
    "batch_size": 5
  },
  "server": {"port": 9292}
}`, 0600)

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Embeddings.Model != "mxbai-embed-large" {
		t.Errorf("Embeddings.Model = %q, want mxbai-embed-large", cfg.Embeddings.Model)
	}
	if cfg.Embeddings.OllamaHost != "http://127.0.0.1:11434" {
		t.Errorf("Embeddings.OllamaHost = %q", cfg.Embeddings.OllamaHost)
	}
	if cfg.Embeddings.OpenAIAPIKey.Value() != "sk-local" {
		t.Errorf("Embeddings.OpenAIAPIKey not loaded")
	}
	if cfg.Embeddings.ProbeTimeout.Duration() != 2*time.Second {
		t.Errorf("Embeddings.ProbeTimeout = %v, want 2s", cfg.Embeddings.ProbeTimeout.Duration())
	}
	if cfg.Embeddings.BatchSize != 5 {
		t.Errorf("Embeddings.BatchSize = %d, want 5", cfg.Embeddings.BatchSize)
	}
	if cfg.Server.Port != 9292 {
		t.Errorf("Server.Port = %d, want 9292", cfg.Server.Port)
	}
}

// TestLoadWithFile_YAML tests that YAML settings are accepted too.
func TestLoadWithFile_YAML(t *testing.T) {
	path := writeSettings(t, "settings.yaml", `embeddings:
  model: all-minilm
logging:
  level: debug
  format: console
`, 0600)

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}
	if cfg.Embeddings.Model != "all-minilm" {
		t.Errorf("Embeddings.Model = %q, want all-minilm", cfg.Embeddings.Model)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console", cfg.Logging.Format)
	}
}

// TestLoadWithFile_MissingFile tests that a missing file yields defaults.
func TestLoadWithFile_MissingFile(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Embeddings.Model != "" {
		t.Errorf("Embeddings.Model = %q, want empty (pipeline default applies)", cfg.Embeddings.Model)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("Server.Host = %q, want localhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout.Duration() != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout.Duration())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}
	if cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled = true, want false by default")
	}
	if cfg.Telemetry.ServiceName != "embedpipe" {
		t.Errorf("Telemetry.ServiceName = %q, want embedpipe", cfg.Telemetry.ServiceName)
	}
}

// TestLoadWithFile_EnvOverride tests that environment variables win over the file.
func TestLoadWithFile_EnvOverride(t *testing.T) {
	path := writeSettings(t, "settings.json", `{"embeddings": {"model": "from-file"}}`, 0600)

	t.Setenv("EMBEDPIPE_EMBEDDINGS_MODEL", "from-env")
	t.Setenv("EMBEDPIPE_EMBEDDINGS_OLLAMA_HOST", "http://ollama.internal:11434")
	t.Setenv("EMBEDPIPE_SERVER_PORT", "9393")

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}
	if cfg.Embeddings.Model != "from-env" {
		t.Errorf("Embeddings.Model = %q, want from-env", cfg.Embeddings.Model)
	}
	if cfg.Embeddings.OllamaHost != "http://ollama.internal:11434" {
		t.Errorf("Embeddings.OllamaHost = %q", cfg.Embeddings.OllamaHost)
	}
	if cfg.Server.Port != 9393 {
		t.Errorf("Server.Port = %d, want 9393", cfg.Server.Port)
	}
}

func TestLoadWithFile_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		perm    os.FileMode
		wantErr string
	}{
		{
			name:    "malformed json",
			content: `{"embeddings": [`,
			perm:    0600,
			wantErr: "failed to load config file",
		},
		{
			name:    "invalid host scheme",
			content: `{"embeddings": {"ollama_host": "localhost:11434"}}`,
			perm:    0600,
			wantErr: "must be an http(s) URL",
		},
		{
			name:    "negative batch size",
			content: `{"embeddings": {"batch_size": -1}}`,
			perm:    0600,
			wantErr: "batch_size cannot be negative",
		},
		{
			name:    "bad logging format",
			content: `{"logging": {"format": "xml"}}`,
			perm:    0600,
			wantErr: "logging format",
		},
		{
			name:    "negative duration",
			content: `{"embeddings": {"probe_timeout": "-1s"}}`,
			perm:    0600,
			wantErr: "failed to unmarshal config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSettings(t, "settings.json", tt.content, tt.perm)
			_, err := LoadWithFile(path)
			if err == nil {
				t.Fatal("LoadWithFile() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	path := writeSettings(t, "settings.json", `{}`, 0600)
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	_, err := LoadWithFile(path)
	if err == nil || !strings.Contains(err.Error(), "insecure config file permissions") {
		t.Errorf("error = %v, want insecure permissions error", err)
	}
}

func TestLoadWithFile_TooLarge(t *testing.T) {
	big := `{"embeddings": {"model": "` + strings.Repeat("x", maxConfigFileSize) + `"}}`
	path := writeSettings(t, "settings.json", big, 0600)

	_, err := LoadWithFile(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("error = %v, want too large error", err)
	}
}

func TestLoadWithFile_DefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "embedpipe")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"embeddings": {"model": "home-model"}}`), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadWithFile("")
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}
	if cfg.Embeddings.Model != "home-model" {
		t.Errorf("Embeddings.Model = %q, want home-model", cfg.Embeddings.Model)
	}
}

func TestEnvKeyToPath(t *testing.T) {
	tests := map[string]string{
		"EMBEDPIPE_EMBEDDINGS_OLLAMA_HOST":     "embeddings.ollama_host",
		"EMBEDPIPE_SERVER_PORT":                "server.port",
		"EMBEDPIPE_TELEMETRY_ENABLED":          "telemetry.enabled",
		"EMBEDPIPE_EMBEDDINGS_REQUEST_TIMEOUT": "embeddings.request_timeout",
	}
	for in, want := range tests {
		if got := envKeyToPath(in); got != want {
			t.Errorf("envKeyToPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-live-123")
	if s.String() != "[REDACTED]" {
		t.Errorf("String() = %q, want [REDACTED]", s.String())
	}
	b, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(b) != `"[REDACTED]"` {
		t.Errorf("MarshalJSON() = %s", b)
	}
	if !s.IsSet() || Secret("").IsSet() {
		t.Error("IsSet() mismatch")
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "3s", want: 3 * time.Second},
		{in: "1m30s", want: 90 * time.Second},
		{in: "5", want: 5 * time.Second},
		{in: "0", want: 0},
		{in: "-1s", wantErr: true},
		{in: "-2", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		var d Duration
		err := d.UnmarshalText([]byte(tt.in))
		if tt.wantErr {
			if err == nil {
				t.Errorf("UnmarshalText(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("UnmarshalText(%q): %v", tt.in, err)
			continue
		}
		if d.Duration() != tt.want {
			t.Errorf("UnmarshalText(%q) = %v, want %v", tt.in, d.Duration(), tt.want)
		}
	}
}

func TestSecret_GoString(t *testing.T) {
	if got := fmt.Sprintf("%#v", Secret("sk-live-123")); got != `config.Secret("[REDACTED]")` {
		t.Errorf("%%#v = %s", got)
	}
}
