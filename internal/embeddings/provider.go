package embeddings

import (
	"context"
	"fmt"
)

// Kind identifies a provider flavor.
type Kind string

const (
	// KindOllama is an Ollama server: bulk embeddings and model management.
	KindOllama Kind = "ollama"
	// KindOpenAI is an OpenAI-compatible server such as LM Studio.
	KindOpenAI Kind = "openai"
)

// Vector is one embedding.
type Vector = []float32

// ProviderInfo identifies a reachable provider. It is returned by detection
// and passed back into every embedding call.
type ProviderInfo struct {
	Kind    Kind   `json:"kind"`
	BaseURL string `json:"base_url"`
}

// Provider is the capability set every provider variant implements.
type Provider interface {
	// Info returns the kind and base URL this provider talks to.
	Info() ProviderInfo
	// Ping is a cheap reachability check.
	Ping(ctx context.Context) error
	// EmbedOne embeds a single text. Errors are *Error values.
	EmbedOne(ctx context.Context, model, text string) (Vector, error)
	// EmbedMany embeds texts in one request. ok is false when the provider
	// has no bulk endpoint or the response is not exactly one vector per
	// text; callers then fall back to EmbedOne. It never fails otherwise.
	EmbedMany(ctx context.Context, model string, texts []string) (vectors []Vector, ok bool)
	// EnsureModel makes sure model is available, downloading it if needed.
	EnsureModel(ctx context.Context, model string) error
}

// newProvider builds the variant for info.
func newProvider(info ProviderInfo, t *transport) (Provider, error) {
	switch info.Kind {
	case KindOllama:
		return &ollamaProvider{baseURL: info.BaseURL, http: t}, nil
	case KindOpenAI:
		return &openAIProvider{baseURL: info.BaseURL, http: t}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider kind %q", ErrInvalidConfig, info.Kind)
	}
}
