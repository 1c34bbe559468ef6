package embeddings

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ollamaProvider talks to an Ollama server.
type ollamaProvider struct {
	baseURL string
	http    *transport
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaModelRequest struct {
	Name string `json:"name"`
}

func (p *ollamaProvider) Info() ProviderInfo {
	return ProviderInfo{Kind: KindOllama, BaseURL: p.baseURL}
}

func (p *ollamaProvider) Ping(ctx context.Context) error {
	return p.http.get(ctx, "ollama.tags", p.baseURL+"/api/tags")
}

func (p *ollamaProvider) EmbedOne(ctx context.Context, model, text string) (Vector, error) {
	var resp ollamaEmbeddingResponse
	err := p.http.postJSON(ctx, "ollama.embeddings", p.baseURL+"/api/embeddings",
		ollamaEmbeddingRequest{Model: model, Prompt: text}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, &Error{Kind: ErrorKindPermanent, Op: "ollama.embeddings", Err: errors.New("response contained no embedding")}
	}
	return resp.Embedding, nil
}

func (p *ollamaProvider) EmbedMany(ctx context.Context, model string, texts []string) ([]Vector, bool) {
	var resp ollamaEmbedResponse
	err := p.http.postJSON(ctx, "ollama.embed", p.baseURL+"/api/embed",
		ollamaEmbedRequest{Model: model, Input: texts}, &resp)
	if err != nil || len(resp.Embeddings) != len(texts) {
		return nil, false
	}
	for _, v := range resp.Embeddings {
		if len(v) == 0 {
			return nil, false
		}
	}
	return resp.Embeddings, true
}

// EnsureModel checks /api/show and pulls the model when it is missing,
// blocking until the pull stream ends.
func (p *ollamaProvider) EnsureModel(ctx context.Context, model string) error {
	err := p.http.postJSON(ctx, "ollama.show", p.baseURL+"/api/show", ollamaModelRequest{Name: model}, nil)
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) || e.StatusCode != http.StatusNotFound {
		return fmt.Errorf("checking model %q: %w", model, err)
	}

	body, err := p.http.stream(ctx, "ollama.pull", p.baseURL+"/api/pull", ollamaModelRequest{Name: model})
	if err != nil {
		return fmt.Errorf("pulling model %q: %w", model, err)
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if msg := gjson.GetBytes(line, "error"); msg.Exists() {
			return &Error{Kind: ErrorKindPermanent, Op: "ollama.pull", Err: fmt.Errorf("pulling model %q: %s", model, msg.String())}
		}
	}
	if err := scanner.Err(); err != nil {
		return &Error{Kind: ErrorKindTransient, Op: "ollama.pull", Err: fmt.Errorf("reading pull progress: %w", err)}
	}
	return nil
}
