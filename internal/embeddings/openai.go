package embeddings

import (
	"context"
	"errors"
)

// openAIProvider talks to an OpenAI-compatible server such as LM Studio.
// It has no bulk endpoint and no model management. Its transient failures
// are not retried; context-length rejections still trigger shrinking.
type openAIProvider struct {
	baseURL string
	http    *transport
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *openAIProvider) Info() ProviderInfo {
	return ProviderInfo{Kind: KindOpenAI, BaseURL: p.baseURL}
}

func (p *openAIProvider) Ping(ctx context.Context) error {
	return p.http.get(ctx, "openai.models", p.baseURL+"/models")
}

func (p *openAIProvider) EmbedOne(ctx context.Context, model, text string) (Vector, error) {
	var resp openAIEmbeddingResponse
	err := p.http.postJSON(ctx, "openai.embeddings", p.baseURL+"/embeddings",
		openAIEmbeddingRequest{Model: model, Input: text}, &resp)
	if err != nil {
		return nil, withoutRetry(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &Error{Kind: ErrorKindPermanent, Op: "openai.embeddings", Err: errors.New("response contained no embedding")}
	}
	return resp.Data[0].Embedding, nil
}

func (p *openAIProvider) EmbedMany(context.Context, string, []string) ([]Vector, bool) {
	return nil, false
}

// EnsureModel is a no-op: the operator loads models in the server UI.
func (p *openAIProvider) EnsureModel(context.Context, string) error {
	return nil
}

// withoutRetry downgrades a transient failure to permanent.
func withoutRetry(err error) error {
	var e *Error
	if errors.As(err, &e) && e.Kind == ErrorKindTransient {
		cp := *e
		cp.Kind = ErrorKindPermanent
		return &cp
	}
	return err
}
