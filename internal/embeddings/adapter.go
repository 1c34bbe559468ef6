package embeddings

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"
)

var _ embeddings.Embedder = (*LangchainEmbedder)(nil)

// LangchainEmbedder adapts a Session to langchaingo's embeddings.Embedder
// so langchaingo vector stores can index through the pipeline.
type LangchainEmbedder struct {
	session *Session
}

// NewLangchainEmbedder wraps session.
func NewLangchainEmbedder(session *Session) *LangchainEmbedder {
	return &LangchainEmbedder{session: session}
}

// EmbedDocuments embeds texts in input order.
func (e *LangchainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.session.EmbedBatch(ctx, texts)
}

// EmbedQuery embeds a single query text.
func (e *LangchainEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.session.Embed(ctx, text)
}

// Dimension returns the vector length of the default model.
func (e *LangchainEmbedder) Dimension() int {
	return EmbeddingDimension
}
