package embeddings

import (
	"context"

	"github.com/fyrsmithlabs/embedpipe/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is a Pipeline bound to the provider chosen by one detection.
// An indexing run opens one session and reuses it for every text.
type Session struct {
	ID         string
	Provider   ProviderInfo
	ModelReady bool

	pipeline *Pipeline
}

// Open detects a provider and makes sure the configured model is present.
// It returns ErrUnavailable when no provider answers. A model that could
// not be provisioned is reported through ModelReady, not as an error.
func (p *Pipeline) Open(ctx context.Context) (*Session, error) {
	s := &Session{
		ID:       uuid.NewString(),
		pipeline: p,
	}
	ctx = s.Context(ctx)

	info, ok := p.DetectEmbeddingProvider(ctx)
	if !ok {
		return nil, ErrUnavailable
	}
	s.Provider = info
	s.ModelReady = p.EnsureModel(ctx, info)

	p.logger.Info("embedding session opened",
		append(logging.ContextFields(ctx),
			zap.String("provider", string(info.Kind)),
			zap.String("model", p.cfg.Model),
			zap.Bool("model_ready", s.ModelReady))...)
	return s, nil
}

// Context tags ctx with the session ID for log correlation.
func (s *Session) Context(ctx context.Context) context.Context {
	return logging.WithSessionID(ctx, s.ID)
}

// Embed embeds one text with the session's provider.
func (s *Session) Embed(ctx context.Context, text string) (Vector, error) {
	return s.pipeline.Embed(s.Context(ctx), s.Provider, text)
}

// EmbedBatch embeds texts with the session's provider, in input order.
func (s *Session) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	return s.pipeline.EmbedBatch(s.Context(ctx), s.Provider, texts)
}
