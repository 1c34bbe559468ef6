// Package embeddings turns text into embedding vectors using a locally
// hosted inference server.
//
// Two provider kinds are supported: Ollama, which offers a bulk endpoint
// and model management, and any OpenAI-compatible server such as LM Studio.
// DetectEmbeddingProvider probes them in that order. EmbedBatch prefers
// Ollama's bulk endpoint and falls back to one request per text, halving
// texts the model rejects as too long. Transient failures (network errors,
// 5xx, a crashed model runner) are retried with linear backoff.
//
// Output vectors always line up with input texts: vector i is the
// embedding of text i, or the call fails as a whole.
//
//	p, err := embeddings.New(embeddings.ConfigFromSettings(cfg.Embeddings), embeddings.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	session, err := p.Open(ctx)
//	if errors.Is(err, embeddings.ErrUnavailable) {
//	    // skip indexing
//	}
//	vectors, err := session.EmbedBatch(ctx, chunks)
package embeddings
