package http

import "github.com/fyrsmithlabs/embedpipe/internal/embeddings"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Provider *embeddings.ProviderInfo `json:"provider"`
}

// EmbedRequest is the request body for POST /api/v1/embed.
type EmbedRequest struct {
	Text string `json:"text"`
}

// EmbedResponse is the response body for POST /api/v1/embed.
type EmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedBatchRequest is the request body for POST /api/v1/embed/batch.
type EmbedBatchRequest struct {
	Texts []string `json:"texts"`
}

// EmbedBatchResponse is the response body for POST /api/v1/embed/batch.
// Embeddings[i] is the embedding of Texts[i].
type EmbedBatchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EnsureModelResponse is the response body for POST /api/v1/models/ensure.
type EnsureModelResponse struct {
	Ready bool   `json:"ready"`
	Model string `json:"model"`
}
