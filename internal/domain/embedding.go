package domain

import "context"

// Embedder turns text into a vector. Used by the vector cache for query semantics.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// KeyPrefix is the default namespace for every key the service writes.
const KeyPrefix = "newsdex:"
