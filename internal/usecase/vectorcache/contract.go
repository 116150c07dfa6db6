package vectorcache

import (
	"context"

	"github.com/kailas-cloud/newsdex/internal/domain"
)

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
