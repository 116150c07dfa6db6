package search

import (
	"context"

	"github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/cache"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
	"github.com/kailas-cloud/newsdex/internal/domain/search/filter"
	"github.com/kailas-cloud/newsdex/internal/domain/search/improve"
	"github.com/kailas-cloud/newsdex/internal/usecase/vectorcache"
)

// Repository defines the storage contract for search operations.
type Repository interface {
	Candidates(ctx context.Context, expr filter.Expression, limit int) ([]article.Document, error)
	GetMany(ctx context.Context, urls []string) ([]article.Document, error)
}

// Extractor is the NER collaborator: text in, raw entities per category out.
type Extractor interface {
	Extract(ctx context.Context, text string) (entity.Map, error)
}

// Improver is the LLM collaborator that rewrites low-signal queries.
// hint is nil when no similar earlier query is known.
type Improver interface {
	Improve(ctx context.Context, query string, hint *improve.Context) (improve.Suggestion, error)
}

// Cache is the semantic result cache.
type Cache interface {
	Lookup(ctx context.Context, q vectorcache.Query) (vectorcache.Match, bool, error)
	Nearest(ctx context.Context, text string, minSimilarity float64) (vectorcache.Match, bool, error)
	Store(ctx context.Context, q vectorcache.Query, hits []cache.Hit) (bool, error)
}
