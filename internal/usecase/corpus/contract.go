package corpus

import (
	"context"

	"github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/corpus"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

// Backend persists documents together with their corpus statistics.
// Commit and Retract must apply the document and the counters as one unit.
type Backend interface {
	Snapshot(ctx context.Context, url string, terms []entity.Term) (corpus.Stats, error)
	Commit(ctx context.Context, doc *article.Document, terms []entity.Term) (bool, error)
	Retract(ctx context.Context, url string) (bool, error)
	Count(ctx context.Context) (int64, error)
	// Indexed counts the documents visible to search.
	Indexed(ctx context.Context) (int64, error)
	DistinctTerms(ctx context.Context) (int64, error)
	TopTerms(ctx context.Context, limit int) ([]corpus.TermCount, error)
}
