package chi

import (
	"context"

	"github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/search/request"
	aggregateuc "github.com/kailas-cloud/newsdex/internal/usecase/aggregate"
	corpusuc "github.com/kailas-cloud/newsdex/internal/usecase/corpus"
	healthuc "github.com/kailas-cloud/newsdex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/newsdex/internal/usecase/search"
)

// Searcher answers search requests.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (searchuc.Response, error)
}

// Aggregator ingests, reads and deletes documents.
type Aggregator interface {
	AggregateText(ctx context.Context, url, text string) (aggregateuc.Result, error)
	AggregateFile(ctx context.Context, path, url string) (aggregateuc.Result, error)
	AggregateDirectory(ctx context.Context, dir, urlPrefix string) (aggregateuc.Report, error)
	Delete(ctx context.Context, url string) error
	Get(ctx context.Context, url string) (article.Document, error)
	Stats(ctx context.Context, top int) (corpusuc.Summary, error)
}

// HealthReporter reports component health.
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}

// CacheSizer reports the number of live vector cache entries.
type CacheSizer interface {
	Len() int
}
