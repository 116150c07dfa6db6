package aggregate

import (
	"context"

	"github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/corpus"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
	corpusstore "github.com/kailas-cloud/newsdex/internal/usecase/corpus"
)

// TextExtractor is the OCR collaborator. A file without text fails with
// domain.ErrNoTextExtracted rather than returning "".
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Extractor is the NER collaborator.
type Extractor interface {
	Extract(ctx context.Context, text string) (entity.Map, error)
}

// Rectifier weights one document's entities against corpus statistics.
type Rectifier interface {
	Rectify(url string, m entity.Map, stats corpus.Stats) (article.Document, error)
}

// Corpus commits documents together with their statistics.
type Corpus interface {
	Snapshot(ctx context.Context, url string, m entity.Map) (corpus.Stats, error)
	Commit(ctx context.Context, doc *article.Document, terms []entity.Term) (bool, error)
	Retract(ctx context.Context, url string) error
	Summary(ctx context.Context, top int) (corpusstore.Summary, error)
}

// DocumentReader reads committed documents.
type DocumentReader interface {
	Get(ctx context.Context, url string) (article.Document, error)
}
