package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/corpus"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

// Summary describes the corpus as a whole.
type Summary struct {
	Documents     int64
	// Indexed is the search index's own document count. It trails Documents
	// while indexing catches up and stays behind after a lost index.
	Indexed       int64
	DistinctTerms int64
	Top           []corpus.TermCount
}

// Store owns the corpus-wide document frequency counters. Every mutation goes
// through Commit or Retract, which update the document and the counters atomically.
type Store struct {
	backend Backend
	logger  *zap.Logger
}

// New creates a corpus statistics store over backend.
func New(backend Backend, logger *zap.Logger) *Store {
	return &Store{backend: backend, logger: logger}
}

// Snapshot returns N and df for every term of m, as seen by a document stored
// under url. The document's own previous version is not counted.
func (s *Store) Snapshot(ctx context.Context, url string, m entity.Map) (corpus.Stats, error) {
	terms := m.Terms()
	stats, err := s.backend.Snapshot(ctx, url, terms)
	if err != nil {
		return corpus.Stats{}, fmt.Errorf("snapshot %s: %w", url, err)
	}
	return stats, nil
}

// Commit persists doc and replaces its contribution to the counters with terms.
// terms are the document's extracted terms before relevance filtering.
// A cancelled context skips the commit entirely.
func (s *Store) Commit(ctx context.Context, doc *article.Document, terms []entity.Term) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("commit %s: %w", doc.URL(), err)
	}

	created, err := s.backend.Commit(ctx, doc, terms)
	if err != nil {
		retryable := isTransient(err)
		s.logger.Warn("Corpus commit failed",
			zap.String("url", doc.URL()),
			zap.Bool("retryable", retryable),
			zap.Error(err),
		)
		return false, domain.NewCommitError(doc.URL(), err, retryable)
	}

	s.logger.Debug("Corpus commit applied",
		zap.String("url", doc.URL()),
		zap.Bool("created", created),
		zap.Int("terms", len(terms)),
		zap.Int("entities", doc.Len()),
	)
	return created, nil
}

// Retract removes the document stored under url and its contribution to the counters.
func (s *Store) Retract(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("retract %s: %w", url, err)
	}

	found, err := s.backend.Retract(ctx, url)
	if err != nil {
		return domain.NewCommitError(url, err, isTransient(err))
	}
	if !found {
		return fmt.Errorf("%q: %w", url, domain.ErrDocumentNotFound)
	}

	s.logger.Debug("Corpus retract applied", zap.String("url", url))
	return nil
}

// Summary returns document and term counts plus up to top most frequent terms.
func (s *Store) Summary(ctx context.Context, top int) (Summary, error) {
	n, err := s.backend.Count(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("count documents: %w", err)
	}
	distinct, err := s.backend.DistinctTerms(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("count terms: %w", err)
	}

	indexed, err := s.backend.Indexed(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("count indexed documents: %w", err)
	}
	if indexed != n {
		s.logger.Warn("Search index out of sync with corpus",
			zap.Int64("documents", n),
			zap.Int64("indexed", indexed),
		)
	}

	var terms []corpus.TermCount
	if top > 0 {
		terms, err = s.backend.TopTerms(ctx, top)
		if err != nil {
			return Summary{}, fmt.Errorf("top terms: %w", err)
		}
	}
	return Summary{Documents: n, Indexed: indexed, DistinctTerms: distinct, Top: terms}, nil
}

// isTransient reports whether err is a transport failure after which the
// whole commit may be retried. Script errors are not transient.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
