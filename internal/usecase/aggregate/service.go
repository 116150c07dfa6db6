package aggregate

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/metrics"
	corpusstore "github.com/kailas-cloud/newsdex/internal/usecase/corpus"
)

var tracer = otel.Tracer("newsdex.aggregate")

// Defaults for Options.
const (
	DefaultMinTextChars = 50
	DefaultWorkers      = 4
)

// DefaultExtensions are the file types picked up by directory aggregation.
var DefaultExtensions = []string{".pdf", ".jpg", ".jpeg", ".png"}

// Options configures aggregation.
type Options struct {
	MinTextChars int
	Workers      int
	Extensions   []string
}

// Result describes one committed document.
type Result struct {
	URL      string
	Created  bool
	Entities int // entities persisted after filtering
	Dropped  int // distinct values removed by the relevance filter
}

// Failure is a file that could not be aggregated.
type Failure struct {
	Path string
	URL  string
	Err  error
}

// Report is the outcome of a directory aggregation. Failures never abort the batch.
type Report struct {
	Succeeded []Result
	Failed    []Failure
}

// Service orchestrates OCR, entity extraction, rectification and commit.
type Service struct {
	ocr       TextExtractor
	ner       Extractor
	rectifier Rectifier
	corpus    Corpus
	docs      DocumentReader
	opts      Options
	logger    *zap.Logger
}

// New creates an aggregation service.
func New(
	ocr TextExtractor, ner Extractor, rectifier Rectifier,
	c Corpus, docs DocumentReader, opts Options, logger *zap.Logger,
) *Service {
	if opts.MinTextChars <= 0 {
		opts.MinTextChars = DefaultMinTextChars
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	return &Service{
		ocr:       ocr,
		ner:       ner,
		rectifier: rectifier,
		corpus:    c,
		docs:      docs,
		opts:      opts,
		logger:    logger,
	}
}

// AggregateText rectifies text and commits it under url.
func (s *Service) AggregateText(ctx context.Context, url, text string) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "aggregate.Text")
	span.SetAttributes(attribute.String("url", url))
	defer func() {
		outcome := "updated"
		switch {
		case err != nil:
			outcome = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res.Created:
			outcome = "created"
		}
		metrics.AggregatedDocumentsTotal.WithLabelValues(outcome).Inc()
		span.End()
	}()

	url = strings.TrimSpace(url)
	if url == "" {
		return Result{}, fmt.Errorf("document url is required: %w", domain.ErrInvalidRequest)
	}
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < s.opts.MinTextChars {
		return Result{}, fmt.Errorf("%d chars, need %d: %w", n, s.opts.MinTextChars, domain.ErrTextTooShort)
	}

	ents, err := s.ner.Extract(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("extract entities: %w", err)
	}

	stats, err := s.corpus.Snapshot(ctx, url, ents)
	if err != nil {
		return Result{}, fmt.Errorf("read corpus statistics: %w", err)
	}

	doc, err := s.rectifier.Rectify(url, ents, stats)
	if err != nil {
		return Result{}, fmt.Errorf("rectify: %w", err)
	}

	// Last point where cancellation leaves nothing behind.
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("aggregate %s: %w", url, err)
	}

	terms := ents.Terms()
	created, err := s.corpus.Commit(ctx, &doc, terms)
	if err != nil {
		return Result{}, err
	}

	dropped := len(terms) - doc.Len()
	metrics.RectifiedEntitiesTotal.WithLabelValues("kept").Add(float64(doc.Len()))
	metrics.RectifiedEntitiesTotal.WithLabelValues("dropped").Add(float64(dropped))

	s.logger.Info("Document aggregated",
		zap.String("url", url),
		zap.Bool("created", created),
		zap.Int("entities", doc.Len()),
		zap.Int("dropped", dropped),
		zap.Int64("corpus_size", stats.Total()),
	)
	return Result{URL: url, Created: created, Entities: doc.Len(), Dropped: dropped}, nil
}

// AggregateFile extracts text from path and aggregates it. url defaults to path.
func (s *Service) AggregateFile(ctx context.Context, path, url string) (Result, error) {
	if url == "" {
		url = path
	}
	text, err := s.ocr.ExtractText(ctx, path)
	if err != nil {
		metrics.AggregatedDocumentsTotal.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("extract text from %s: %w", path, err)
	}
	return s.AggregateText(ctx, url, text)
}

// AggregateDirectory aggregates every file under dir with a configured extension,
// Workers at a time. Each document's url is urlPrefix + "/" + its slash-separated
// path relative to dir; urlPrefix defaults to dir.
func (s *Service) AggregateDirectory(ctx context.Context, dir, urlPrefix string) (Report, error) {
	files, err := s.collect(dir)
	if err != nil {
		return Report{}, err
	}
	if urlPrefix == "" {
		urlPrefix = filepath.ToSlash(dir)
	}
	urlPrefix = strings.TrimRight(urlPrefix, "/")

	var (
		mu     sync.Mutex
		report Report
		g      errgroup.Group
	)
	g.SetLimit(s.opts.Workers)

	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return Report{}, fmt.Errorf("relative path of %s: %w", path, err)
		}
		url := urlPrefix + "/" + filepath.ToSlash(rel)

		g.Go(func() error {
			res, err := s.AggregateFile(ctx, path, url)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("File aggregation failed",
					zap.String("path", path),
					zap.Bool("retryable", domain.IsRetryable(err)),
					zap.Error(err),
				)
				report.Failed = append(report.Failed, Failure{Path: path, URL: url, Err: err})
				return nil
			}
			report.Succeeded = append(report.Succeeded, res)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Succeeded, func(i, j int) bool { return report.Succeeded[i].URL < report.Succeeded[j].URL })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Path < report.Failed[j].Path })

	s.logger.Info("Directory aggregated",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, ctx.Err()
}

// Delete removes a document and its statistics.
func (s *Service) Delete(ctx context.Context, url string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("document url is required: %w", domain.ErrInvalidRequest)
	}
	if err := s.corpus.Retract(ctx, url); err != nil {
		return fmt.Errorf("delete %s: %w", url, err)
	}
	s.logger.Info("Document deleted", zap.String("url", url))
	return nil
}

// Get returns the committed document stored under url.
func (s *Service) Get(ctx context.Context, url string) (article.Document, error) {
	if strings.TrimSpace(url) == "" {
		return article.Document{}, fmt.Errorf("document url is required: %w", domain.ErrInvalidRequest)
	}
	doc, err := s.docs.Get(ctx, url)
	if err != nil {
		return article.Document{}, fmt.Errorf("get %s: %w", url, err)
	}
	return doc, nil
}

// Stats summarizes the corpus with up to top most frequent terms.
func (s *Service) Stats(ctx context.Context, top int) (corpusstore.Summary, error) {
	sum, err := s.corpus.Summary(ctx, top)
	if err != nil {
		return corpusstore.Summary{}, fmt.Errorf("corpus summary: %w", err)
	}
	return sum, nil
}

// collect returns the files under dir with a configured extension, in lexical order.
func (s *Service) collect(dir string) ([]string, error) {
	exts := make(map[string]struct{}, len(s.opts.Extensions))
	for _, e := range s.opts.Extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(path))]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}
