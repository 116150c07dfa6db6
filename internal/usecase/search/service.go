package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/cache"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
	"github.com/kailas-cloud/newsdex/internal/domain/search/improve"
	"github.com/kailas-cloud/newsdex/internal/domain/search/plan"
	"github.com/kailas-cloud/newsdex/internal/domain/search/request"
	"github.com/kailas-cloud/newsdex/internal/domain/search/result"
	"github.com/kailas-cloud/newsdex/internal/metrics"
	"github.com/kailas-cloud/newsdex/internal/usecase/vectorcache"
)

var tracer = otel.Tracer("newsdex.search")

// LowSignalPolicy decides what a query without usable entities returns.
type LowSignalPolicy string

const (
	// Browse returns the most recently indexed documents with score 0.
	Browse LowSignalPolicy = "browse"
	// Empty returns no results.
	Empty LowSignalPolicy = "empty"
	// Reject fails with domain.ErrLowSignal.
	Reject LowSignalPolicy = "reject"
)

// Outcome tells which path produced a response.
type Outcome string

// Search outcomes.
const (
	OutcomeCached Outcome = "cached"
	OutcomeRanked Outcome = "ranked"
	OutcomeBrowse Outcome = "browse"
	OutcomeEmpty  Outcome = "empty"
)

// DefaultMaxCandidates caps how many documents storage returns per query.
const DefaultMaxCandidates = 500

// Options configures the search service.
type Options struct {
	Required      []entity.Category
	MaxCandidates int
	LowSignal     LowSignalPolicy
	// ConfidenceFloor is the minimum improver confidence for a suggestion to be used.
	ConfidenceFloor float64
	// ContextThreshold is the minimum similarity for a cached query to be passed to the improver.
	ContextThreshold float64
	// LLMLimiter bounds improver calls; exhausted means the improvement is skipped. Nil disables the limit.
	LLMLimiter *rate.Limiter
}

// Response is a ranked result list plus how it was produced.
type Response struct {
	Results  []result.Result
	Outcome  Outcome
	Query    string     // query text the results were computed for, after improvement
	Improved bool       // true when the improver rewrote the query
	Entities entity.Map // entities the plan was built from
}

// Service answers natural-language queries against rectified documents.
type Service struct {
	repo     Repository
	ner      Extractor
	improver Improver // optional
	cache    Cache    // optional
	opts     Options
	required string
	logger   *zap.Logger
}

// New creates a search service. improver and cache may be nil.
func New(repo Repository, ner Extractor, improver Improver, c Cache, opts Options, logger *zap.Logger) *Service {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	if opts.LowSignal == "" {
		opts.LowSignal = Browse
	}

	names := make([]string, len(opts.Required))
	for i, c := range opts.Required {
		names[i] = string(c)
	}

	return &Service{
		repo:     repo,
		ner:      ner,
		improver: improver,
		cache:    c,
		opts:     opts,
		required: strings.Join(names, ","),
		logger:   logger,
	}
}

// Search runs the cached, planned and ranked query pipeline.
// A query matching nothing is a successful empty response.
func (s *Service) Search(ctx context.Context, req *request.Request) (resp Response, err error) {
	ctx, span := tracer.Start(ctx, "search.Search")
	start := time.Now()
	defer func() {
		outcome := string(resp.Outcome)
		switch {
		case errors.Is(err, domain.ErrLowSignal):
			outcome = "rejected"
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.SearchRequestsTotal.WithLabelValues(outcome).Inc()
		metrics.SearchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("outcome", outcome), attribute.Int("results", len(resp.Results)))
		span.End()
	}()

	cacheable := s.cache != nil && req.Entities() == nil && req.Text() != ""
	probe := vectorcache.Query{Text: req.Text(), Scope: s.scope(req), Limit: req.Limit()}

	if cacheable {
		if r, ok := s.fromCache(ctx, probe); ok {
			return r, nil
		}
	}

	entities := req.Entities()
	if entities == nil {
		entities, err = s.ner.Extract(ctx, req.Text())
		if err != nil {
			return Response{}, fmt.Errorf("extract query entities: %w", err)
		}
	}

	query := req.Text()
	improved := false
	p, err := plan.Build(entities, req.Thresholds(), s.opts.Required, req.Since())
	if errors.Is(err, domain.ErrLowSignal) {
		if ents, q, ok := s.improve(ctx, req.Text()); ok {
			p, err = plan.Build(ents, req.Thresholds(), s.opts.Required, req.Since())
			if err == nil {
				entities, query, improved = ents, q, true
			}
		}
	}
	if errors.Is(err, domain.ErrLowSignal) {
		return s.lowSignal(ctx, req)
	}
	if err != nil {
		return Response{}, fmt.Errorf("plan query: %w", err)
	}

	docs, err := s.repo.Candidates(ctx, p.Filter(), s.opts.MaxCandidates)
	if err != nil {
		return Response{}, fmt.Errorf("fetch candidates: %w", err)
	}
	metrics.SearchCandidates.Observe(float64(len(docs)))

	results := rank(p.Clauses(), docs, req.Limit())

	if cacheable {
		s.store(ctx, probe, results)
	}

	return Response{
		Results:  results,
		Outcome:  OutcomeRanked,
		Query:    query,
		Improved: improved,
		Entities: entities,
	}, nil
}

// scope fingerprints every result-shaping parameter of req besides text and limit.
func (s *Service) scope(req *request.Request) string {
	return req.Scope() + ";req=" + s.required
}

func (s *Service) fromCache(ctx context.Context, q vectorcache.Query) (Response, bool) {
	m, ok, err := s.cache.Lookup(ctx, q)
	if err != nil {
		s.logger.Warn("Cache lookup failed, searching without cache", zap.Error(err))
		return Response{}, false
	}
	if !ok {
		return Response{}, false
	}

	results, err := s.hydrate(ctx, m.Entry.Hits, q.Limit)
	if err != nil {
		s.logger.Warn("Cached hits could not be loaded", zap.String("entry", m.Entry.ID), zap.Error(err))
		return Response{}, false
	}

	s.logger.Debug("Cache hit",
		zap.String("query", q.Text),
		zap.String("cached_query", m.Entry.Query),
		zap.Float64("similarity", m.Similarity),
	)
	return Response{Results: results, Outcome: OutcomeCached, Query: q.Text}, true
}

// hydrate loads the documents of cached hits in hit order. Documents deleted
// since the entry was stored are skipped.
func (s *Service) hydrate(ctx context.Context, hits []cache.Hit, limit int) ([]result.Result, error) {
	if len(hits) > limit {
		hits = hits[:limit]
	}
	urls := make([]string, len(hits))
	for i, h := range hits {
		urls[i] = h.URL
	}

	docs, err := s.repo.GetMany(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("load cached documents: %w", err)
	}
	byURL := make(map[string]int, len(docs))
	for i, d := range docs {
		byURL[d.URL()] = i
	}

	results := make([]result.Result, 0, len(hits))
	for _, h := range hits {
		i, ok := byURL[h.URL]
		if !ok {
			continue
		}
		results = append(results, result.New(docs[i], h.Score, nil))
	}
	return results, nil
}

func (s *Service) store(ctx context.Context, q vectorcache.Query, results []result.Result) {
	if ctx.Err() != nil {
		return
	}
	hits := make([]cache.Hit, len(results))
	for i := range results {
		hits[i] = cache.Hit{URL: results[i].URL(), Score: results[i].Score()}
	}
	if _, err := s.cache.Store(ctx, q, hits); err != nil {
		s.logger.Warn("Failed to cache search result", zap.Error(err))
	}
}

// improve asks the LLM collaborator for a better query. ok is false whenever
// improvement is unavailable, rate limited, failed or not confident enough.
func (s *Service) improve(ctx context.Context, text string) (entity.Map, string, bool) {
	if s.improver == nil || text == "" {
		return nil, "", false
	}
	if s.opts.LLMLimiter != nil && !s.opts.LLMLimiter.Allow() {
		s.logger.Debug("Query improvement skipped: rate limited")
		return nil, "", false
	}

	var hint *improve.Context
	if s.cache != nil {
		m, ok, err := s.cache.Nearest(ctx, text, s.opts.ContextThreshold)
		if err != nil {
			s.logger.Debug("No improvement context", zap.Error(err))
		} else if ok {
			hint = &improve.Context{Query: m.Entry.Query, Similarity: m.Similarity}
		}
	}

	sug, err := s.improver.Improve(ctx, text, hint)
	if err != nil {
		s.logger.Warn("Query improvement failed", zap.String("query", text), zap.Error(err))
		return nil, "", false
	}
	metrics.LLMConfidence.Observe(sug.Confidence)

	if !sug.Accepted(s.opts.ConfidenceFloor) {
		s.logger.Debug("Query improvement below confidence floor",
			zap.String("query", text),
			zap.Float64("confidence", sug.Confidence),
		)
		return nil, "", false
	}

	query := sug.Query
	if query == "" {
		query = text
	}
	ents := sug.Entities
	if ents.IsEmpty() {
		ents, err = s.ner.Extract(ctx, query)
		if err != nil {
			s.logger.Warn("Entity extraction on improved query failed", zap.Error(err))
			return nil, "", false
		}
	}

	s.logger.Debug("Query improved",
		zap.String("query", text),
		zap.String("improved", query),
		zap.Float64("confidence", sug.Confidence),
	)
	return ents, query, true
}

func (s *Service) lowSignal(ctx context.Context, req *request.Request) (Response, error) {
	switch s.opts.LowSignal {
	case Reject:
		return Response{}, domain.ErrLowSignal
	case Empty:
		return Response{Results: []result.Result{}, Outcome: OutcomeEmpty, Query: req.Text()}, nil
	}

	expr, err := plan.Browse(req.Since())
	if err != nil {
		return Response{}, fmt.Errorf("plan browse: %w", err)
	}
	docs, err := s.repo.Candidates(ctx, expr, req.Limit())
	if err != nil {
		return Response{}, fmt.Errorf("fetch recent documents: %w", err)
	}
	return Response{
		Results: rank(nil, docs, req.Limit()),
		Outcome: OutcomeBrowse,
		Query:   req.Text(),
	}, nil
}
