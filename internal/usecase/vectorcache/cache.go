// Package vectorcache is a lookaside cache of search results keyed by query
// semantics: a query is answered from the cache when an earlier query with a
// close enough embedding is still live.
package vectorcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/cache"
	"github.com/kailas-cloud/newsdex/internal/metrics"
)

var tracer = otel.Tracer("newsdex.vectorcache")

const (
	collectionName = "query_cache"
	scopeKey       = "scope"

	// DefaultMaxCandidates is the initial number of nearest entries inspected per lookup.
	DefaultMaxCandidates = 8
)

// Options configures the cache. DedupThreshold must not be below AcceptThreshold.
type Options struct {
	AcceptThreshold float64
	DedupThreshold  float64
	TTL             time.Duration
	MaxCandidates   int
}

// Validate checks the thresholds and TTL.
func (o Options) Validate() error {
	if !(o.AcceptThreshold >= 0 && o.AcceptThreshold <= 1) { // rejects NaN
		return fmt.Errorf("accept threshold %g: %w", o.AcceptThreshold, domain.ErrInvalidThreshold)
	}
	if !(o.DedupThreshold >= 0 && o.DedupThreshold <= 1) {
		return fmt.Errorf("dedup threshold %g: %w", o.DedupThreshold, domain.ErrInvalidThreshold)
	}
	if o.DedupThreshold < o.AcceptThreshold {
		return fmt.Errorf("dedup threshold %g below accept threshold %g: %w",
			o.DedupThreshold, o.AcceptThreshold, domain.ErrInvalidThreshold)
	}
	if o.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive: %w", domain.ErrInvalidRequest)
	}
	return nil
}

// Query identifies what a cached answer is looked up or stored for.
type Query struct {
	Text  string
	Scope string
	Limit int
}

// Match is a cache entry with its similarity to the probing query.
type Match struct {
	Entry      cache.Entry
	Similarity float64
}

// Cache holds live query results in a chromem-go collection. The mutex makes
// Store and Evict exclusive against each other and against lookups; lookups
// share the read lock.
type Cache struct {
	mu      sync.RWMutex
	coll    *chromem.Collection
	entries map[string]cache.Entry

	embedder Embedder
	opts     Options
	now      func() time.Time
	logger   *zap.Logger
}

// New creates an empty cache.
func New(embedder Embedder, opts Options, logger *zap.Logger) (*Cache, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}

	coll, err := chromem.NewDB().CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create cache collection: %w", err)
	}

	return &Cache{
		coll:     coll,
		entries:  make(map[string]cache.Entry),
		embedder: embedder,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// WithClock overrides the time source.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Lookup returns the most similar live entry for q.Text whose similarity is at
// least the acceptance threshold and which covers q's scope and limit.
func (c *Cache) Lookup(ctx context.Context, q Query) (Match, bool, error) {
	ctx, span := tracer.Start(ctx, "vectorcache.Lookup")
	defer span.End()

	vec, err := c.embed(ctx, q.Text)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Match{}, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	m, ok, err := c.scan(ctx, vec, map[string]string{scopeKey: q.Scope}, c.opts.AcceptThreshold,
		func(m Match) bool { return !m.Entry.Expired(now) && m.Entry.Covers(q.Scope, q.Limit) })
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Match{}, false, err
	}
	if ok {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.Bool("hit", true), attribute.Float64("similarity", m.Similarity))
		return m, true, nil
	}

	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	span.SetAttributes(attribute.Bool("hit", false))
	return Match{}, false, nil
}

// Nearest returns the most similar live entry of any scope with similarity at
// least minSimilarity. Used to give the query improver context.
func (c *Cache) Nearest(ctx context.Context, text string, minSimilarity float64) (Match, bool, error) {
	vec, err := c.embed(ctx, text)
	if err != nil {
		return Match{}, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	return c.scan(ctx, vec, nil, minSimilarity, func(m Match) bool { return !m.Entry.Expired(now) })
}

// Store caches hits as the answer to q. A live or expired entry in the same scope
// whose embedding is within the de-duplication threshold is replaced in place and
// its creation time refreshed. A cancelled context stores nothing.
func (c *Cache) Store(ctx context.Context, q Query, hits []cache.Hit) (replaced bool, err error) {
	ctx, span := tracer.Start(ctx, "vectorcache.Store")
	defer span.End()

	vec, err := c.embed(ctx, q.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		metrics.CacheStoresTotal.WithLabelValues("skipped").Inc()
		return false, fmt.Errorf("store cache entry: %w", err)
	}

	dup, found, err := c.scan(ctx, vec, map[string]string{scopeKey: q.Scope}, c.opts.DedupThreshold,
		func(Match) bool { return true })
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	id := uuid.NewString()
	if found {
		id = dup.Entry.ID
		replaced = true
	}

	entry := cache.Entry{
		ID:        id,
		Query:     q.Text,
		Embedding: vec,
		Hits:      append([]cache.Hit(nil), hits...),
		Limit:     q.Limit,
		Scope:     q.Scope,
		CreatedAt: c.now(),
		TTL:       c.opts.TTL,
	}
	doc := chromem.Document{
		ID:        id,
		Metadata:  map[string]string{scopeKey: q.Scope},
		Embedding: vec,
		Content:   q.Text,
	}
	if err := c.coll.AddDocument(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("add cache entry: %w", err)
	}
	c.entries[id] = entry

	action := "insert"
	if replaced {
		action = "replace"
	}
	metrics.CacheStoresTotal.WithLabelValues(action).Inc()
	metrics.CacheEntries.Set(float64(len(c.entries)))
	span.SetAttributes(attribute.String("action", action), attribute.Int("hits", len(hits)))

	c.logger.Debug("Cache entry stored",
		zap.String("id", id),
		zap.String("action", action),
		zap.Int("hits", len(hits)),
	)
	return replaced, nil
}

// Evict removes expired entries and returns how many were removed.
func (c *Cache) Evict(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expired []string
	for id, e := range c.entries {
		if e.Expired(now) {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if err := c.coll.Delete(ctx, nil, nil, expired...); err != nil {
		return 0, fmt.Errorf("delete expired entries: %w", err)
	}
	for _, id := range expired {
		delete(c.entries, id)
	}

	metrics.CacheEvictionsTotal.Add(float64(len(expired)))
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return len(expired), nil
}

// Run evicts expired entries every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Evict(ctx)
			if err != nil {
				c.logger.Warn("Cache eviction failed", zap.Error(err))
				continue
			}
			if n > 0 {
				c.logger.Debug("Cache entries evicted", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of stored entries, expired ones included until evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cache query text is empty: %w", domain.ErrInvalidRequest)
	}
	res, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed cache query: %w", err)
	}
	if len(res.Embedding) == 0 {
		return nil, errors.New("embed cache query: empty vector")
	}
	return res.Embedding, nil
}

// scan visits entries in descending similarity and returns the first one accept
// takes. It stops at the first entry below floor. The query window starts at
// MaxCandidates and doubles while every entry in it was rejected, so expired or
// out-of-scope neighbours never hide a qualifying entry further down.
// Callers hold c.mu.
func (c *Cache) scan(
	ctx context.Context, vec []float32, where map[string]string, floor float64, accept func(Match) bool,
) (Match, bool, error) {
	total := c.coll.Count()
	k := min(c.opts.MaxCandidates, total)
	seen := make(map[string]struct{}, k)

	for k > 0 {
		results, err := c.coll.QueryEmbedding(ctx, vec, k, where, nil)
		if err != nil {
			return Match{}, false, fmt.Errorf("query cache index: %w", err)
		}

		batch := make([]Match, 0, len(results))
		for _, r := range results {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			if e, ok := c.entries[r.ID]; ok {
				batch = append(batch, Match{Entry: e, Similarity: float64(r.Similarity)})
			}
		}
		sort.SliceStable(batch, func(i, j int) bool { return batch[i].Similarity > batch[j].Similarity })

		for _, m := range batch {
			if m.Similarity < floor {
				return Match{}, false, nil
			}
			if accept(m) {
				return m, true, nil
			}
		}

		// Fewer results than asked for means the filtered set is exhausted.
		if len(results) < k || k == total {
			return Match{}, false, nil
		}
		k = min(2*k, total)
	}
	return Match{}, false, nil
}
