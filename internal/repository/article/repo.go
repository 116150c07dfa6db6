package article

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/newsdex/internal/db"
	"github.com/kailas-cloud/newsdex/internal/domain"
	domart "github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
	"github.com/kailas-cloud/newsdex/internal/domain/search/filter"
	"github.com/kailas-cloud/newsdex/internal/domain/search/plan"
)

var errEmptyResult = errors.New("empty JSON result")

// store is the consumer interface for articles and corpus statistics (ISP).
type store interface {
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONMGet(ctx context.Context, keys []string, path string) ([][]byte, error)
	Get(ctx context.Context, key string) ([]byte, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HLen(ctx context.Context, key string) (int64, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	Search(ctx context.Context, q *db.Query) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	EvalInt(ctx context.Context, s *db.Script, keys, args []string) (int64, error)
	EvalInts(ctx context.Context, s *db.Script, keys, args []string) ([]int64, error)
}

// Repo stores rectified articles as JSON documents under an FT index and keeps
// the corpus statistics next to them.
type Repo struct {
	store  store
	prefix string
	index  string
}

// New creates an article repository. prefix namespaces every key; index is the FT index name.
func New(s store, prefix, index string) *Repo {
	if prefix == "" {
		prefix = domain.KeyPrefix
	}
	return &Repo{store: s, prefix: prefix, index: index}
}

// EnsureIndex creates the article index when it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.index, err)
	}
	if exists {
		return nil
	}

	b := db.NewIndex(r.index).OnJSON().Prefix(r.docPrefix())
	for _, c := range entity.All() {
		b = b.TagAs(fmt.Sprintf("$.entities.%s[*].norm", c), string(c), string(entity.TagSeparator))
	}
	def, err := b.SortableNumeric("$.indexed_at", plan.IndexedAtField).Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.index, err)
	}
	return nil
}

// Reindex drops the article index and builds it again over the stored
// documents. Documents and corpus statistics are left in place.
func (r *Repo) Reindex(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.index); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", r.index, err)
	}
	return r.EnsureIndex(ctx)
}

// Indexed returns how many documents the article index currently holds.
func (r *Repo) Indexed(ctx context.Context) (int64, error) {
	n, err := r.store.SearchCount(ctx, r.index, "*")
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s: %w", r.index, err)
	}
	return int64(n), nil
}

// Get returns the stored document for a url.
func (r *Repo) Get(ctx context.Context, url string) (domart.Document, error) {
	key := r.docKey(url)
	raw, err := r.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domart.Document{}, domain.ErrDocumentNotFound
		}
		return domart.Document{}, fmt.Errorf("json.get %s: %w", key, err)
	}
	doc, err := parseDoc(raw)
	if errors.Is(err, errEmptyResult) {
		return domart.Document{}, domain.ErrDocumentNotFound
	}
	return doc, err
}

// GetMany returns the documents that still exist, in the order of urls.
func (r *Repo) GetMany(ctx context.Context, urls []string) ([]domart.Document, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = r.docKey(u)
	}

	raws, err := r.store.JSONMGet(ctx, keys, "$")
	if err != nil {
		return nil, fmt.Errorf("json.mget: %w", err)
	}

	docs := make([]domart.Document, 0, len(raws))
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		doc, err := parseDoc(raw)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Candidates returns up to limit documents matching the filter, most recently
// indexed first.
func (r *Repo) Candidates(ctx context.Context, expr filter.Expression, limit int) ([]domart.Document, error) {
	res, err := r.store.Search(ctx, &db.Query{
		IndexName:    r.index,
		Filters:      expr,
		SortBy:       plan.IndexedAtField,
		SortDesc:     true,
		Limit:        limit,
		ReturnFields: []string{"$"},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("search %s: %w", r.index, err)
	}
	if res == nil {
		return nil, nil
	}

	docs := make([]domart.Document, 0, len(res.Entries))
	for _, entry := range res.Entries {
		raw := entry.Fields["$"]
		if raw == "" {
			continue
		}
		doc, err := parseDoc([]byte(raw))
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of committed documents (corpus N).
func (r *Repo) Count(ctx context.Context) (int64, error) {
	raw, err := r.store.Get(ctx, r.totalKey())
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get %s: %w", r.totalKey(), err)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse document count %q: %w", raw, err)
	}
	return max(0, n), nil
}

// DistinctTerms returns the number of (category, key) pairs with df > 0.
func (r *Repo) DistinctTerms(ctx context.Context) (int64, error) {
	n, err := r.store.HLen(ctx, r.dfKey())
	if err != nil {
		return 0, fmt.Errorf("hlen %s: %w", r.dfKey(), err)
	}
	return n, nil
}

func (r *Repo) docPrefix() string        { return r.prefix + "article:" }
func (r *Repo) docKey(url string) string { return r.docPrefix() + urlHash(url) }
func (r *Repo) termsKey(url string) string {
	return r.prefix + "terms:" + urlHash(url)
}
func (r *Repo) dfKey() string    { return r.prefix + "corpus:df" }
func (r *Repo) totalKey() string { return r.prefix + "corpus:n" }
