package article

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kailas-cloud/newsdex/internal/db"
	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
	"github.com/kailas-cloud/newsdex/internal/domain/search/filter"
)

func storedJSON(t *testing.T, wrap bool) []byte {
	t.Helper()
	doc := testDocument(t)
	data, err := json.Marshal(buildJSONDoc(&doc))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if wrap {
		return []byte("[" + string(data) + "]")
	}
	return data
}

// --- EnsureIndex ---

func TestEnsureIndex_Creates(t *testing.T) {
	repo, ms := newTestRepo(t)

	var got *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		got = def
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("CreateIndex not called")
	}
	if got.StorageType != db.StorageJSON {
		t.Errorf("storage = %q, want JSON", got.StorageType)
	}
	if len(got.Prefixes) != 1 || got.Prefixes[0] != "newsdex:article:" {
		t.Errorf("prefixes = %v", got.Prefixes)
	}
	if len(got.Fields) != len(entity.All())+1 {
		t.Fatalf("fields = %d, want %d", len(got.Fields), len(entity.All())+1)
	}
	if got.Fields[0].Name != "$.entities.people[*].norm" || got.Fields[0].Alias != "people" {
		t.Errorf("first field = %+v", got.Fields[0])
	}
	last := got.Fields[len(got.Fields)-1]
	if last.Alias != "indexed_at" || !last.Sortable {
		t.Errorf("last field = %+v", last)
	}
}

func TestEnsureIndex_Exists(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		t.Error("CreateIndex should not be called")
		return nil
	}
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureIndex_RaceTolerated(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error { return db.ErrIndexExists }
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- Reindex ---

func TestReindex(t *testing.T) {
	tests := []struct {
		name    string
		dropErr error
		wantErr bool
	}{
		{"drops and recreates", nil, false},
		{"missing index", db.ErrIndexNotFound, false},
		{"drop failure", errors.New("down"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, ms := newTestRepo(t)
			var calls []string
			ms.dropIndexFn = func(_ context.Context, name string) error {
				calls = append(calls, "drop "+name)
				return tc.dropErr
			}
			ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
				calls = append(calls, "create "+def.Name)
				return nil
			}

			err := repo.Reindex(context.Background())
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if len(calls) != 1 {
					t.Errorf("index must not be recreated after a failed drop, calls = %v", calls)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := []string{"drop newsdex_articles", "create newsdex_articles"}
			if fmt.Sprint(calls) != fmt.Sprint(want) {
				t.Errorf("calls = %v, want %v", calls, want)
			}
		})
	}
}

// --- Indexed ---

func TestIndexed(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		err     error
		want    int64
		wantErr bool
	}{
		{"count", 4, nil, 4, false},
		{"no index yet", 0, db.ErrIndexNotFound, 0, false},
		{"store error", 0, errors.New("down"), 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, ms := newTestRepo(t)
			ms.searchCountFn = func(_ context.Context, index, query string) (int, error) {
				if index != "newsdex_articles" || query != "*" {
					t.Errorf("SearchCount(%q, %q)", index, query)
				}
				return tc.count, tc.err
			}
			n, err := repo.Indexed(context.Background())
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if n != tc.want {
				t.Errorf("Indexed = %d, want %d", n, tc.want)
			}
		})
	}
}

// --- Get ---

func TestGet_Success(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.jsonGetFn = func(_ context.Context, key string, _ ...string) ([]byte, error) {
		if !strings.HasPrefix(key, "newsdex:article:") {
			t.Errorf("unexpected key: %s", key)
		}
		return storedJSON(t, true), nil
	}

	doc, err := repo.Get(context.Background(), "https://news.example/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.URL() != "https://news.example/a" {
		t.Errorf("URL = %q", doc.URL())
	}
	w, ok := doc.Weight(entity.Locations, "paris")
	if !ok || w != 0.4 {
		t.Errorf("Weight(paris) = %v, %v", w, ok)
	}
	locs := doc.Entities(entity.Locations)
	if len(locs) != 2 || locs[0].Key() != "London" {
		t.Errorf("locations order not preserved: %+v", locs)
	}
	if doc.IndexedAt().Unix() != 1700000000 {
		t.Errorf("IndexedAt = %v", doc.IndexedAt())
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Get(context.Background(), "https://news.example/missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestGet_EmptyArray(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.jsonGetFn = func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte("[]"), nil
	}
	_, err := repo.Get(context.Background(), "u")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestGet_StoreError(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.jsonGetFn = func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}
	_, err := repo.Get(context.Background(), "u")
	if err == nil || errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

// --- GetMany ---

func TestGetMany_SkipsMissing(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.jsonMGetFn = func(_ context.Context, keys []string, path string) ([][]byte, error) {
		if len(keys) != 3 || path != "$" {
			t.Errorf("keys=%v path=%q", keys, path)
		}
		return [][]byte{storedJSON(t, true), nil, []byte("not json")}, nil
	}

	docs, err := repo.GetMany(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(docs))
	}
}

func TestGetMany_Empty(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.jsonMGetFn = func(_ context.Context, _ []string, _ string) ([][]byte, error) {
		t.Error("JSONMGet should not be called")
		return nil, nil
	}
	docs, err := repo.GetMany(context.Background(), nil)
	if err != nil || docs != nil {
		t.Errorf("expected nil, nil; got %v, %v", docs, err)
	}
}

// --- Candidates ---

func TestCandidates(t *testing.T) {
	repo, ms := newTestRepo(t)
	cond, _ := filter.NewMatchAny("people", "john matthews")
	expr, _ := filter.NewExpression(nil, []filter.Condition{cond})

	ms.searchFn = func(_ context.Context, q *db.Query) (*db.SearchResult, error) {
		if q.IndexName != "newsdex_articles" || q.SortBy != "indexed_at" || !q.SortDesc || q.Limit != 500 {
			t.Errorf("unexpected query: %+v", q)
		}
		if len(q.Filters.Should()) != 1 {
			t.Errorf("filter not passed through: %+v", q.Filters)
		}
		return &db.SearchResult{Total: 2, Entries: []db.SearchEntry{
			{Key: "newsdex:article:1", Fields: map[string]string{"$": string(storedJSON(t, false))}},
			{Key: "newsdex:article:2", Fields: map[string]string{}},
		}}, nil
	}

	docs, err := repo.Candidates(context.Background(), expr, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].URL() != "https://news.example/a" {
		t.Errorf("unexpected docs: %+v", docs)
	}
}

func TestCandidates_NoIndexYet(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchFn = func(_ context.Context, _ *db.Query) (*db.SearchResult, error) {
		return nil, db.ErrIndexNotFound
	}
	docs, err := repo.Candidates(context.Background(), filter.Expression{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no docs, got %d", len(docs))
	}
}

func TestCandidates_Error(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchFn = func(_ context.Context, _ *db.Query) (*db.SearchResult, error) {
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("timeout")}
	}
	if _, err := repo.Candidates(context.Background(), filter.Expression{}, 10); err == nil {
		t.Fatal("expected error")
	}
}

// --- Count / DistinctTerms ---

func TestCount(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		err     error
		want    int64
		wantErr bool
	}{
		{"missing key", nil, db.ErrKeyNotFound, 0, false},
		{"value", []byte("42"), nil, 42, false},
		{"negative clamps", []byte("-1"), nil, 0, false},
		{"garbage", []byte("x"), nil, 0, true},
		{"store error", nil, errors.New("boom"), 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, ms := newTestRepo(t)
			ms.getFn = func(_ context.Context, key string) ([]byte, error) {
				if key != "newsdex:corpus:n" {
					t.Errorf("unexpected key %q", key)
				}
				return tc.raw, tc.err
			}
			got, err := repo.Count(context.Background())
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("Count = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDistinctTerms(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hlenFn = func(_ context.Context, key string) (int64, error) {
		if key != "newsdex:corpus:df" {
			t.Errorf("unexpected key %q", key)
		}
		return 7, nil
	}
	n, err := repo.DistinctTerms(context.Background())
	if err != nil || n != 7 {
		t.Errorf("DistinctTerms = %d, %v", n, err)
	}
}

func TestKeysAreStablePerURL(t *testing.T) {
	repo, _ := newTestRepo(t)
	if repo.docKey("u") != repo.docKey("u") {
		t.Error("doc key must be deterministic")
	}
	if repo.docKey("u") == repo.docKey("v") {
		t.Error("different urls must not share a key")
	}
	if !strings.HasPrefix(repo.termsKey("u"), "newsdex:terms:") {
		t.Errorf("terms key = %q", repo.termsKey("u"))
	}
}
