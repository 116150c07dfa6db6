package article

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/newsdex/internal/db"
	domart "github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	jsonGetFn     func(ctx context.Context, key string, paths ...string) ([]byte, error)
	jsonMGetFn    func(ctx context.Context, keys []string, path string) ([][]byte, error)
	getFn         func(ctx context.Context, key string) ([]byte, error)
	hgetAllFn     func(ctx context.Context, key string) (map[string]string, error)
	hlenFn        func(ctx context.Context, key string) (int64, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, name string) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchFn      func(ctx context.Context, q *db.Query) (*db.SearchResult, error)
	searchCountFn func(ctx context.Context, index, query string) (int, error)
	evalIntFn     func(ctx context.Context, s *db.Script, keys, args []string) (int64, error)
	evalIntsFn    func(ctx context.Context, s *db.Script, keys, args []string) ([]int64, error)
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) JSONMGet(ctx context.Context, keys []string, path string) ([][]byte, error) {
	if m.jsonMGetFn != nil {
		return m.jsonMGetFn(ctx, keys, path)
	}
	return make([][]byte, len(keys)), nil
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HLen(ctx context.Context, key string) (int64, error) {
	if m.hlenFn != nil {
		return m.hlenFn(ctx, key)
	}
	return 0, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) Search(ctx context.Context, q *db.Query) (*db.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index, query string) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index, query)
	}
	return 0, nil
}

func (m *mockStore) EvalInt(ctx context.Context, s *db.Script, keys, args []string) (int64, error) {
	if m.evalIntFn != nil {
		return m.evalIntFn(ctx, s, keys, args)
	}
	return 0, nil
}

func (m *mockStore) EvalInts(ctx context.Context, s *db.Script, keys, args []string) ([]int64, error) {
	if m.evalIntsFn != nil {
		return m.evalIntsFn(ctx, s, keys, args)
	}
	return []int64{0}, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "newsdex:", "newsdex_articles"), ms
}

func testDocument(t *testing.T) domart.Document {
	t.Helper()
	john, err := domart.NewEntity(entity.People, "John Matthews", 1)
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	london, err := domart.NewEntity(entity.Locations, "London", 1)
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	paris, err := domart.NewEntity(entity.Locations, "Paris", 0.4)
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	doc, err := domart.New("https://news.example/a", map[entity.Category][]domart.Entity{
		entity.People:    {john},
		entity.Locations: {london, paris},
	}, time.Unix(1700000000, 0).UTC())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return doc
}
