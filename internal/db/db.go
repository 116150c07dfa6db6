package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	HashStore
	JSONStore
	KVStore
	IndexManager
	Searcher
	ScriptRunner
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides the hash reads used for corpus statistics.
type HashStore interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HLen(ctx context.Context, key string) (int64, error)
}

// JSONStore provides JSON document operations.
type JSONStore interface {
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	// JSONMGet returns one entry per key; missing keys yield nil.
	JSONMGet(ctx context.Context, keys []string, path string) ([][]byte, error)
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher provides search operations over FT indexes.
type Searcher interface {
	Search(ctx context.Context, q *Query) (*SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Script is a server-side Lua script. Implementations cache it by SHA.
type Script struct {
	Name     string
	Source   string
	ReadOnly bool // runs via EVALSHA_RO; the script must not write
}

// ScriptRunner executes Lua scripts atomically on the server.
type ScriptRunner interface {
	EvalInt(ctx context.Context, s *Script, keys, args []string) (int64, error)
	EvalInts(ctx context.Context, s *Script, keys, args []string) ([]int64, error)
}
