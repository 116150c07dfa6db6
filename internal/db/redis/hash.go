package redis

import (
	"context"

	"github.com/kailas-cloud/newsdex/internal/db"
)

// HGetAll returns all fields of a hash.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	cmd := s.b().Hgetall().Key(key).Build()
	m, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	return m, nil
}

// HLen returns the number of fields in a hash.
func (s *Store) HLen(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Hlen().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpHLen, Err: err}
	}
	return n, nil
}
