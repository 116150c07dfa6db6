package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/newsdex/internal/db"
)

// EvalInt runs a Lua script that returns an integer.
func (s *Store) EvalInt(ctx context.Context, sc *db.Script, keys, args []string) (int64, error) {
	n, err := s.lua(sc).Exec(ctx, s.client, keys, args).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpEval, Err: fmt.Errorf("%s: %w", sc.Name, err)}
	}
	return n, nil
}

// EvalInts runs a Lua script that returns an array of integers.
func (s *Store) EvalInts(ctx context.Context, sc *db.Script, keys, args []string) ([]int64, error) {
	msgs, err := s.lua(sc).Exec(ctx, s.client, keys, args).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpEval, Err: fmt.Errorf("%s: %w", sc.Name, err)}
	}
	out := make([]int64, len(msgs))
	for i := range msgs {
		v, err := msgs[i].AsInt64()
		if err != nil {
			return nil, &db.Error{Op: db.OpEval, Err: fmt.Errorf("%s: reply %d: %w", sc.Name, i, err)}
		}
		out[i] = v
	}
	return out, nil
}

// lua returns the cached rueidis wrapper; it issues EVALSHA and falls back to EVAL on NOSCRIPT.
func (s *Store) lua(sc *db.Script) *rueidis.Lua {
	if v, ok := s.scripts.Load(sc); ok {
		return v.(*rueidis.Lua)
	}
	var l *rueidis.Lua
	if sc.ReadOnly {
		l = rueidis.NewLuaScriptReadOnly(sc.Source)
	} else {
		l = rueidis.NewLuaScript(sc.Source)
	}
	v, _ := s.scripts.LoadOrStore(sc, l)
	return v.(*rueidis.Lua)
}
