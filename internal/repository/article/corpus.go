package article

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/newsdex/internal/db"
	domart "github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/corpus"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

// All scripts share the key layout:
//
//	KEYS[1] df hash, KEYS[2] document count, KEYS[3] the url's term set, KEYS[4] the document.

// snapshotScript reads N and df for the given term fields, excluding the
// url's own previous contribution so that re-aggregation sees the corpus
// without itself.
var snapshotScript = &db.Script{
	Name:     "corpus_snapshot",
	ReadOnly: true,
	Source: `
local n = tonumber(redis.call('GET', KEYS[2]) or '0')
local own = redis.call('EXISTS', KEYS[4]) == 1
if own then n = n - 1 end
if n < 0 then n = 0 end
local out = {n}
for i, f in ipairs(ARGV) do
  local df = tonumber(redis.call('HGET', KEYS[1], f) or '0')
  if own and redis.call('SISMEMBER', KEYS[3], f) == 1 then df = df - 1 end
  if df < 0 then df = 0 end
  out[i + 1] = df
end
return out
`,
}

// commitScript writes the document and swaps its term contribution in one
// step. JSON.SET runs first so a rejected document leaves statistics untouched.
// ARGV[1] is the document JSON, ARGV[2..] are the term fields. Returns 1 when
// the document is new.
var commitScript = &db.Script{
	Name: "corpus_commit",
	Source: `
local created = redis.call('EXISTS', KEYS[4]) == 0
redis.call('JSON.SET', KEYS[4], '$', ARGV[1])
for _, f in ipairs(redis.call('SMEMBERS', KEYS[3])) do
  if redis.call('HINCRBY', KEYS[1], f, -1) <= 0 then
    redis.call('HDEL', KEYS[1], f)
  end
end
redis.call('DEL', KEYS[3])
for i = 2, #ARGV do
  if redis.call('SADD', KEYS[3], ARGV[i]) == 1 then
    redis.call('HINCRBY', KEYS[1], ARGV[i], 1)
  end
end
if created then
  redis.call('INCR', KEYS[2])
  return 1
end
return 0
`,
}

// retractScript deletes the document and its term contribution. Returns 0
// when the document does not exist.
var retractScript = &db.Script{
	Name: "corpus_retract",
	Source: `
if redis.call('EXISTS', KEYS[4]) == 0 then
  return 0
end
for _, f in ipairs(redis.call('SMEMBERS', KEYS[3])) do
  if redis.call('HINCRBY', KEYS[1], f, -1) <= 0 then
    redis.call('HDEL', KEYS[1], f)
  end
end
redis.call('DEL', KEYS[3], KEYS[4])
if redis.call('DECR', KEYS[2]) < 0 then
  redis.call('SET', KEYS[2], 0)
end
return 1
`,
}

func (r *Repo) scriptKeys(url string) []string {
	return []string{r.dfKey(), r.totalKey(), r.termsKey(url), r.docKey(url)}
}

// Snapshot returns corpus statistics for terms as seen by url: N and df
// exclude url's currently committed version, if any.
func (r *Repo) Snapshot(ctx context.Context, url string, terms []entity.Term) (corpus.Stats, error) {
	fields := termFields(terms)
	reply, err := r.store.EvalInts(ctx, snapshotScript, r.scriptKeys(url), fields)
	if err != nil {
		return corpus.Stats{}, fmt.Errorf("corpus snapshot: %w", err)
	}
	if len(reply) != len(fields)+1 {
		return corpus.Stats{}, fmt.Errorf("corpus snapshot: got %d values for %d terms", len(reply), len(fields))
	}

	df := make(map[entity.Term]int64, len(fields))
	for i, f := range fields {
		cat, key, _ := strings.Cut(f, "\x1f")
		df[entity.Term{Category: entity.Category(cat), Key: key}] = reply[i+1]
	}
	return corpus.NewStats(reply[0], df), nil
}

// Commit persists doc and replaces url's term contribution with terms in one
// atomic step. Returns true when the document did not exist before.
func (r *Repo) Commit(ctx context.Context, doc *domart.Document, terms []entity.Term) (bool, error) {
	data, err := json.Marshal(buildJSONDoc(doc))
	if err != nil {
		return false, fmt.Errorf("marshal document: %w", err)
	}

	fields := termFields(terms)
	args := make([]string, 0, 1+len(fields))
	args = append(args, string(data))
	args = append(args, fields...)

	created, err := r.store.EvalInt(ctx, commitScript, r.scriptKeys(doc.URL()), args)
	if err != nil {
		return false, fmt.Errorf("corpus commit %s: %w", doc.URL(), err)
	}
	return created == 1, nil
}

// Retract deletes url's document and its term contribution. Returns false
// when nothing was stored under url.
func (r *Repo) Retract(ctx context.Context, url string) (bool, error) {
	n, err := r.store.EvalInt(ctx, retractScript, r.scriptKeys(url), nil)
	if err != nil {
		return false, fmt.Errorf("corpus retract %s: %w", url, err)
	}
	return n == 1, nil
}

// TopTerms returns up to limit terms with the highest document frequency,
// ties broken by category then key.
func (r *Repo) TopTerms(ctx context.Context, limit int) ([]corpus.TermCount, error) {
	m, err := r.store.HGetAll(ctx, r.dfKey())
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", r.dfKey(), err)
	}

	out := make([]corpus.TermCount, 0, len(m))
	for f, v := range m {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		cat, key, ok := strings.Cut(f, "\x1f")
		if !ok {
			continue
		}
		out = append(out, corpus.TermCount{Term: entity.Term{Category: entity.Category(cat), Key: key}, DF: n})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DF != out[j].DF {
			return out[i].DF > out[j].DF
		}
		if out[i].Term.Category != out[j].Term.Category {
			return out[i].Term.Category < out[j].Term.Category
		}
		return out[i].Term.Key < out[j].Term.Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
