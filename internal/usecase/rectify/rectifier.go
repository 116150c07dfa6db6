package rectify

import (
	"fmt"
	"sort"
	"time"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/corpus"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

// DefaultMinRelevance is the filter threshold used when none is configured.
const DefaultMinRelevance = 0.3

// Options configures a Rectifier.
type Options struct {
	MinRelevance float64
	Filter       bool
}

// Rectifier turns a raw entity map into a weighted document using TF-IDF
// scores normalized per category. It holds no mutable state.
type Rectifier struct {
	minRelevance float64
	filter       bool
	clock        func() time.Time
}

// New validates options and creates a Rectifier.
func New(opts Options) (*Rectifier, error) {
	if !(opts.MinRelevance >= 0 && opts.MinRelevance <= 1) { // rejects NaN
		return nil, fmt.Errorf("min relevance %g: %w", opts.MinRelevance, domain.ErrInvalidThreshold)
	}
	return &Rectifier{
		minRelevance: opts.MinRelevance,
		filter:       opts.Filter,
		clock:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the indexing timestamp source.
func (r *Rectifier) WithClock(clock func() time.Time) *Rectifier {
	if clock != nil {
		r.clock = clock
	}
	return r
}

// MinRelevance returns the configured filter threshold.
func (r *Rectifier) MinRelevance() float64 { return r.minRelevance }

// FilterEnabled reports whether low-relevance entities are dropped.
func (r *Rectifier) FilterEnabled() bool { return r.filter }

type term struct {
	key   string // surface form of the first occurrence
	norm  string
	tf    int
	order int
	score float64
}

// Rectify scores every distinct value of m against stats. An empty map yields
// a document with no entities.
func (r *Rectifier) Rectify(url string, m entity.Map, stats corpus.Stats) (article.Document, error) {
	out := make(map[entity.Category][]article.Entity)

	for _, c := range entity.All() {
		terms := collect(m[c])
		if len(terms) == 0 {
			continue
		}

		for i := range terms {
			idf := stats.IDF(entity.Term{Category: c, Key: terms[i].norm})
			terms[i].score = float64(terms[i].tf) * idf
		}
		normalize(terms)

		kept := terms[:0]
		for _, t := range terms {
			if r.filter && t.score < r.minRelevance {
				continue
			}
			kept = append(kept, t)
		}

		sort.SliceStable(kept, func(i, j int) bool {
			if kept[i].score != kept[j].score {
				return kept[i].score > kept[j].score
			}
			return kept[i].order < kept[j].order
		})

		list := make([]article.Entity, 0, len(kept))
		for _, t := range kept {
			e, err := article.NewEntity(c, t.key, t.score)
			if err != nil {
				return article.Document{}, fmt.Errorf("rectify %s %q: %w", c, t.key, err)
			}
			list = append(list, e)
		}
		if len(list) > 0 {
			out[c] = list
		}
	}

	return article.New(url, out, r.clock())
}

// collect deduplicates values by normalized key, counting occurrences.
func collect(values []string) []term {
	index := make(map[string]int, len(values))
	var terms []term
	for _, v := range values {
		n := entity.NormalizeKey(v)
		if n == "" {
			continue
		}
		if i, ok := index[n]; ok {
			terms[i].tf++
			continue
		}
		index[n] = len(terms)
		terms = append(terms, term{key: v, norm: n, tf: 1, order: len(terms)})
	}
	return terms
}

// normalize min-max scales scores to [0,1]. A single value, or values that all
// score the same, normalize to 1.
func normalize(terms []term) {
	lo, hi := terms[0].score, terms[0].score
	for _, t := range terms[1:] {
		lo = min(lo, t.score)
		hi = max(hi, t.score)
	}
	span := hi - lo
	for i := range terms {
		if span == 0 {
			terms[i].score = 1
			continue
		}
		terms[i].score = min(1, max(0, (terms[i].score-lo)/span))
	}
}
