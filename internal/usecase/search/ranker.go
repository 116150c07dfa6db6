package search

import (
	"sort"

	"github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/search/plan"
	"github.com/kailas-cloud/newsdex/internal/domain/search/result"
)

// rank scores every candidate against the plan's clauses and returns at most
// limit results.
//
// A document's score is the sum of its stored weights for the query values it
// holds at or above the clause threshold. Unmatched values add nothing, so
// false-positive candidates score 0 and sort last instead of being dropped.
// Order: score desc, indexed_at desc, url asc.
func rank(clauses []plan.Clause, docs []article.Document, limit int) []result.Result {
	results := make([]result.Result, 0, len(docs))
	for _, doc := range docs {
		var score float64
		var matches []result.Match
		for _, cl := range clauses {
			for _, key := range cl.Keys {
				w, ok := doc.Weight(cl.Category, key)
				if !ok || w < cl.MinWeight {
					continue
				}
				score += w
				matches = append(matches, result.Match{Category: cl.Category, Key: key, Weight: w})
			}
		}
		results = append(results, result.New(doc, score, matches))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score() != results[j].Score() {
			return results[i].Score() > results[j].Score()
		}
		ti, tj := results[i].IndexedAt(), results[j].IndexedAt()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return results[i].URL() < results[j].URL()
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
