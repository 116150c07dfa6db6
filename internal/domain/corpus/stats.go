package corpus

import (
	"math"

	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

// Stats is a read snapshot of corpus statistics: total document count N and
// document frequency per (category, normalized key).
type Stats struct {
	total int64
	df    map[entity.Term]int64
}

// NewStats creates a snapshot. Negative counts are clamped to zero.
func NewStats(total int64, df map[entity.Term]int64) Stats {
	cp := make(map[entity.Term]int64, len(df))
	for t, n := range df {
		cp[t] = max(0, n)
	}
	return Stats{total: max(0, total), df: cp}
}

// Empty returns statistics for an empty corpus.
func Empty() Stats { return Stats{} }

// Total returns N.
func (s Stats) Total() int64 { return s.total }

// DF returns the document frequency of a term; unknown terms have df 0.
func (s Stats) DF(t entity.Term) int64 { return s.df[t] }

// IDF returns log((1+N)/(1+df)) + 1. It is always >= 1 when df <= N.
func (s Stats) IDF(t entity.Term) float64 {
	return math.Log(float64(1+s.total)/float64(1+s.DF(t))) + 1
}

// TermCount is a term with its document frequency.
type TermCount struct {
	Term entity.Term
	DF   int64
}
