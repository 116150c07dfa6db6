package result

import (
	"time"

	"github.com/kailas-cloud/newsdex/internal/domain/article"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

// Match is one query value found in a document at or above its threshold.
type Match struct {
	Category entity.Category
	Key      string
	Weight   float64
}

// Result is a single ranked document.
type Result struct {
	doc     article.Document
	score   float64
	matches []Match
}

// New creates a search result.
func New(doc article.Document, score float64, matches []Match) Result {
	return Result{doc: doc, score: score, matches: matches}
}

// URL returns the document identifier.
func (r *Result) URL() string { return r.doc.URL() }

// Score returns the aggregate relevance score.
func (r *Result) Score() float64 { return r.score }

// Matches returns the contributing matches.
func (r *Result) Matches() []Match { return r.matches }

// IndexedAt returns the document indexing time.
func (r *Result) IndexedAt() time.Time { return r.doc.IndexedAt() }

// Document returns the ranked document.
func (r *Result) Document() article.Document { return r.doc }
