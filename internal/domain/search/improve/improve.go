package improve

import "github.com/kailas-cloud/newsdex/internal/domain/entity"

// Suggestion is the LLM collaborator's answer for a low-signal query.
type Suggestion struct {
	Query      string
	Entities   entity.Map // optional; empty means re-run NER on Query
	Confidence float64
}

// Accepted reports whether the suggestion clears the confidence floor and carries a usable query.
func (s Suggestion) Accepted(floor float64) bool {
	return s.Confidence >= floor && (s.Query != "" || !s.Entities.IsEmpty())
}

// Context is an earlier, similar query the improver may use as a hint.
type Context struct {
	Query      string
	Similarity float64
}
