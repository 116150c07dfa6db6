package plan

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
	"github.com/kailas-cloud/newsdex/internal/domain/search/filter"
	"github.com/kailas-cloud/newsdex/internal/domain/search/request"
)

// IndexedAtField is the numeric storage field holding the indexing time (unix seconds).
const IndexedAtField = "indexed_at"

// Clause accepts a document when it holds one of Keys in Category with weight >= MinWeight.
type Clause struct {
	Category  entity.Category
	Keys      []string // normalized, distinct, first-occurrence order
	MinWeight float64
	Required  bool
}

// Plan is the structured form of a query: per-category clauses for ranking and
// a storage pre-filter that over-selects candidates.
type Plan struct {
	clauses []Clause
	filter  filter.Expression
}

// Clauses returns the clauses in canonical category order.
func (p Plan) Clauses() []Clause { return p.clauses }

// Filter returns the storage pre-filter.
func (p Plan) Filter() filter.Expression { return p.filter }

// Build converts a query entity map into a Plan.
//
// Categories present in the query and listed in required are ANDed; all other
// categories are ORed. When any category is required, optional categories do not
// constrain candidates and only contribute to ranking. Weight thresholds are not
// pushed to storage: the ranker enforces them.
//
// An entity map without usable values yields domain.ErrLowSignal.
func Build(
	entities entity.Map, th request.Thresholds, required []entity.Category, since *time.Time,
) (Plan, error) {
	req := make(map[entity.Category]bool, len(required))
	for _, c := range required {
		if !c.IsValid() {
			return Plan{}, fmt.Errorf("required %w: %q", domain.ErrUnknownCategory, c)
		}
		req[c] = true
	}

	var clauses []Clause
	for _, c := range entity.All() {
		keys := distinctKeys(entities[c])
		if len(keys) == 0 {
			continue
		}
		clauses = append(clauses, Clause{
			Category:  c,
			Keys:      keys,
			MinWeight: th.For(c),
			Required:  req[c],
		})
	}
	if len(clauses) == 0 {
		return Plan{}, domain.ErrLowSignal
	}

	var must, should []filter.Condition
	for _, cl := range clauses {
		cond, err := filter.NewMatchAny(string(cl.Category), cl.Keys...)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
		if cl.Required {
			must = append(must, cond)
		} else {
			should = append(should, cond)
		}
	}
	if len(must) > 0 {
		should = nil
	}
	if since != nil {
		cond, err := sinceCondition(*since)
		if err != nil {
			return Plan{}, err
		}
		must = append(must, cond)
	}

	expr, err := filter.NewExpression(must, should)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return Plan{clauses: clauses, filter: expr}, nil
}

// Browse returns a filter matching every document, optionally bounded by since.
// Used for the low-signal fallback.
func Browse(since *time.Time) (filter.Expression, error) {
	if since == nil {
		return filter.Expression{}, nil
	}
	cond, err := sinceCondition(*since)
	if err != nil {
		return filter.Expression{}, err
	}
	return filter.NewExpression([]filter.Condition{cond}, nil)
}

func sinceCondition(since time.Time) (filter.Condition, error) {
	lo := float64(since.Unix())
	r, err := filter.NewRangeFilter(&lo, nil)
	if err != nil {
		return filter.Condition{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return filter.NewRange(IndexedAtField, r)
}

func distinctKeys(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		k := entity.NormalizeKey(v)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
