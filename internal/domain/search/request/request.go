package request

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultLimit   = 10
	MaxLimit       = 100
)

// Thresholds holds the minimum document weight a matched value must reach,
// one global value with optional per-category overrides.
type Thresholds struct {
	def       float64
	overrides map[entity.Category]float64
}

// NewThresholds validates thresholds. Every value must be within [0,1].
func NewThresholds(def float64, overrides map[entity.Category]float64) (Thresholds, error) {
	if !(def >= 0 && def <= 1) { // rejects NaN
		return Thresholds{}, fmt.Errorf("threshold %g: %w", def, domain.ErrInvalidThreshold)
	}
	cp := make(map[entity.Category]float64, len(overrides))
	for c, v := range overrides {
		if !c.IsValid() {
			return Thresholds{}, fmt.Errorf("threshold for %q: %w", c, domain.ErrUnknownCategory)
		}
		if !(v >= 0 && v <= 1) {
			return Thresholds{}, fmt.Errorf("threshold %g for %q: %w", v, c, domain.ErrInvalidThreshold)
		}
		cp[c] = v
	}
	return Thresholds{def: def, overrides: cp}, nil
}

// For returns the threshold that applies to a category.
func (t Thresholds) For(c entity.Category) float64 {
	if v, ok := t.overrides[c]; ok {
		return v
	}
	return t.def
}

// Default returns the global threshold.
func (t Thresholds) Default() float64 { return t.def }

// Fingerprint is a stable string form used to scope cached results.
func (t Thresholds) Fingerprint() string {
	parts := []string{strconv.FormatFloat(t.def, 'g', -1, 64)}
	cats := make([]string, 0, len(t.overrides))
	for c := range t.overrides {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		parts = append(parts, c+"="+strconv.FormatFloat(t.overrides[entity.Category(c)], 'g', -1, 64))
	}
	return strings.Join(parts, ",")
}

// Request is a validated search query.
type Request struct {
	text       string
	entities   entity.Map
	thresholds Thresholds
	limit      int
	since      *time.Time
}

// New validates search parameters. Either text or entities must be provided;
// entities, when present, bypass the NER collaborator. limit<=0 selects DefaultLimit.
func New(text string, entities entity.Map, thresholds Thresholds, limit int, since *time.Time) (Request, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(entities) == 0 {
		return Request{}, fmt.Errorf("query is required: %w", domain.ErrInvalidRequest)
	}
	if len(text) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars): %w", MaxQueryLength, domain.ErrInvalidRequest)
	}
	if limit < 0 {
		return Request{}, fmt.Errorf("limit must not be negative: %w", domain.ErrInvalidRequest)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		return Request{}, fmt.Errorf("limit %d exceeds %d: %w", limit, MaxLimit, domain.ErrInvalidRequest)
	}
	for c := range entities {
		if !c.IsValid() {
			return Request{}, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, c)
		}
	}
	return Request{
		text:       text,
		entities:   entities,
		thresholds: thresholds,
		limit:      limit,
		since:      since,
	}, nil
}

// Text returns the raw query text.
func (r *Request) Text() string { return r.text }

// Entities returns caller-supplied entities, nil when NER should run.
func (r *Request) Entities() entity.Map { return r.entities }

// Thresholds returns the per-category relevance thresholds.
func (r *Request) Thresholds() Thresholds { return r.thresholds }

// Limit returns the maximum results to return.
func (r *Request) Limit() int { return r.limit }

// Since returns the optional indexed_at lower bound.
func (r *Request) Since() *time.Time { return r.since }

// Scope fingerprints everything besides text and limit that shapes the result set.
func (r *Request) Scope() string {
	s := "t=" + r.thresholds.Fingerprint()
	if r.since != nil {
		s += ";since=" + strconv.FormatInt(r.since.Unix(), 10)
	}
	return s
}
