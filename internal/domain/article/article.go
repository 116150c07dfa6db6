package article

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

// Entity is a rectified entity: a distinct value of one category with its
// normalized relevance weight in [0,1].
type Entity struct {
	category entity.Category
	key      string
	norm     string
	value    float64
}

// NewEntity validates and creates a rectified entity.
func NewEntity(c entity.Category, key string, value float64) (Entity, error) {
	if !c.IsValid() {
		return Entity{}, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, c)
	}
	n := entity.NormalizeKey(key)
	if n == "" {
		return Entity{}, fmt.Errorf("entity key is required: %w", domain.ErrInvalidRequest)
	}
	if !(value >= 0 && value <= 1) {
		return Entity{}, fmt.Errorf("entity %q value %g: %w", key, value, domain.ErrInvalidThreshold)
	}
	return Entity{category: c, key: key, norm: n, value: value}, nil
}

// Category returns the entity category.
func (e Entity) Category() entity.Category { return e.category }

// Key returns the surface form of the value (first occurrence in the source).
func (e Entity) Key() string { return e.key }

// Norm returns the normalized matching key.
func (e Entity) Norm() string { return e.norm }

// Value returns the relevance weight.
func (e Entity) Value() float64 { return e.value }

// Document is a rectified document: per category, entities sorted by descending value.
type Document struct {
	url       string
	entities  map[entity.Category][]Entity
	indexedAt time.Time
}

// New creates a Document. Entity slices are copied; their order is kept as given.
func New(url string, entities map[entity.Category][]Entity, indexedAt time.Time) (Document, error) {
	if url == "" {
		return Document{}, fmt.Errorf("document url is required: %w", domain.ErrInvalidRequest)
	}
	cp := make(map[entity.Category][]Entity, len(entities))
	for c, list := range entities {
		if !c.IsValid() {
			return Document{}, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, c)
		}
		seen := make(map[string]struct{}, len(list))
		for _, e := range list {
			if e.category != c {
				return Document{}, fmt.Errorf("entity %q filed under %q: %w", e.key, c, domain.ErrInvalidRequest)
			}
			if _, dup := seen[e.norm]; dup {
				return Document{}, fmt.Errorf("duplicate key %q in %q: %w", e.key, c, domain.ErrInvalidRequest)
			}
			seen[e.norm] = struct{}{}
		}
		if len(list) > 0 {
			cp[c] = append([]Entity(nil), list...)
		}
	}
	return Document{url: url, entities: cp, indexedAt: indexedAt}, nil
}

// Reconstruct restores a Document from storage without validation.
func Reconstruct(url string, entities map[entity.Category][]Entity, indexedAt time.Time) Document {
	return Document{url: url, entities: entities, indexedAt: indexedAt}
}

// ReconstructEntity restores an Entity from storage without validation.
func ReconstructEntity(c entity.Category, key, norm string, value float64) Entity {
	return Entity{category: c, key: key, norm: norm, value: value}
}

// URL returns the unique document identifier.
func (d Document) URL() string { return d.url }

// IndexedAt returns the time the document was rectified.
func (d Document) IndexedAt() time.Time { return d.indexedAt }

// Entities returns the entities of one category, highest value first.
func (d Document) Entities(c entity.Category) []Entity { return d.entities[c] }

// Len returns the number of entities across all categories.
func (d Document) Len() int {
	n := 0
	for _, list := range d.entities {
		n += len(list)
	}
	return n
}

// Weight returns the stored weight for a normalized key, if the document has it.
func (d Document) Weight(c entity.Category, norm string) (float64, bool) {
	for _, e := range d.entities[c] {
		if e.norm == norm {
			return e.value, true
		}
	}
	return 0, false
}
