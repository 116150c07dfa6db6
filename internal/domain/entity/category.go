package entity

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/newsdex/internal/domain"
)

// Category is one of the fixed entity categories.
type Category string

// The closed category set. Order matters: it is the canonical iteration order.
const (
	People    Category = "people"
	Locations Category = "locations"
	Dates     Category = "dates"
	Countries Category = "countries"
	Places    Category = "places"
	Events    Category = "events"
)

var all = []Category{People, Locations, Dates, Countries, Places, Events}

// All returns every category in canonical order.
func All() []Category {
	out := make([]Category, len(all))
	copy(out, all)
	return out
}

// IsValid reports whether c belongs to the closed set.
func (c Category) IsValid() bool {
	switch c {
	case People, Locations, Dates, Countries, Places, Events:
		return true
	default:
		return false
	}
}

func (c Category) String() string { return string(c) }

// ParseCategory resolves a category name. Singular forms ("person", "location") are accepted.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := singular[name]; ok {
		return alias, nil
	}
	c := Category(name)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownCategory, s)
	}
	return c, nil
}

var singular = map[string]Category{
	"person":   People,
	"location": Locations,
	"date":     Dates,
	"country":  Countries,
	"place":    Places,
	"event":    Events,
}

// FromNERLabel maps a conventional NER label (PERSON, GPE, LOC, FAC, DATE, EVENT)
// onto the closed set. ok is false for labels outside it.
func FromNERLabel(label string) (Category, bool) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PERSON", "PER":
		return People, true
	case "GPE":
		return Countries, true
	case "LOC":
		return Locations, true
	case "FAC":
		return Places, true
	case "DATE":
		return Dates, true
	case "EVENT":
		return Events, true
	default:
		return "", false
	}
}
