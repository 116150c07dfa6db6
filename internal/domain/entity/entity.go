package entity

import "strings"

// Map holds raw extracted values per category, in extraction order.
// Duplicates are expected: occurrence count is the term frequency.
type Map map[Category][]string

// FromRaw builds a Map from string-keyed extractor output.
// Unknown categories are ignored and returned separately so callers can log them.
func FromRaw(raw map[string][]string) (m Map, ignored []string) {
	m = make(Map, len(raw))
	for name, values := range raw {
		c, err := ParseCategory(name)
		if err != nil {
			ignored = append(ignored, name)
			continue
		}
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				m[c] = append(m[c], v)
			}
		}
	}
	return m, ignored
}

// Add appends a raw value to the category. Blank values are dropped.
func (m Map) Add(c Category, value string) {
	if value = strings.TrimSpace(value); value != "" {
		m[c] = append(m[c], value)
	}
}

// IsEmpty reports whether no category holds a usable value.
func (m Map) IsEmpty() bool {
	for c, values := range m {
		if !c.IsValid() {
			continue
		}
		for _, v := range values {
			if NormalizeKey(v) != "" {
				return false
			}
		}
	}
	return true
}

// Count returns the number of raw values across all categories.
func (m Map) Count() int {
	n := 0
	for _, values := range m {
		n += len(values)
	}
	return n
}

// Term identifies a value within a category for corpus statistics.
type Term struct {
	Category Category
	Key      string // normalized
}

// Terms returns the distinct normalized terms of the map in canonical category
// order, then first-occurrence order.
func (m Map) Terms() []Term {
	var out []Term
	for _, c := range all {
		seen := make(map[string]struct{})
		for _, v := range m[c] {
			k := NormalizeKey(v)
			if k == "" {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, Term{Category: c, Key: k})
		}
	}
	return out
}
