package article

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

func mustEntity(t *testing.T, c entity.Category, key string, v float64) Entity {
	t.Helper()
	e, err := NewEntity(c, key, v)
	if err != nil {
		t.Fatalf("NewEntity(%q): %v", key, err)
	}
	return e
}

func TestNewEntity_Validation(t *testing.T) {
	tests := []struct {
		name  string
		cat   entity.Category
		key   string
		value float64
		want  error
	}{
		{"ok", entity.People, "John", 0.5, nil},
		{"unknown category", entity.Category("orgs"), "ACME", 0.5, domain.ErrUnknownCategory},
		{"blank key", entity.People, "  ", 0.5, domain.ErrInvalidRequest},
		{"negative", entity.People, "John", -0.1, domain.ErrInvalidThreshold},
		{"above one", entity.People, "John", 1.01, domain.ErrInvalidThreshold},
		{"NaN", entity.People, "John", math.NaN(), domain.ErrInvalidThreshold},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEntity(tc.cat, tc.key, tc.value)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNew_RejectsDuplicateKeys(t *testing.T) {
	list := []Entity{
		mustEntity(t, entity.Locations, "London", 1),
		mustEntity(t, entity.Locations, "LONDON", 0.2),
	}
	_, err := New("u1", map[entity.Category][]Entity{entity.Locations: list}, time.Now())
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New("", nil, time.Now()); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDocument_Weight(t *testing.T) {
	doc, err := New("u1", map[entity.Category][]Entity{
		entity.Locations: {mustEntity(t, entity.Locations, "São Paulo", 0.76)},
	}, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w, ok := doc.Weight(entity.Locations, "sao paulo")
	if !ok || w != 0.76 {
		t.Fatalf("Weight = %v, %v; want 0.76, true", w, ok)
	}
	if _, ok := doc.Weight(entity.People, "sao paulo"); ok {
		t.Fatal("weight must be scoped by category")
	}
	if doc.Len() != 1 {
		t.Fatalf("Len = %d, want 1", doc.Len())
	}
}
