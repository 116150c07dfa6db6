package rectify

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/kailas-cloud/newsdex/internal/domain"
	"github.com/kailas-cloud/newsdex/internal/domain/corpus"
	"github.com/kailas-cloud/newsdex/internal/domain/entity"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRectifier(t *testing.T, minRel float64, filter bool) *Rectifier {
	t.Helper()
	r, err := New(Options{MinRelevance: minRel, Filter: filter})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r.WithClock(func() time.Time { return fixedNow })
}

func TestNew_InvalidThreshold(t *testing.T) {
	for _, v := range []float64{-0.1, 1.1, math.NaN(), math.Inf(1)} {
		_, err := New(Options{MinRelevance: v, Filter: true})
		if !errors.Is(err, domain.ErrInvalidThreshold) {
			t.Errorf("New(%g) err = %v, want ErrInvalidThreshold", v, err)
		}
	}
}

func TestRectify_LondonParisExample(t *testing.T) {
	stats := corpus.NewStats(10, map[entity.Term]int64{
		{Category: entity.Locations, Key: "london"}: 3,
		{Category: entity.Locations, Key: "paris"}:  9,
	})
	m := entity.Map{entity.Locations: {"London", "London", "Paris"}}

	t.Run("filter on", func(t *testing.T) {
		doc, err := newRectifier(t, 0.3, true).Rectify("u", m, stats)
		if err != nil {
			t.Fatalf("Rectify: %v", err)
		}
		locs := doc.Entities(entity.Locations)
		if len(locs) != 1 {
			t.Fatalf("expected only London to survive, got %d entities", len(locs))
		}
		if locs[0].Key() != "London" || locs[0].Value() != 1.0 {
			t.Errorf("got %s=%v, want London=1.0", locs[0].Key(), locs[0].Value())
		}
	})

	t.Run("filter off", func(t *testing.T) {
		doc, err := newRectifier(t, 0.3, false).Rectify("u", m, stats)
		if err != nil {
			t.Fatalf("Rectify: %v", err)
		}
		locs := doc.Entities(entity.Locations)
		if len(locs) != 2 {
			t.Fatalf("expected 2 entities, got %d", len(locs))
		}
		if locs[0].Key() != "London" || locs[1].Key() != "Paris" {
			t.Errorf("unexpected order %s, %s", locs[0].Key(), locs[1].Key())
		}
		if locs[1].Value() >= 0.3 {
			t.Errorf("Paris = %v, want near 0", locs[1].Value())
		}
	})
}

func TestRectify_SingleValueIsOne(t *testing.T) {
	stats := corpus.NewStats(100, map[entity.Term]int64{
		{Category: entity.People, Key: "john matthews"}: 99,
	})
	doc, err := newRectifier(t, 0.3, true).Rectify("u", entity.Map{
		entity.People: {"John Matthews", "john  MATTHEWS"},
	}, stats)
	if err != nil {
		t.Fatalf("Rectify: %v", err)
	}
	people := doc.Entities(entity.People)
	if len(people) != 1 || people[0].Value() != 1.0 {
		t.Fatalf("expected a single entity at 1.0, got %+v", people)
	}
	if people[0].Key() != "John Matthews" {
		t.Errorf("surface form should be the first occurrence, got %q", people[0].Key())
	}
}

func TestRectify_EqualScoresAllOne(t *testing.T) {
	doc, err := newRectifier(t, 0.3, true).Rectify("u", entity.Map{
		entity.Countries: {"France", "Germany", "Spain"},
	}, corpus.Empty())
	if err != nil {
		t.Fatalf("Rectify: %v", err)
	}
	got := doc.Entities(entity.Countries)
	if len(got) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(got))
	}
	want := []string{"France", "Germany", "Spain"}
	for i, e := range got {
		if e.Value() != 1.0 {
			t.Errorf("%s = %v, want 1.0", e.Key(), e.Value())
		}
		if e.Key() != want[i] {
			t.Errorf("tie order[%d] = %s, want %s", i, e.Key(), want[i])
		}
	}
}

func TestRectify_CategoriesIndependent(t *testing.T) {
	doc, err := newRectifier(t, 0.3, true).Rectify("u", entity.Map{
		entity.People:    {"A", "A", "A", "B"},
		entity.Locations: {"X"},
	}, corpus.Empty())
	if err != nil {
		t.Fatalf("Rectify: %v", err)
	}
	if w, ok := doc.Weight(entity.Locations, "x"); !ok || w != 1.0 {
		t.Errorf("locations X = %v, %v; want 1.0", w, ok)
	}
	if _, ok := doc.Weight(entity.People, "b"); ok {
		t.Error("people B should be filtered (normalized to 0)")
	}
}

func TestRectify_EmptyMap(t *testing.T) {
	doc, err := newRectifier(t, 0.3, true).Rectify("u", entity.Map{}, corpus.Empty())
	if err != nil {
		t.Fatalf("Rectify: %v", err)
	}
	if doc.Len() != 0 {
		t.Errorf("expected no entities, got %d", doc.Len())
	}
	if !doc.IndexedAt().Equal(fixedNow) {
		t.Errorf("IndexedAt = %v, want %v", doc.IndexedAt(), fixedNow)
	}
}

func TestRectify_MissingURL(t *testing.T) {
	_, err := newRectifier(t, 0.3, true).Rectify("", entity.Map{}, corpus.Empty())
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

// Properties: values stay in [0,1], sorted non-increasing, filter honours the
// threshold and disabling it keeps every distinct value.
func TestRectify_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pool := []string{"alpha", "Beta", "gamma", "DELTA", "epsilon", "zeta", "Éta"}

	for iter := 0; iter < 200; iter++ {
		m := entity.Map{}
		df := map[entity.Term]int64{}
		for _, c := range entity.All() {
			n := rng.Intn(8)
			for i := 0; i < n; i++ {
				v := pool[rng.Intn(len(pool))]
				m.Add(c, v)
				df[entity.Term{Category: c, Key: entity.NormalizeKey(v)}] = int64(rng.Intn(50))
			}
		}
		stats := corpus.NewStats(50, df)
		threshold := rng.Float64()

		filtered, err := newRectifier(t, threshold, true).Rectify("u", m, stats)
		if err != nil {
			t.Fatalf("Rectify: %v", err)
		}
		unfiltered, err := newRectifier(t, threshold, false).Rectify("u", m, stats)
		if err != nil {
			t.Fatalf("Rectify: %v", err)
		}

		distinct := map[entity.Category]int{}
		for _, term := range m.Terms() {
			distinct[term.Category]++
		}

		for _, c := range entity.All() {
			list := filtered.Entities(c)
			for i, e := range list {
				if e.Value() < 0 || e.Value() > 1 {
					t.Fatalf("value out of range: %v", e.Value())
				}
				if e.Value() < threshold {
					t.Fatalf("entity below threshold survived: %v < %v", e.Value(), threshold)
				}
				if i > 0 && list[i-1].Value() < e.Value() {
					t.Fatalf("not sorted descending in %s", c)
				}
			}
			if got := len(unfiltered.Entities(c)); got != distinct[c] {
				t.Fatalf("%s: unfiltered kept %d of %d distinct values", c, got, distinct[c])
			}
		}
	}
}
