package cache

import "time"

// Hit is one cached result row.
type Hit struct {
	URL   string
	Score float64
}

// Entry is a cached answer to a query, keyed by the query's embedding.
type Entry struct {
	ID        string
	Query     string
	Embedding []float32
	Hits      []Hit
	// Limit is the result limit the hits were computed for.
	Limit int
	// Scope fingerprints every request parameter besides the text that shapes results.
	Scope     string
	CreatedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is logically dead at now.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) >= e.TTL
}

// Covers reports whether the entry can answer a request with the given scope and limit.
func (e Entry) Covers(scope string, limit int) bool {
	if e.Scope != scope {
		return false
	}
	// Fewer hits than the stored limit means the result set was exhaustive.
	return e.Limit >= limit || len(e.Hits) < e.Limit
}
