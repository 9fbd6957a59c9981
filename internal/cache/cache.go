// Package cache provides the broker's bounded routing caches: a generic
// Cache[K, V] interface backed by a bounded LRU with explicit negative-hit
// tracking, since the routing hot path needs to remember "looked up,
// confirmed absent" as distinctly as "looked up, found" to avoid
// re-querying the data-model layer on every repeat miss.
package cache

// Result classifies a Get outcome.
type Result int

const (
	Miss     Result = iota // never looked up, or evicted
	Hit                    // present and valid
	Negative               // looked up and confirmed absent
)

// Cache is the generic interface implemented by both routing cache engines
// (LRU and no-op).
type Cache[K comparable, V any] interface {
	// Get retrieves an entry. Result distinguishes Hit from Negative so
	// callers can skip a downstream lookup either way.
	Get(key K) (V, Result)

	// Set stores a found value.
	Set(key K, value V)

	// SetNegative records a confirmed-absent lookup.
	SetNegative(key K)

	// Delete removes one entry regardless of hit/negative state.
	Delete(key K)

	// Clear empties the cache.
	Clear()

	// Len reports the number of entries currently held.
	Len() int
}

type entry[V any] struct {
	value    V
	negative bool
}
