package keywords

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudflare/ahocorasick"
)

// Store is the global learned vocabulary: keyword -> weight in [0, 1].
// Weights only ever grow (max-merge), so the store remembers the best
// evidence seen for each keyword rather than a diluted running average.
//
// Writes are serialized behind a mutex; readers work against an immutable
// Snapshot and never block the writer.
type Store struct {
	mu      sync.Mutex
	weights map[string]float64

	// snapshot caches the last built view; invalidated whenever a
	// weight actually changes so no-op merges keep the matcher.
	snapshot *Snapshot
}

func NewStore() *Store {
	return &Store{weights: make(map[string]float64)}
}

// Learn merges candidate keywords with the given contribution. A keyword's
// weight changes only when the contribution exceeds what is already
// stored. Contributions are clamped to [0, 1].
func (s *Store) Learn(candidates []string, contribution float64) {
	if contribution <= 0 || len(candidates) == 0 {
		return
	}
	if contribution > 1 {
		contribution = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kw := range candidates {
		if kw == "" {
			continue
		}
		if contribution > s.weights[kw] {
			s.weights[kw] = contribution
			s.snapshot = nil
		}
	}
}

// Weight returns the stored weight for a keyword, 0 when unknown.
func (s *Store) Weight(keyword string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weights[keyword]
}

// Len returns the vocabulary size.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.weights)
}

// Export copies the full keyword->weight mapping for persistence.
func (s *Store) Export() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

// Merge folds a persisted mapping back into the store under the same
// max-merge rule, so reloading state is idempotent and commutative.
func (s *Store) Merge(weights map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range weights {
		if v < 0 {
			continue
		}
		if v > 1 {
			v = 1
		}
		if v > s.weights[k] {
			s.weights[k] = v
			s.snapshot = nil
		}
	}
}

// Snapshot is a frozen view of the store used on the scoring read path.
// Later Learn calls do not affect an existing snapshot.
type Snapshot struct {
	keys    []string
	weights map[string]float64
	matcher *ahocorasick.Matcher
}

// Snapshot returns an immutable view with a multi-pattern matcher over
// the current vocabulary. The view is cached between mutations, so
// repeated calls without an intervening Learn or Merge do not rebuild
// the matcher.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil {
		return s.snapshot
	}

	keys := make([]string, 0, len(s.weights))
	weights := make(map[string]float64, len(s.weights))
	for k, v := range s.weights {
		keys = append(keys, k)
		weights[k] = v
	}
	sort.Strings(keys)

	s.snapshot = &Snapshot{
		keys:    keys,
		weights: weights,
		matcher: ahocorasick.NewStringMatcher(keys),
	}
	return s.snapshot
}

// Match returns the stored keywords found in text whose weight is at
// least floor, sorted by descending weight. Matching is case-insensitive
// substring search; it annotates why an item matched and never alters its
// similarity score.
func (sn *Snapshot) Match(text string, floor float64) []string {
	if len(sn.keys) == 0 || text == "" {
		return nil
	}

	hits := sn.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))
	if len(hits) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(hits))
	var matched []string
	for _, idx := range hits {
		kw := sn.keys[idx]
		if seen[kw] || sn.weights[kw] < floor {
			continue
		}
		seen[kw] = true
		matched = append(matched, kw)
	}

	sort.Slice(matched, func(i, j int) bool {
		if sn.weights[matched[i]] != sn.weights[matched[j]] {
			return sn.weights[matched[i]] > sn.weights[matched[j]]
		}
		return matched[i] < matched[j]
	})
	return matched
}

// Len returns the snapshot vocabulary size.
func (sn *Snapshot) Len() int { return len(sn.keys) }

// RecencyFactor discounts keyword evidence from old items. Fresh items
// contribute at full strength, items at or beyond maxAgeDays at half
// strength; the factor stays within [0.5, 1]. The caller supplies now so
// contributions are reproducible under an injected clock.
func RecencyFactor(createdAt, now time.Time, maxAgeDays int) float64 {
	if maxAgeDays <= 0 {
		return 1
	}
	age := now.Sub(createdAt)
	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour
	if age <= 0 {
		return 1
	}
	if age > maxAge {
		age = maxAge
	}
	return 1 - float64(age)/(2*float64(maxAge))
}
