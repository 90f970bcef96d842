// Package dedup suppresses repeat sightings of a plate within a time window.
//
// Acceptance is checked against two tiers: a fast in-memory map of last-accepted
// timestamps and, on a miss there, the persisted store. The store is
// authoritative; the map only short-circuits the common case of a vehicle
// sitting in front of a camera.
package dedup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SweepHorizon bounds Tier 1 memory: entries older than this are dropped by
// the opportunistic sweep. It is deliberately independent of the configurable
// dedup window; a window larger than the horizon only means Tier 1 can evict
// an entry before its window expires and the store gets consulted again.
// The accept/reject outcome is unaffected because the store is authoritative
// on a Tier 1 miss.
const SweepHorizon = 60 * time.Second

// Store is the durable Tier 2 consulted on a Tier 1 miss.
type Store interface {
	// ExistsWithin reports whether a record of (code, source) with a
	// timestamp after windowStart exists.
	ExistsWithin(ctx context.Context, code, source string, windowStart time.Time) (bool, error)
	// Insert persists an accepted sighting.
	Insert(ctx context.Context, code, source string, ts time.Time, imageRef string) error
}

type key struct {
	code   string
	source string
}

// Cache is the two-tier deduplication cache. All methods are safe for
// concurrent use; the capture loop and the HTTP handlers share one instance.
type Cache struct {
	mu      sync.Mutex
	entries map[key]time.Time

	store Store
	log   zerolog.Logger

	// clearedAt bounds Tier 2 lookups: records persisted at or before the
	// last Clear never veto, so an operator reset takes effect immediately
	// for every plate instead of being undone by the records the preceding
	// accepts just persisted.
	clearedAt time.Time

	// now is replaceable for tests
	now func() time.Time
}

// New creates a Cache backed by the given store.
func New(store Store, log zerolog.Logger) *Cache {
	return &Cache{
		entries: make(map[key]time.Time),
		store:   store,
		log:     log,
		now:     time.Now,
	}
}

// ShouldAccept decides whether a sighting of code from source should be
// recorded, and records it when accepted. imageRef is stored alongside the
// record for accepted sightings.
func (c *Cache) ShouldAccept(ctx context.Context, code, source string, window time.Duration, imageRef string) bool {
	if code == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)

	k := key{code: code, source: source}

	// Tier 1
	if last, ok := c.entries[k]; ok {
		if now.Sub(last) < window {
			c.log.Debug().Str("plate", code).Str("source", source).
				Dur("since_last", now.Sub(last)).Msg("duplicate suppressed (cache)")
			return false
		}
	} else {
		// Tier 2: only consulted when Tier 1 has no opinion. Records from
		// before the last Clear are forgiven.
		windowStart := now.Add(-window)
		if c.clearedAt.After(windowStart) {
			windowStart = c.clearedAt
		}
		found, err := c.store.ExistsWithin(ctx, code, source, windowStart)
		if err != nil {
			// Store read failure: treat as a miss, the sighting is accepted.
			c.log.Error().Err(err).Str("plate", code).Msg("dedup store lookup failed")
		} else if found {
			// Backfill Tier 1 so the next check is fast.
			c.entries[k] = now
			c.log.Debug().Str("plate", code).Str("source", source).
				Msg("duplicate suppressed (store)")
			return false
		}
	}

	// Accept: persist, then remember. A failed insert is logged and the
	// acceptance stands; under-persisting one record is acceptable here.
	if err := c.store.Insert(ctx, code, source, now, imageRef); err != nil {
		c.log.Error().Err(err).Str("plate", code).Msg("failed to persist plate record")
	}
	c.entries[k] = now
	return true
}

// Sweep drops Tier 1 entries older than the sweep horizon. It runs
// opportunistically on every ShouldAccept and may also be driven by an
// external ticker.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(c.now())
}

func (c *Cache) sweepLocked(now time.Time) {
	for k, ts := range c.entries {
		if now.Sub(ts) > SweepHorizon {
			delete(c.entries, k)
		}
	}
}

// Clear empties Tier 1 and stops Tier 2 from vetoing on records persisted
// before the clear. The store itself is untouched, so the next sighting of
// any recently-seen plate is accepted even inside its window; operators use
// this to force a re-read. That sighting persists a fresh record, which may
// leave a duplicate row behind.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[key]time.Time)
	c.clearedAt = c.now()
	c.log.Info().Msg("dedup cache cleared")
}

// Stats describes the current Tier 1 contents.
type Stats struct {
	Size int      `json:"cache_size"`
	Keys []string `json:"cached_plates"`
}

// Stats returns the Tier 1 size and keys after sweeping expired entries.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(c.now())

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k.code+"_"+k.source)
	}
	sort.Strings(keys)
	return Stats{Size: len(keys), Keys: keys}
}
