package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records   []record
	existsErr error
	insertErr error
}

type record struct {
	code, source string
	ts           time.Time
}

func (s *fakeStore) ExistsWithin(_ context.Context, code, source string, windowStart time.Time) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	for _, r := range s.records {
		if r.code == code && r.source == source && r.ts.After(windowStart) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) Insert(_ context.Context, code, source string, ts time.Time, _ string) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.records = append(s.records, record{code: code, source: source, ts: ts})
	return nil
}

func newTestCache(store Store) (*Cache, *time.Time) {
	c := New(store, zerolog.Nop())
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestShouldAccept_WindowSuppression(t *testing.T) {
	store := &fakeStore{}
	c, now := newTestCache(store)
	ctx := context.Background()
	window := 30 * time.Second

	require.True(t, c.ShouldAccept(ctx, "ABC-123", "webcam", window, ""), "first sighting accepted")

	*now = now.Add(5 * time.Second)
	require.False(t, c.ShouldAccept(ctx, "ABC-123", "webcam", window, ""), "repeat inside window rejected")

	*now = now.Add(31 * time.Second)
	require.True(t, c.ShouldAccept(ctx, "ABC-123", "webcam", window, ""), "sighting after window accepted")

	require.Len(t, store.records, 2)
}

func TestShouldAccept_PerSourceKeys(t *testing.T) {
	c, _ := newTestCache(&fakeStore{})
	ctx := context.Background()
	window := 30 * time.Second

	require.True(t, c.ShouldAccept(ctx, "ABC-123", "cam-a", window, ""))
	require.True(t, c.ShouldAccept(ctx, "ABC-123", "cam-b", window, ""), "same plate on another source is distinct")
	require.False(t, c.ShouldAccept(ctx, "ABC-123", "cam-a", window, ""))
}

func TestShouldAccept_StoreFallback(t *testing.T) {
	// The store already holds a recent record but Tier 1 is empty, as after
	// a process restart.
	store := &fakeStore{}
	c, now := newTestCache(store)
	ctx := context.Background()
	store.records = append(store.records, record{code: "XYZ-789", source: "webcam", ts: now.Add(-10 * time.Second)})

	require.False(t, c.ShouldAccept(ctx, "XYZ-789", "webcam", 30*time.Second, ""), "store hit rejects")

	// Tier 1 got backfilled: a second check rejects without another insert.
	require.False(t, c.ShouldAccept(ctx, "XYZ-789", "webcam", 30*time.Second, ""))
	require.Len(t, store.records, 1)

	stats := c.Stats()
	require.Equal(t, 1, stats.Size)
	require.Equal(t, []string{"XYZ-789_webcam"}, stats.Keys)
}

func TestShouldAccept_StoreErrorsAreNotFatal(t *testing.T) {
	store := &fakeStore{existsErr: errors.New("disk on fire")}
	c, _ := newTestCache(store)
	ctx := context.Background()

	// Lookup failure is treated as a miss.
	require.True(t, c.ShouldAccept(ctx, "ABC-123", "webcam", 30*time.Second, ""))

	// Insert failure does not flip the acceptance either.
	store2 := &fakeStore{insertErr: errors.New("disk still on fire")}
	c2, _ := newTestCache(store2)
	require.True(t, c2.ShouldAccept(ctx, "ABC-123", "webcam", 30*time.Second, ""))
}

func TestShouldAccept_EmptyCode(t *testing.T) {
	store := &fakeStore{}
	c, _ := newTestCache(store)
	require.False(t, c.ShouldAccept(context.Background(), "", "webcam", 30*time.Second, ""))
	require.Empty(t, store.records)
}

func TestClear_ReacceptsWithinWindow(t *testing.T) {
	store := &fakeStore{}
	c, now := newTestCache(store)
	ctx := context.Background()
	window := 30 * time.Second

	require.True(t, c.ShouldAccept(ctx, "ABC-123", "webcam", window, ""))
	require.True(t, c.ShouldAccept(ctx, "DEF-456", "webcam", window, ""))
	*now = now.Add(2 * time.Second)
	require.False(t, c.ShouldAccept(ctx, "ABC-123", "webcam", window, ""))

	c.Clear()
	require.Equal(t, 0, c.Stats().Size)

	// The store still holds the recent inserts, but records persisted before
	// the clear no longer veto. Every cleared plate re-accepts, not just the
	// first one checked.
	*now = now.Add(time.Second)
	require.True(t, c.ShouldAccept(ctx, "ABC-123", "webcam", window, ""), "first plate accepted after clear")
	require.True(t, c.ShouldAccept(ctx, "DEF-456", "webcam", window, ""), "second plate accepted after clear")

	// A record persisted after the clear still vetoes through Tier 2.
	store.records = append(store.records, record{code: "GHI-789", source: "webcam", ts: *now})
	*now = now.Add(time.Second)
	require.False(t, c.ShouldAccept(ctx, "GHI-789", "webcam", window, ""))
}

func TestSweep_DropsExpiredEntries(t *testing.T) {
	store := &fakeStore{}
	c, now := newTestCache(store)
	ctx := context.Background()

	require.True(t, c.ShouldAccept(ctx, "ABC-123", "webcam", 30*time.Second, ""))
	require.Equal(t, 1, c.Stats().Size)

	*now = now.Add(SweepHorizon + time.Second)
	c.Sweep()

	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()
	require.Equal(t, 0, size, "entry older than the horizon swept")
}
