package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, "ABC-123", "webcam", base, "a.jpg"))
	require.NoError(t, s.Insert(ctx, "DEF-456", "webcam", base.Add(time.Minute), ""))
	require.NoError(t, s.Insert(ctx, "123ABC", "ip_cam", base.Add(2*time.Minute), "c.jpg"))

	records, err := s.Latest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "123ABC", records[0].Code, "newest first")
	require.Equal(t, "ip_cam", records[0].Source)
	require.Equal(t, "DEF-456", records[1].Code)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestExistsWithin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, "ABC-123", "webcam", base, ""))

	found, err := s.ExistsWithin(ctx, "ABC-123", "webcam", base.Add(-30*time.Second))
	require.NoError(t, err)
	require.True(t, found)

	// Window boundary: record at exactly windowStart does not count.
	found, err = s.ExistsWithin(ctx, "ABC-123", "webcam", base)
	require.NoError(t, err)
	require.False(t, found)

	// Different source is a different key.
	found, err = s.ExistsWithin(ctx, "ABC-123", "ip_cam", base.Add(-30*time.Second))
	require.NoError(t, err)
	require.False(t, found)
}

func TestDeleteOne(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	later := base.Add(time.Hour)

	require.NoError(t, s.Insert(ctx, "ABC-123", "webcam", base, ""))
	require.NoError(t, s.Insert(ctx, "ABC-123", "webcam", later, ""))

	// Without a timestamp the most recent sighting goes.
	require.NoError(t, s.DeleteOne(ctx, "ABC-123", nil))
	records, err := s.Latest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].Time.Equal(base))

	// Exact timestamp delete.
	require.NoError(t, s.DeleteOne(ctx, "ABC-123", &base))

	// Nothing left to delete.
	require.ErrorIs(t, s.DeleteOne(ctx, "ABC-123", nil), ErrNotFound)
}

func TestDeleteAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "ABC-123", "webcam", time.Now(), ""))
	require.NoError(t, s.Insert(ctx, "DEF-456", "webcam", time.Now(), ""))

	require.NoError(t, s.DeleteAll(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}
