package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	c := NewMemoryCooldownWithClock(func() time.Time { return now })

	ok, err := c.Acquire(ctx, 1, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(30 * time.Second)
	ok, err = c.Acquire(ctx, 1, 30*time.Second)
	require.NoError(t, err)
	require.False(t, ok, "window is inclusive")

	ok, err = c.Acquire(ctx, 2, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok, "windows are per tournament")

	now = now.Add(time.Second)
	ok, err = c.Acquire(ctx, 1, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Close())
	_, err = c.Acquire(ctx, 3, 30*time.Second)
	require.Error(t, err)
}

func TestMemoryCooldownPrunesExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	c := NewMemoryCooldownWithClock(func() time.Time { return now })
	for id := 1; id <= 50; id++ {
		_, err := c.Acquire(context.Background(), id, time.Minute)
		require.NoError(t, err)
	}

	now = now.Add(2 * time.Minute)
	_, err := c.Acquire(context.Background(), 100, time.Minute)
	require.NoError(t, err)
	require.Len(t, c.lastFix, 1)
}
