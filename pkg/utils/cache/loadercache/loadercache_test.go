package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/utils/cache"
)

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(
		WithExpiration[string, int](time.Minute),
		withClock[string, int](func() time.Time { return now }),
	)
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	v := 42
	c.Set(ctx, "a", &v)
	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 42, *got)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestCache_Loader(t *testing.T) {
	ctx := context.Background()
	calls := 0
	c := New(WithLoader[int, string](func(k int) (*string, error) {
		calls++
		if k < 0 {
			return nil, errors.New("negative")
		}
		s := "v"
		return &s, nil
	}))
	for range 3 {
		got, err := c.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "v", *got)
	}
	assert.Equal(t, 1, calls)

	_, err := c.Get(ctx, -1)
	assert.Error(t, err)

	c.Invalidate(ctx, 1)
	_, _ = c.Get(ctx, 1)
	assert.Equal(t, 3, calls)

	c.InvalidateAll(ctx)
	_, _ = c.Get(ctx, 1)
	assert.Equal(t, 4, calls)
}
