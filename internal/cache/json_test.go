package cache_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tournetwork/storefront/internal/cache"
)

type record struct {
	Name  string `json:"name"`
	Seats int    `json:"seats"`
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.NewJSON(client, "test:", time.Minute)
	ctx := context.Background()

	var out record
	hit, err := c.Get(ctx, "a", &out)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.Set(ctx, "a", record{Name: "Sunset", Seats: 4}))
	require.True(t, mr.Exists("test:a"))

	hit, err = c.Get(ctx, "a", &out)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, record{Name: "Sunset", Seats: 4}, out)

	mr.FastForward(2 * time.Minute)
	hit, err = c.Get(ctx, "a", &out)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestJSONTakeConsumes(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.NewJSON(client, "", time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "done", record{Name: "x"}))

	var out record
	hit, err := c.Take(ctx, "done", &out)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "x", out.Name)

	hit, err = c.Take(ctx, "done", &out)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestNilClientIsNoop(t *testing.T) {
	c := cache.NewJSON(nil, "", time.Minute)
	var out record
	hit, err := c.Get(context.Background(), "a", &out)
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, c.Set(context.Background(), "a", out))
}
