package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("FINBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FINBOT_TEST_REDIS_ADDR not set")
	}
	r, err := New(context.Background(), Config{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedis_JSONRoundTrip(t *testing.T) {
	r := testRedis(t)
	ctx := context.Background()
	key := "finbot:test:" + uuid.NewString()
	t.Cleanup(func() { _ = r.Delete(ctx, key) })

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	ok, err := r.GetJSON(ctx, key, &payload{})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.SetJSON(ctx, key, payload{Name: "a", Count: 2}, time.Minute))
	var got payload
	ok, err = r.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload{Name: "a", Count: 2}, got)
}

func TestRedis_SetNXAndIncr(t *testing.T) {
	r := testRedis(t)
	ctx := context.Background()
	key := "finbot:test:" + uuid.NewString()
	t.Cleanup(func() { _ = r.Delete(ctx, key) })

	ok, err := r.SetNX(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.SetNX(ctx, key, "2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := r.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)

	counter := key + ":n"
	t.Cleanup(func() { _ = r.Delete(ctx, counter) })
	n, err := r.Incr(ctx, counter, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, err = r.Incr(ctx, counter, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
