package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saakshy/saakshy-backend/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewDialsAndPings(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()))

	_, err = New(context.Background(), config.RedisConfig{}, nil)
	assert.Error(t, err)
}

func TestDialOptionsFillGaps(t *testing.T) {
	opts, err := dialOptions(config.RedisConfig{
		URL:         "redis://localhost:6379/2",
		DB:          5,
		PoolSize:    12,
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB, "the url wins when it names a db")
	assert.Equal(t, 12, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)

	_, err = dialOptions(config.RedisConfig{URL: "://bad"})
	assert.Error(t, err)
}

func TestSetGetDelAndSetNX(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	require.NoError(t, client.Set(ctx, "k", "v", time.Minute))
	got, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	assert.ErrorIs(t, err, Nil)
	assert.NoError(t, client.Del(ctx))

	won, err := client.SetNX(ctx, "once", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
	won, err = client.SetNX(ctx, "once", "2", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestIncrWithTTLArmsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	key := client.RateLimitKey("confirm:1.2.3.4")

	count, err := client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(30 * time.Second)
	count, err = client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 30*time.Second, mr.TTL(key), "later hits keep the original window")

	mr.FastForward(31 * time.Second)
	count, err = client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUninitializedClient(t *testing.T) {
	ctx := context.Background()
	var nilClient *Client
	for _, client := range []*Client{{}, NewFromClient(nil), nilClient} {
		assert.ErrorIs(t, client.Ping(ctx), errNotInitialized)
		_, err := client.Get(ctx, "k")
		assert.ErrorIs(t, err, errNotInitialized)
		_, err = client.IncrWithTTL(ctx, "k", time.Second)
		assert.ErrorIs(t, err, errNotInitialized)
		assert.NoError(t, client.Close())
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sk:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "sk:rate_limit:scope", client.RateLimitKey(" scope "))
	assert.Equal(t, "sk:lock:cron-worker:prod", client.LockKey("cron-worker:prod"))

	hash := "0123456789abcdef0123456789abcdef"
	assert.Equal(t, "sk:projection:rec:3:0123456789abcdef", client.ProjectionKey("rec", 3, hash))
	assert.Equal(t, "sk:projection:rec:1", client.ProjectionKey("rec", 1, ""))
}

func TestCompareAndDeleteOnlyRemovesMatchingValue(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	require.NoError(t, client.Set(ctx, "owned", "token-a", time.Minute))

	removed, err := client.CompareAndDelete(ctx, "owned", "token-b")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.True(t, mr.Exists("owned"))

	removed, err = client.CompareAndDelete(ctx, "owned", "token-a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, mr.Exists("owned"))

	removed, err = client.CompareAndDelete(ctx, "owned", "token-a")
	require.NoError(t, err)
	assert.False(t, removed)
}
