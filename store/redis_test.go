package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		_, client := newTestRedis(t)
		return NewRedis(client, "test")
	})
}

func TestRedisStoreLayout(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedis(client, "")

	require.NoError(t, s.Upsert(ctx, Entry{Key: "k", Value: []byte("v"), ExpiresAt: at(time.Minute), SlidingExpiration: dur(1500 * time.Millisecond)}))
	assert.True(t, mr.Exists("doccache:entry:k"))
	score, err := mr.ZScore("doccache:expiry", "k")
	require.NoError(t, err)
	assert.Equal(t, float64(base.Add(time.Minute).UnixMilli()), score)
	assert.Equal(t, "1.5", mr.HGet("doccache:entry:k", "s"))

	// replacing with a non-expiring entry drops it from the expiry index
	require.NoError(t, s.Upsert(ctx, Entry{Key: "k", Value: []byte("w")}))
	members, err := mr.ZMembers("doccache:expiry")
	if err == nil {
		assert.Empty(t, members)
	}
	assert.Equal(t, "", mr.HGet("doccache:entry:k", "s"))

	require.NoError(t, s.Delete(ctx, "k"))
	assert.False(t, mr.Exists("doccache:entry:k"))
}

func TestRedisStorePrefixesIsolate(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	a := NewRedis(client, "a")
	b := NewRedis(client, "b")

	require.NoError(t, a.Upsert(ctx, Entry{Key: "k", Value: []byte("v"), ExpiresAt: at(0)}))
	removed, err := b.DeleteExpired(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	e, err := a.Fetch(ctx, "k", true)
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewRedis(client, "test")
	mr.Close()
	_, err = s.Fetch(context.Background(), "k", true)
	assert.Error(t, err)
}
