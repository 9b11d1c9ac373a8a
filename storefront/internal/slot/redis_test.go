package slot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStore(t *testing.T) {
	s, _ := setupTestRedis(t, time.Hour)
	exerciseStore(t, s)
}

func TestRedisStore_SlidingTTL(t *testing.T) {
	s, mr := setupTestRedis(t, time.Hour)
	ctx := context.Background()
	key := Key("sess")

	require.NoError(t, s.Save(ctx, key, []byte("[]")))
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(59 * time.Minute)
	require.NoError(t, s.Save(ctx, key, []byte("[]")))
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(61 * time.Minute)
	_, err := s.Load(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_DefaultTTL(t *testing.T) {
	s, mr := setupTestRedis(t, 0)
	require.NoError(t, s.Save(context.Background(), "k", []byte("x")))
	assert.Equal(t, 30*24*time.Hour, mr.TTL("k"))
}

func TestRedisStore_ConnectionError(t *testing.T) {
	s, mr := setupTestRedis(t, time.Hour)
	mr.Close()

	_, err := s.Load(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "redis get failed")
}
