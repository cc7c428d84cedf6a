package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendLimiterFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := NewSendLimiter(rdb, 3, time.Minute)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, alice)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, alice)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, time.Minute, mr.TTL(Key(alice)))
	mr.FastForward(time.Minute + time.Second)

	ok, err = limiter.Allow(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSendLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	ok, err := NewSendLimiter(rdb, 1, time.Minute).Allow(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.True(t, ok)
}
