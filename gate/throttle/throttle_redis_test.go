package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisLimiterWindow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	lim, err := NewRedisLimiter("redis://"+mr.Addr(), time.Second, nil)
	assert.NoError(err)
	defer lim.Close()

	window := 10 * time.Second
	assert.True(lim.TryAcquire(ctx, 42, window))
	assert.True(mr.Exists("throttle:42"))
	assert.Equal(window, mr.TTL("throttle:42"))

	mr.FastForward(5 * time.Second)
	assert.False(lim.TryAcquire(ctx, 42, window))
	assert.True(lim.TryAcquire(ctx, 43, window))

	mr.FastForward(6 * time.Second)
	assert.False(mr.Exists("throttle:42"))
	assert.True(lim.TryAcquire(ctx, 42, window))
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	lim := &RedisLimiter{
		Client:  redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}),
		Timeout: time.Second,
	}
	defer lim.Close()

	assert.True(lim.TryAcquire(ctx, 42, time.Minute))
	assert.False(lim.TryAcquire(ctx, 42, time.Minute))

	// backend goes away: every call is admitted
	mr.Close()
	assert.True(lim.TryAcquire(ctx, 42, time.Minute))
	assert.True(lim.TryAcquire(ctx, 42, time.Minute))
}

func TestNewRedisLimiterUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisLimiter("redis://"+addr, time.Second, nil)
	assert.Error(t, err)

	_, err = NewRedisLimiter("not a url", time.Second, nil)
	assert.Error(t, err)
}
