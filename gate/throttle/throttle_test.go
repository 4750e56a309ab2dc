package throttle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemLimiterWindow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	window := 10 * time.Second

	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	lim := NewMemLimiter(100, time.Hour)
	lim.Clock = clock.Now

	// t=0
	assert.True(lim.TryAcquire(ctx, 42, window))
	// t=5
	clock.Advance(5 * time.Second)
	assert.False(lim.TryAcquire(ctx, 42, window))
	// other subjects are independent
	assert.True(lim.TryAcquire(ctx, 43, window))
	// t=11
	clock.Advance(6 * time.Second)
	assert.True(lim.TryAcquire(ctx, 42, window))
	// new window started at t=11
	clock.Advance(9 * time.Second)
	assert.False(lim.TryAcquire(ctx, 42, window))
	clock.Advance(time.Second)
	assert.True(lim.TryAcquire(ctx, 42, window))
}

func TestMemLimiterCapacity(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	lim := NewMemLimiter(2, time.Hour)
	assert.True(lim.TryAcquire(ctx, 1, time.Minute))
	assert.True(lim.TryAcquire(ctx, 2, time.Minute))
	assert.True(lim.TryAcquire(ctx, 3, time.Minute))
	assert.Equal(2, lim.Len())

	// oldest subject was evicted, so its window is forgotten
	assert.True(lim.TryAcquire(ctx, 1, time.Minute))
	assert.False(lim.TryAcquire(ctx, 3, time.Minute))
}

func TestMemLimiterConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	lim := NewMemLimiter(100, time.Hour)
	var acquired atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lim.TryAcquire(ctx, 99, time.Minute) {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(int64(1), acquired.Load())
}
