package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/moskvenov/replyer/gate/banstate"
	"github.com/moskvenov/replyer/gate/throttle"
	"github.com/moskvenov/replyer/store"
)

// Manually advanced time source shared by the engine and its limiter in tests.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{t: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// In-memory engine with a 10s throttle window and 50 MB media limit, driven by the returned clock.
func EngineTestFixture(st *store.MemStore) (*Engine, *ManualClock) {
	clock := NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := throttle.NewMemLimiter(1000, time.Hour)
	limiter.Clock = clock.Now
	eng := &Engine{
		Logger:         slog.Default(),
		Limiter:        limiter,
		Bans:           banstate.NewBanState(st, nil),
		Stages:         DefaultStages(),
		ThrottleWindow: 10 * time.Second,
		MediaSizeLimit: 50 * 1024 * 1024,
		Timeout:        time.Second,
		Clock:          clock.Now,
	}
	return eng, clock
}
