package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Bounded, self-expiring in-process limiter.
//
// Entries hold the end of the subject's window; the LRU caps the number of tracked subjects (least-recently-used evicted first) and drops entries after ttl. The ttl should be at least the longest window passed to TryAcquire, otherwise windows are cut short.
type MemLimiter struct {
	mu   sync.Mutex
	Data *expirable.LRU[int64, time.Time]
	// Source of "now"; replaceable in tests.
	Clock func() time.Time
}

var _ Limiter = (*MemLimiter)(nil)

func NewMemLimiter(capacity int, ttl time.Duration) *MemLimiter {
	return &MemLimiter{
		Data:  expirable.NewLRU[int64, time.Time](capacity, nil, ttl),
		Clock: time.Now,
	}
}

func (l *MemLimiter) TryAcquire(ctx context.Context, subjectID int64, window time.Duration) bool {
	now := l.Clock()

	// check-then-set must not interleave between goroutines
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.Data.Get(subjectID); ok && now.Before(until) {
		return false
	}
	l.Data.Add(subjectID, now.Add(window))
	return true
}

// Number of subjects currently tracked.
func (l *MemLimiter) Len() int {
	return l.Data.Len()
}
