package throttle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// memcached reads expirations beyond 30 days as unix timestamps
const maxMemcacheExpiration = 30*24*60*60 - 60

// Limiter shared between processes through memcached. Each acquisition is a single "add" with the window as expiration, which only stores the key if it is absent.
type MemcacheLimiter struct {
	Client *memcache.Client
	Logger *slog.Logger
}

var _ Limiter = (*MemcacheLimiter)(nil)

// Connects to the given servers and pings them; an error means the shared backend is not usable at startup. The timeout bounds every memcached round-trip.
func NewMemcacheLimiter(servers []string, timeout time.Duration, logger *slog.Logger) (*MemcacheLimiter, error) {
	if len(servers) == 0 {
		return nil, errors.New("no memcached servers configured")
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if err := client.Ping(); err != nil {
		_ = client.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemcacheLimiter{
		Client: client,
		Logger: logger,
	}, nil
}

// memcached expirations are whole seconds; partial seconds round up
func memcacheExpiration(window time.Duration) int32 {
	secs := int64(window / time.Second)
	if window%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	if secs > maxMemcacheExpiration {
		secs = maxMemcacheExpiration
	}
	return int32(secs)
}

// The memcache client has no context support; its Timeout bounds the call instead.
func (l *MemcacheLimiter) TryAcquire(ctx context.Context, subjectID int64, window time.Duration) bool {
	err := l.Client.Add(&memcache.Item{
		Key:        throttleKey(subjectID),
		Value:      []byte(redisThrottleValue),
		Expiration: memcacheExpiration(window),
	})
	if err == nil {
		return true
	}
	if errors.Is(err, memcache.ErrNotStored) {
		return false
	}
	// fail open
	throttleBackendErrors.Inc()
	l.logger().Warn("throttle backend unavailable, admitting message", "subject", subjectID, "err", err)
	return true
}

func (l *MemcacheLimiter) Close() error {
	return l.Client.Close()
}

func (l *MemcacheLimiter) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
