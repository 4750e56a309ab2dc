package throttle

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisThrottleValue = "1"

// Limiter shared between processes through redis. Each acquisition is a single atomic "SET key 1 NX EX window".
type RedisLimiter struct {
	Client *redis.Client
	Logger *slog.Logger
	// Deadline for each redis round-trip; zero means no extra deadline beyond the caller's context.
	Timeout time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

// Connects and pings; an error means the shared backend is not usable at startup.
func NewRedisLimiter(redisURL string, timeout time.Duration, logger *slog.Logger) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		Client:  rdb,
		Logger:  logger,
		Timeout: timeout,
	}, nil
}

func (l *RedisLimiter) TryAcquire(ctx context.Context, subjectID int64, window time.Duration) bool {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	ok, err := l.Client.SetNX(ctx, throttleKey(subjectID), redisThrottleValue, window).Result()
	if err != nil {
		// fail open
		throttleBackendErrors.Inc()
		l.logger().Warn("throttle backend unavailable, admitting message", "subject", subjectID, "err", err)
		return true
	}
	return ok
}

func (l *RedisLimiter) Close() error {
	return l.Client.Close()
}

func (l *RedisLimiter) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
