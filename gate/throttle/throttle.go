package throttle

import (
	"context"
	"strconv"
	"time"
)

// Per-subject admission control: at most one successful acquisition per subject per rolling window.
//
// A call during an active window returns false; the first call after the window has expired returns true and starts a new window. Implementations are safe for concurrent use, and are picked once at startup (no runtime switching between backends).
type Limiter interface {
	TryAcquire(ctx context.Context, subjectID int64, window time.Duration) bool
}

func throttleKey(subjectID int64) string {
	return "throttle:" + strconv.FormatInt(subjectID, 10)
}
