package engine

import (
	"fmt"
	"time"

	"github.com/moskvenov/replyer/util"
)

type Verdict int

const (
	Allow Verdict = iota
	Throttled
	Banned
	Muted
	MediaTooLarge
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Throttled:
		return "throttled"
	case Banned:
		return "banned"
	case Muted:
		return "muted"
	case MediaTooLarge:
		return "media-too-large"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Outcome of running the gate over a single message. Fresh per message, never persisted.
type Decision struct {
	Verdict Verdict
	// Name of the stage which produced a rejection; empty on Allow.
	Stage string
	// Only set for Muted.
	MuteRemaining time.Duration
	// Only set for MediaTooLarge.
	SizeLimit int64
}

func (d Decision) Allowed() bool {
	return d.Verdict == Allow
}

// User-visible notice for this decision, or empty string when the rejection is silent (throttle and ban are silent, mute and media size are not).
func (d Decision) Notice() string {
	switch d.Verdict {
	case Muted:
		secs := util.CeilSeconds(d.MuteRemaining)
		if secs < 1 {
			secs = 1
		}
		return fmt.Sprintf("⏳ You are muted for %d seconds.", secs)
	case MediaTooLarge:
		return fmt.Sprintf("❌ File is too large. Maximum size: %s.", humanBytes(d.SizeLimit))
	default:
		return ""
	}
}

func humanBytes(n int64) string {
	const mb = 1024 * 1024
	if n >= mb && n%mb == 0 {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
