package engine

import "fmt"

// A single gate check. Returning a non-Allow decision stops the pipeline; returning an error stops it and drops the message.
type StageFunc func(c *MessageContext) (Decision, error)

type Stage struct {
	Name string
	Fn   StageFunc
}

// Ordered list of stages. The first stage that rejects wins.
type StageSet []Stage

const (
	StageThrottle  = "throttle"
	StageBanMute   = "banmute"
	StageMediaSize = "mediasize"
)

// The fixed production order: throttle, then ban/mute, then media size.
func DefaultStages() StageSet {
	return StageSet{
		{Name: StageThrottle, Fn: ThrottleStage},
		{Name: StageBanMute, Fn: BanMuteStage},
		{Name: StageMediaSize, Fn: MediaSizeStage},
	}
}

func ThrottleStage(c *MessageContext) (Decision, error) {
	eng := c.engine
	if eng.Limiter == nil {
		return Decision{}, nil
	}
	if !eng.Limiter.TryAcquire(c.Ctx, c.Message.SubjectID, eng.ThrottleWindow) {
		return c.reject(StageThrottle, Throttled), nil
	}
	return Decision{}, nil
}

// Cache hit is trusted on its own. On a miss the stored record is consulted once, which both backfills the ban cache and provides the mute state.
func BanMuteStage(c *MessageContext) (Decision, error) {
	bans := c.engine.Bans
	subject := c.Message.SubjectID
	if bans.IsBannedCached(subject) {
		return c.reject(StageBanMute, Banned), nil
	}
	rec, err := bans.ReconcileRecord(c.Ctx, subject)
	if err != nil {
		return Decision{}, fmt.Errorf("checking moderation state: %w", err)
	}
	if rec == nil {
		return Decision{}, nil
	}
	if rec.IsBanned {
		return c.reject(StageBanMute, Banned), nil
	}
	if rec.MuteActive(c.Now) {
		d := c.reject(StageBanMute, Muted)
		d.MuteRemaining = rec.MuteRemaining(c.Now)
		return d, nil
	}
	return Decision{}, nil
}

// Photos carry no single declared size and are not checked.
func MediaSizeStage(c *MessageContext) (Decision, error) {
	limit := c.engine.MediaSizeLimit
	att := c.Message.Attachment
	if limit <= 0 || att == nil || !att.Kind.SizeChecked() {
		return Decision{}, nil
	}
	if att.Size > limit {
		d := c.reject(StageMediaSize, MediaTooLarge)
		d.SizeLimit = limit
		return d, nil
	}
	return Decision{}, nil
}

