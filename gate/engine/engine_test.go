package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/moskvenov/replyer/gate/event"
	"github.com/moskvenov/replyer/store"
)

func textMessage(subject int64, text string) *event.Message {
	return &event.Message{SubjectID: subject, ChatID: subject, FirstName: "Test", Text: text}
}

func TestEngineThrottleScenario(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, clock := EngineTestFixture(store.NewMemStore())

	var verdicts []Verdict
	for i := 0; i < 3; i++ {
		d, err := eng.ProcessMessage(ctx, textMessage(7, "hello"))
		assert.NoError(err)
		verdicts = append(verdicts, d.Verdict)
		clock.Advance(2 * time.Second)
	}
	assert.Equal([]Verdict{Allow, Throttled, Throttled}, verdicts)

	// t=11s
	clock.Advance(5 * time.Second)
	d, err := eng.ProcessMessage(ctx, textMessage(7, "hello again"))
	assert.NoError(err)
	assert.Equal(Allow, d.Verdict)
}

func TestEngineThrottleIsSilent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture(store.NewMemStore())

	_, err := eng.ProcessMessage(ctx, textMessage(7, "one"))
	assert.NoError(err)
	d, err := eng.ProcessMessage(ctx, textMessage(7, "two"))
	assert.NoError(err)
	assert.Equal(Throttled, d.Verdict)
	assert.Equal(StageThrottle, d.Stage)
	assert.Empty(d.Notice())
}

func TestEngineBanCacheHit(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := store.NewMemStore()
	eng, _ := EngineTestFixture(st)

	assert.NoError(eng.Bans.MarkBanned(ctx, 42))
	reads := st.ReadCount()

	d, err := eng.ProcessMessage(ctx, textMessage(42, "let me in"))
	assert.NoError(err)
	assert.Equal(Banned, d.Verdict)
	assert.Empty(d.Notice())
	// decided from the cache alone
	assert.Equal(reads, st.ReadCount())
}

func TestEngineColdCache(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := store.NewMemStore()
	assert.NoError(st.UpsertBan(ctx, 42, true))

	eng, clock := EngineTestFixture(st)
	reads := st.ReadCount()

	d, err := eng.ProcessMessage(ctx, textMessage(42, "first"))
	assert.NoError(err)
	assert.Equal(Banned, d.Verdict)
	assert.Equal(reads+1, st.ReadCount())
	assert.True(eng.Bans.IsBannedCached(42))

	clock.Advance(time.Minute)
	d, err = eng.ProcessMessage(ctx, textMessage(42, "second"))
	assert.NoError(err)
	assert.Equal(Banned, d.Verdict)
	assert.Equal(reads+1, st.ReadCount())
}

func TestEngineMute(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := store.NewMemStore()
	eng, clock := EngineTestFixture(st)

	until := clock.Now().Add(90 * time.Second)
	assert.NoError(st.UpsertMute(ctx, 9, &until))

	d, err := eng.ProcessMessage(ctx, textMessage(9, "hi"))
	assert.NoError(err)
	assert.Equal(Muted, d.Verdict)
	assert.Equal(90*time.Second, d.MuteRemaining)
	assert.Equal("⏳ You are muted for 90 seconds.", d.Notice())
	assert.False(eng.Bans.IsBannedCached(9))

	// mute lapses on its own, even before the sweeper clears it
	clock.Advance(2 * time.Minute)
	d, err = eng.ProcessMessage(ctx, textMessage(9, "hi again"))
	assert.NoError(err)
	assert.Equal(Allow, d.Verdict)
}

func TestEngineMediaSizeBoundary(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, clock := EngineTestFixture(store.NewMemStore())
	limit := eng.MediaSizeLimit

	withFile := func(kind event.AttachmentKind, size int64) *event.Message {
		m := textMessage(5, "")
		m.Attachment = &event.Attachment{Kind: kind, FileID: "f", Size: size}
		return m
	}

	d, err := eng.ProcessMessage(ctx, withFile(event.AttachmentDocument, limit))
	assert.NoError(err)
	assert.Equal(Allow, d.Verdict)

	clock.Advance(time.Minute)
	d, err = eng.ProcessMessage(ctx, withFile(event.AttachmentVideo, limit+1))
	assert.NoError(err)
	assert.Equal(MediaTooLarge, d.Verdict)
	assert.Equal("❌ File is too large. Maximum size: 50 MB.", d.Notice())

	// photos are not size checked
	clock.Advance(time.Minute)
	d, err = eng.ProcessMessage(ctx, withFile(event.AttachmentPhoto, limit*2))
	assert.NoError(err)
	assert.Equal(Allow, d.Verdict)
}

func TestEngineStoreError(t *testing.T) {
	assert := assert.New(t)
	st := store.NewMemStore()
	eng, _ := EngineTestFixture(st)
	st.SetFailure(errors.New("database is down"))

	_, err := eng.ProcessMessage(context.Background(), textMessage(3, "hi"))
	assert.Error(err)
}

func TestEngineStageOrder(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := store.NewMemStore()
	eng, _ := EngineTestFixture(st)

	assert.NoError(eng.Bans.MarkBanned(ctx, 11))
	m := textMessage(11, "")
	m.Attachment = &event.Attachment{Kind: event.AttachmentDocument, Size: eng.MediaSizeLimit + 1}

	// throttle consumes the window first, then ban wins over media size
	d, err := eng.ProcessMessage(ctx, m)
	assert.NoError(err)
	assert.Equal(Banned, d.Verdict)
	d, err = eng.ProcessMessage(ctx, m)
	assert.NoError(err)
	assert.Equal(Throttled, d.Verdict)
}

func TestEnginePanicRecovered(t *testing.T) {
	assert := assert.New(t)
	eng, _ := EngineTestFixture(store.NewMemStore())
	eng.Stages = StageSet{{Name: "boom", Fn: func(c *MessageContext) (Decision, error) {
		panic("stage exploded")
	}}}

	_, err := eng.ProcessMessage(context.Background(), textMessage(1, "hi"))
	assert.Error(err)
}

func TestEngineWithoutLogger(t *testing.T) {
	assert := assert.New(t)
	eng, _ := EngineTestFixture(store.NewMemStore())
	eng.Logger = nil

	d, err := eng.ProcessMessage(context.Background(), textMessage(1, "hi"))
	assert.NoError(err)
	assert.Equal(Allow, d.Verdict)

	eng.Stages = StageSet{{Name: "boom", Fn: func(c *MessageContext) (Decision, error) {
		panic("stage exploded")
	}}}
	_, err = eng.ProcessMessage(context.Background(), textMessage(2, "hi"))
	assert.Error(err)
}

func TestDecisionNoticeRoundsUp(t *testing.T) {
	assert := assert.New(t)
	d := Decision{Verdict: Muted, MuteRemaining: 1500 * time.Millisecond}
	assert.Equal("⏳ You are muted for 2 seconds.", d.Notice())
	d = Decision{Verdict: Muted, MuteRemaining: time.Millisecond}
	assert.Equal("⏳ You are muted for 1 seconds.", d.Notice())
	assert.Equal("banned", Banned.String())
}
