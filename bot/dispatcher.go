// Routes inbound Bot API updates: administrator messages to the command and reply handlers, everything else through the moderation gate and on to the relay.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/moskvenov/replyer/botapi"
	"github.com/moskvenov/replyer/gate"
	"github.com/moskvenov/replyer/relay"
	"github.com/moskvenov/replyer/store"
)

const (
	greetingFormat = "👋 Hi, %s!\nSend me your suggestion or question and I will pass it on to the administrators."
	ackText        = "✅ Message sent!"
)

type DispatcherConfig struct {
	Admins []int64
	// How long the sender's acknowledgment stays visible before it is deleted.
	AckTTL time.Duration
	// Offset from UTC for timestamps shown to administrators.
	DisplayOffset time.Duration
	// Upper bound on updates handled concurrently; Submit blocks once reached.
	MaxConcurrent int64
}

type Dispatcher struct {
	Logger    *slog.Logger
	Messenger Messenger
	Store     store.Store
	Bans      *gate.BanState
	Gate      *gate.Engine
	Relay     *relay.Relay

	admins        map[int64]bool
	ackTTL        time.Duration
	displayOffset time.Duration
	sem           *semaphore.Weighted
	wg            sync.WaitGroup
	// closed by Drain; pending acknowledgments are deleted immediately after that
	draining  chan struct{}
	drainOnce sync.Once
	// Source of "now" for admin commands; nil means time.Now.
	Clock func() time.Time
}

func NewDispatcher(cfg DispatcherConfig, messenger Messenger, st store.Store, eng *gate.Engine, rel *relay.Relay, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 64
	}
	admins := make(map[int64]bool, len(cfg.Admins))
	for _, id := range cfg.Admins {
		admins[id] = true
	}
	return &Dispatcher{
		Logger:        logger.With("system", "dispatcher"),
		Messenger:     messenger,
		Store:         st,
		Bans:          eng.Bans,
		Gate:          eng,
		Relay:         rel,
		admins:        admins,
		ackTTL:        cfg.AckTTL,
		displayOffset: cfg.DisplayOffset,
		sem:           semaphore.NewWeighted(cfg.MaxConcurrent),
		draining:      make(chan struct{}),
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

func (d *Dispatcher) IsAdmin(id int64) bool {
	return d.admins[id]
}

// Hands the update to its own goroutine, blocking while the concurrency limit is reached. Only fails if ctx is cancelled while waiting.
//
// Cancelling ctx does not abort updates already handed off; use Wait to drain them.
func (d *Dispatcher) Submit(ctx context.Context, upd botapi.Update) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	d.wg.Add(1)
	inflightUpdates.Inc()
	handleCtx := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer inflightUpdates.Dec()
		if err := d.HandleUpdate(handleCtx, upd); err != nil {
			d.Logger.Error("failed to handle update", "update", upd.UpdateID, "err", err)
		}
	}()
	return nil
}

// Blocks until every submitted update, and any pending acknowledgment cleanup, has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Like Wait, but pending acknowledgments are deleted right away instead of after their TTL. Used at shutdown.
func (d *Dispatcher) Drain() {
	d.drainOnce.Do(func() { close(d.draining) })
	d.wg.Wait()
}

func (d *Dispatcher) HandleUpdate(ctx context.Context, upd botapi.Update) error {
	msg := toGateMessage(upd.Message)
	if msg == nil {
		updatesHandled.WithLabelValues("ignored").Inc()
		return nil
	}
	route := "user"
	var err error
	if d.IsAdmin(msg.SubjectID) {
		route = "admin"
		err = d.handleAdmin(ctx, msg)
	} else {
		err = d.handleUser(ctx, msg)
	}
	updatesHandled.WithLabelValues(route).Inc()
	if err != nil {
		updateErrors.WithLabelValues(route).Inc()
	}
	return err
}

func (d *Dispatcher) handleUser(ctx context.Context, msg *gate.Message) error {
	dec, err := d.Gate.ProcessMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("gating message from %d: %w", msg.SubjectID, err)
	}
	if !dec.Allowed() {
		if notice := dec.Notice(); notice != "" {
			return d.reply(ctx, msg.ChatID, notice)
		}
		return nil
	}

	if name, _ := msg.Command(); name == "start" {
		if _, err := d.Store.EnsureRecord(ctx, msg.SubjectID, msg.FirstName, msg.Username); err != nil {
			return fmt.Errorf("registering subject %d: %w", msg.SubjectID, err)
		}
		return d.reply(ctx, msg.ChatID, fmt.Sprintf(greetingFormat, msg.FirstName))
	}

	n, err := d.Relay.Forward(ctx, msg)
	if errors.Is(err, relay.ErrNotDelivered) {
		d.Logger.Warn("message reached no administrator", "subject", msg.SubjectID)
		return nil
	}
	if err != nil {
		return err
	}
	d.Logger.Debug("relayed message", "subject", msg.SubjectID, "admins", n)
	return d.ack(ctx, msg.ChatID)
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) error {
	_, err := d.Messenger.SendMessage(ctx, botapi.SendMessageParams{ChatID: chatID, Text: text})
	return err
}

func (d *Dispatcher) replyMarkdown(ctx context.Context, chatID int64, text string) error {
	_, err := d.Messenger.SendMessage(ctx, botapi.SendMessageParams{ChatID: chatID, Text: text, ParseMode: "Markdown"})
	return err
}

// Sends the transient acknowledgment and schedules its deletion after ackTTL.
func (d *Dispatcher) ack(ctx context.Context, chatID int64) error {
	sent, err := d.Messenger.SendMessage(ctx, botapi.SendMessageParams{ChatID: chatID, Text: ackText})
	if err != nil {
		return fmt.Errorf("sending acknowledgment: %w", err)
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		timer := time.NewTimer(d.ackTTL)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-d.draining:
		}
		delCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := d.Messenger.DeleteMessage(delCtx, chatID, sent.MessageID); err != nil {
			d.Logger.Debug("failed to delete acknowledgment", "chat", chatID, "err", err)
		}
	}()
	return nil
}
