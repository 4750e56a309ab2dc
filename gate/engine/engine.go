package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/moskvenov/replyer/gate/banstate"
	"github.com/moskvenov/replyer/gate/event"
	"github.com/moskvenov/replyer/gate/throttle"
)

var tracer = otel.Tracer("gate")

// Runs the moderation stages over inbound messages from non-administrator subjects.
//
// Limiter and Bans are owned by the caller and shared across all concurrent ProcessMessage calls.
type Engine struct {
	Logger  *slog.Logger
	Limiter throttle.Limiter
	Bans    *banstate.BanState
	Stages  StageSet

	ThrottleWindow time.Duration
	// Byte limit for size-checked attachments; zero disables the check.
	MediaSizeLimit int64
	// Deadline for the I/O done while gating one message (limiter and storage calls). Zero means no deadline beyond the caller's.
	Timeout time.Duration
	// Source of "now"; nil means time.Now.
	Clock func() time.Time
}

func (eng *Engine) now() time.Time {
	if eng.Clock != nil {
		return eng.Clock()
	}
	return time.Now()
}

// Runs every stage in order and returns the first rejection, or Allow.
//
// When err is non-nil the returned decision is meaningless and the message must be dropped.
func (eng *Engine) ProcessMessage(ctx context.Context, msg *event.Message) (dec Decision, err error) {
	start := time.Now()
	logger := eng.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("subject", msg.SubjectID, "message", msg.MessageID)

	ctx, span := tracer.Start(ctx, "ProcessMessage", trace.WithAttributes(attribute.Int64("subject", msg.SubjectID)))
	defer span.End()

	// similar to an HTTP server, we want to recover any panics from stage execution
	defer func() {
		if r := recover(); r != nil {
			logger.Error("moderation gate exception", "err", r)
			err = fmt.Errorf("moderation gate panic: %v", r)
			dec = Decision{}
		}
		if err != nil {
			gateErrorCount.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetAttributes(attribute.String("verdict", dec.Verdict.String()))
		gateDecisionCount.WithLabelValues(dec.Verdict.String()).Inc()
		gateDuration.WithLabelValues(dec.Verdict.String()).Observe(time.Since(start).Seconds())
	}()

	if eng.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.Timeout)
		defer cancel()
	}

	c := &MessageContext{
		Ctx:     ctx,
		Logger:  logger,
		Message: msg,
		Now:     eng.now(),
		engine:  eng,
	}
	dec, err = eng.Stages.Run(c)
	if err != nil {
		return Decision{}, err
	}
	c.CanonicalLogLine(dec)
	return dec, nil
}

// Executes the stages in order, stopping at the first rejection or error.
func (s StageSet) Run(c *MessageContext) (Decision, error) {
	for _, st := range s {
		stageStart := time.Now()
		d, err := st.Fn(c)
		stageDuration.WithLabelValues(st.Name).Observe(time.Since(stageStart).Seconds())
		if err != nil {
			stageErrorCount.WithLabelValues(st.Name).Inc()
			return Decision{}, fmt.Errorf("%s stage: %w", st.Name, err)
		}
		if !d.Allowed() {
			if d.Stage == "" {
				d.Stage = st.Name
			}
			return d, nil
		}
	}
	return Decision{Verdict: Allow}, nil
}

func (c *MessageContext) CanonicalLogLine(d Decision) {
	args := []any{"verdict", d.Verdict.String()}
	if d.Stage != "" {
		args = append(args, "stage", d.Stage)
	}
	if d.Verdict == Muted {
		args = append(args, "muteRemaining", d.MuteRemaining.String())
	}
	if att := c.Message.Attachment; att != nil {
		args = append(args, "attachment", string(att.Kind), "attachmentSize", att.Size)
	}
	c.Logger.Info("canonical-gate-line", args...)
}
