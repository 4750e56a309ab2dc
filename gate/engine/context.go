package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/moskvenov/replyer/gate/event"
)

// Per-message state handed to every stage. Stages read the message and use the engine's collaborators; they do not mutate the message.
type MessageContext struct {
	// Context for any I/O a stage performs; carries the per-message deadline.
	Ctx     context.Context
	Logger  *slog.Logger
	Message *event.Message
	// Time at which processing started. Stages use this instead of reading the clock themselves, so that every stage sees the same instant.
	Now time.Time

	engine *Engine
}

// Rejects the message with the given verdict, attributing it to the stage.
func (c *MessageContext) reject(stage string, v Verdict) Decision {
	return Decision{Verdict: v, Stage: stage}
}
