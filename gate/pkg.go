package gate

import (
	"github.com/moskvenov/replyer/gate/banstate"
	"github.com/moskvenov/replyer/gate/engine"
	"github.com/moskvenov/replyer/gate/event"
	"github.com/moskvenov/replyer/gate/mutesweep"
	"github.com/moskvenov/replyer/gate/throttle"
)

type Engine = engine.Engine
type Decision = engine.Decision
type Verdict = engine.Verdict
type StageSet = engine.StageSet
type StageFunc = engine.StageFunc
type MessageContext = engine.MessageContext

type Message = event.Message
type Attachment = event.Attachment

type Limiter = throttle.Limiter
type BanState = banstate.BanState
type Sweeper = mutesweep.Sweeper

var (
	Allow         = engine.Allow
	Throttled     = engine.Throttled
	Banned        = engine.Banned
	Muted         = engine.Muted
	MediaTooLarge = engine.MediaTooLarge

	DefaultStages = engine.DefaultStages
)
