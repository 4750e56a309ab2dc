package bot

import (
	"context"

	"github.com/moskvenov/replyer/botapi"
	"github.com/moskvenov/replyer/relay"
)

// The subset of the Bot API the dispatcher uses; *botapi.Client implements it.
type Messenger interface {
	SendMessage(ctx context.Context, p botapi.SendMessageParams) (*botapi.Message, error)
	CopyMessage(ctx context.Context, p botapi.CopyMessageParams) (*botapi.MessageID, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

var _ Messenger = (*botapi.Client)(nil)

// Adapts a Messenger to the relay's delivery sink.
type MessengerDeliverer struct {
	Messenger Messenger
}

var _ relay.Deliverer = (*MessengerDeliverer)(nil)

func (d *MessengerDeliverer) Deliver(ctx context.Context, recipient int64, out relay.Outbound) error {
	if out.CopyFrom != nil {
		_, err := d.Messenger.CopyMessage(ctx, botapi.CopyMessageParams{
			ChatID:     recipient,
			FromChatID: out.CopyFrom.ChatID,
			MessageID:  out.CopyFrom.MessageID,
			Caption:    out.Caption,
			ParseMode:  out.ParseMode,
		})
		return err
	}
	_, err := d.Messenger.SendMessage(ctx, botapi.SendMessageParams{
		ChatID:    recipient,
		Text:      out.Text,
		ParseMode: out.ParseMode,
	})
	return err
}
