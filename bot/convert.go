package bot

import (
	"github.com/moskvenov/replyer/botapi"
	"github.com/moskvenov/replyer/gate"
	"github.com/moskvenov/replyer/gate/event"
)

// Maps a Bot API message onto the transport-neutral gate message. Returns nil for messages without a sender (channel posts).
func toGateMessage(m *botapi.Message) *gate.Message {
	if m == nil || m.From == nil {
		return nil
	}
	out := &gate.Message{
		SubjectID: m.From.ID,
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		FirstName: m.From.FirstName,
		LastName:  m.From.LastName,
		Text:      m.Text,
		Caption:   m.Caption,
	}
	if m.From.Username != "" {
		handle := m.From.Username
		out.Username = &handle
	}
	out.Attachment = attachmentOf(m)
	if m.ReplyToMessage != nil {
		out.IsReply = true
		out.ReplyToText = m.ReplyToMessage.Text
		if out.ReplyToText == "" {
			out.ReplyToText = m.ReplyToMessage.Caption
		}
	}
	return out
}

func attachmentOf(m *botapi.Message) *gate.Attachment {
	file := func(kind event.AttachmentKind, f *botapi.File) *gate.Attachment {
		return &gate.Attachment{Kind: kind, FileID: f.FileID, Size: f.FileSize}
	}
	switch {
	case m.Document != nil:
		return file(event.AttachmentDocument, m.Document)
	case m.Video != nil:
		return file(event.AttachmentVideo, m.Video)
	case m.Audio != nil:
		return file(event.AttachmentAudio, m.Audio)
	case m.Voice != nil:
		return file(event.AttachmentVoice, m.Voice)
	case len(m.Photo) > 0:
		// sizes are ordered smallest first
		largest := m.Photo[len(m.Photo)-1]
		return &gate.Attachment{Kind: event.AttachmentPhoto, FileID: largest.FileID, Size: largest.FileSize}
	case m.Sticker != nil:
		return file(event.AttachmentOther, m.Sticker)
	case m.Text == "":
		// contacts, locations, polls and the like
		return &gate.Attachment{Kind: event.AttachmentOther}
	}
	return nil
}
