package event

import "strings"

type AttachmentKind string

const (
	AttachmentDocument AttachmentKind = "document"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentVoice    AttachmentKind = "voice"
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentOther    AttachmentKind = "other"
)

// Whether files of this kind carry a declared size that the media limit applies to. Photos are excluded.
func (k AttachmentKind) SizeChecked() bool {
	switch k {
	case AttachmentDocument, AttachmentVideo, AttachmentAudio, AttachmentVoice:
		return true
	}
	return false
}

type Attachment struct {
	Kind   AttachmentKind
	FileID string
	// Declared size in bytes, as reported by the transport. Zero if unknown.
	Size int64
}

// Transport-neutral inbound message, as seen by the moderation gate and the relay.
type Message struct {
	SubjectID int64
	ChatID    int64
	MessageID int

	FirstName string
	LastName  string
	Username  *string

	Text    string
	Caption string
	// Nil for plain text messages.
	Attachment *Attachment

	// Text of the message this one replies to, if any. Used to correlate admin replies with the original sender.
	ReplyToText string
	IsReply     bool
}

func (m *Message) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

func (m *Message) IsCommand() bool {
	return strings.HasPrefix(m.Text, "/")
}

// Splits a "/cmd@botname arg1 arg2" style text into the lowercase command name (without slash or bot suffix) and its arguments.
func (m *Message) Command() (string, []string) {
	if !m.IsCommand() {
		return "", nil
	}
	fields := strings.Fields(m.Text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}
