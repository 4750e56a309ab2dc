// Fan-out delivery of accepted end-user messages to administrators, and correlation of administrator replies back to the original sender.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode/utf16"

	"github.com/rivo/uniseg"
	"golang.org/x/sync/errgroup"

	"github.com/moskvenov/replyer/gate/event"
)

var ErrNotDelivered = errors.New("message not delivered to any administrator")

const UnsupportedPlaceholder = "[unsupported media type]"

// Bot API limits, in UTF-16 code units.
const (
	MaxTextLength    = 4096
	MaxCaptionLength = 1024
)

const truncationMark = "…"

// Points at an existing message which the transport should copy rather than re-send.
type CopyRef struct {
	ChatID    int64
	MessageID int
}

// Content to deliver to one recipient. Exactly one of Text or CopyFrom is meaningful; Caption applies to copies.
type Outbound struct {
	Text      string
	CopyFrom  *CopyRef
	Caption   string
	ParseMode string
}

// Transport-side sink for outbound content.
type Deliverer interface {
	Deliver(ctx context.Context, recipient int64, out Outbound) error
}

type Relay struct {
	Admins    []int64
	Transport Deliverer
	Logger    *slog.Logger
}

func NewRelay(admins []int64, transport Deliverer, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		Admins:    admins,
		Transport: transport,
		Logger:    logger.With("system", "relay"),
	}
}

// Tag prepended to relayed content. The id is rendered as inline code so that administrators can copy it, and so that ExtractSenderID can recover it from a reply.
func FormatHeader(msg *event.Message) string {
	handle := "NoUser"
	if msg.Username != nil && *msg.Username != "" {
		handle = *msg.Username
	}
	return fmt.Sprintf("📩 `%d`\n%s (@%s)\n", msg.SubjectID, EscapeMarkdown(msg.FullName()), EscapeMarkdown(handle))
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// Escapes the characters which are significant in legacy Markdown parse mode, so user-supplied names cannot break message formatting.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Builds the per-recipient payload for msg.
func BuildOutbound(msg *event.Message) Outbound {
	header := FormatHeader(msg)
	switch {
	case msg.Text != "":
		body := escapeWithin(msg.Text, MaxTextLength-utf16Len(header)-1)
		return Outbound{Text: header + "\n" + body, ParseMode: "Markdown"}
	case msg.Attachment != nil && msg.Attachment.Kind != event.AttachmentOther:
		body := escapeWithin(msg.Caption, MaxCaptionLength-utf16Len(header)-1)
		return Outbound{
			CopyFrom:  &CopyRef{ChatID: msg.ChatID, MessageID: msg.MessageID},
			Caption:   header + "\n" + body,
			ParseMode: "Markdown",
		}
	default:
		return Outbound{Text: header + "\n" + UnsupportedPlaceholder, ParseMode: "Markdown"}
	}
}

// Escapes s for Markdown and, if the result is longer than budget UTF-16 units, cuts it at a grapheme cluster boundary and appends an ellipsis. Escape sequences are never split.
func escapeWithin(s string, budget int) string {
	escaped := EscapeMarkdown(s)
	if utf16Len(escaped) <= budget {
		return escaped
	}
	budget -= utf16Len(truncationMark)
	if budget <= 0 {
		return ""
	}
	var b strings.Builder
	used := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		piece := EscapeMarkdown(gr.Str())
		n := utf16Len(piece)
		if used+n > budget {
			break
		}
		b.WriteString(piece)
		used += n
	}
	b.WriteString(truncationMark)
	return b.String()
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// Delivers msg to every administrator concurrently. A failure for one recipient is logged and does not affect the others. Returns the number of administrators reached, and ErrNotDelivered if that is zero.
func (r *Relay) Forward(ctx context.Context, msg *event.Message) (int, error) {
	out := BuildOutbound(msg)
	var delivered atomic.Int64

	// per-recipient errors are swallowed so that errgroup never cancels siblings
	var eg errgroup.Group
	for _, admin := range r.Admins {
		eg.Go(func() error {
			if err := r.Transport.Deliver(ctx, admin, out); err != nil {
				deliveryCount.WithLabelValues("error").Inc()
				r.Logger.Warn("failed to deliver to administrator", "admin", admin, "subject", msg.SubjectID, "err", err)
				return nil
			}
			deliveryCount.WithLabelValues("ok").Inc()
			delivered.Add(1)
			return nil
		})
	}
	_ = eg.Wait()

	n := int(delivered.Load())
	if n == 0 {
		forwardFailures.Inc()
		return 0, ErrNotDelivered
	}
	return n, nil
}

var senderIDRegex = regexp.MustCompile("📩\\s*`?(\\d+)")

// Recovers the original sender's id from relayed content (text or caption). Returns false if no tag is present.
func ExtractSenderID(text string) (int64, bool) {
	m := senderIDRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
