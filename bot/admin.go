package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/moskvenov/replyer/botapi"
	"github.com/moskvenov/replyer/gate"
	"github.com/moskvenov/replyer/models"
	"github.com/moskvenov/replyer/relay"
	"github.com/moskvenov/replyer/store"
	"github.com/moskvenov/replyer/util"
)

const adminHelp = `🔧 *Admin commands*

/stats - user statistics
/info <id> - user profile
/ban <id> - ban a user
/unban <id> - lift a ban
/mute <id> <minutes> - mute a user
/unmute <id> - lift a mute

Reply to a relayed message to answer its sender. The id may be omitted from any command when replying to a relayed message.`

// Administrators bypass the gate. Commands are executed; replies to relayed messages are sent back to the original sender; anything else is ignored.
func (d *Dispatcher) handleAdmin(ctx context.Context, msg *gate.Message) error {
	name, args := msg.Command()
	if name == "" {
		if msg.IsReply {
			return d.answerSender(ctx, msg)
		}
		return nil
	}

	logger := d.Logger.With("admin", msg.SubjectID, "command", name)
	var text string
	var err error
	switch name {
	case "admin", "help", "start":
		return d.replyMarkdown(ctx, msg.ChatID, adminHelp)
	case "stats":
		text, err = d.cmdStats(ctx)
	case "info":
		text, err = d.withTarget(msg, args, 0, "/info <id>", func(target int64, _ []string) (string, error) {
			return d.cmdInfo(ctx, target)
		})
	case "ban":
		text, err = d.withTarget(msg, args, 0, "/ban <id>", func(target int64, _ []string) (string, error) {
			if err := d.Bans.MarkBanned(ctx, target); err != nil {
				return "", err
			}
			return fmt.Sprintf("🚫 User `%d` banned.", target), nil
		})
	case "unban":
		text, err = d.withTarget(msg, args, 0, "/unban <id>", func(target int64, _ []string) (string, error) {
			if err := d.Bans.MarkUnbanned(ctx, target); err != nil {
				return "", err
			}
			return fmt.Sprintf("✅ User `%d` unbanned.", target), nil
		})
	case "mute":
		text, err = d.withTarget(msg, args, 1, "/mute <id> <minutes>", func(target int64, rest []string) (string, error) {
			return d.cmdMute(ctx, target, rest)
		})
	case "unmute":
		text, err = d.withTarget(msg, args, 0, "/unmute <id>", func(target int64, _ []string) (string, error) {
			if err := d.Store.UpsertMute(ctx, target, nil); err != nil {
				return "", err
			}
			return fmt.Sprintf("🔊 User `%d` unmuted.", target), nil
		})
	default:
		return d.reply(ctx, msg.ChatID, "Unknown command. Send /admin for the list of commands.")
	}

	if err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			return d.reply(ctx, msg.ChatID, usage.Error())
		}
		logger.Error("admin command failed", "err", err)
		if rerr := d.reply(ctx, msg.ChatID, "⚠️ Command failed, see logs."); rerr != nil {
			logger.Warn("failed to report command failure", "err", rerr)
		}
		return err
	}
	adminCommands.WithLabelValues(name).Inc()
	logger.Info("admin command executed", "args", args)
	return d.replyMarkdown(ctx, msg.ChatID, text)
}

type usageError struct {
	usage string
}

func (e usageError) Error() string {
	return "Usage: " + e.usage
}

// Resolves the target subject from the first argument, or from the relayed message being replied to when only the extra arguments are given.
func (d *Dispatcher) withTarget(msg *gate.Message, args []string, extra int, usage string, fn func(target int64, rest []string) (string, error)) (string, error) {
	if len(args) > extra {
		if id, err := strconv.ParseInt(args[0], 10, 64); err == nil && id > 0 {
			return fn(id, args[1:])
		}
	}
	if msg.IsReply {
		if id, ok := relay.ExtractSenderID(msg.ReplyToText); ok {
			return fn(id, args)
		}
	}
	return "", usageError{usage: usage}
}

// Ten years. Much larger values overflow time.Duration and would place the deadline in the past.
const maxMuteMinutes = 10 * 365 * 24 * 60

func (d *Dispatcher) cmdMute(ctx context.Context, target int64, args []string) (string, error) {
	if len(args) < 1 {
		return "", usageError{usage: "/mute <id> <minutes>"}
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil || minutes <= 0 || minutes > maxMuteMinutes {
		return "", usageError{usage: fmt.Sprintf("/mute <id> <minutes> (minutes must be between 1 and %d)", maxMuteMinutes)}
	}
	until := d.now().Add(time.Duration(minutes) * time.Minute)
	if err := d.Store.UpsertMute(ctx, target, &until); err != nil {
		return "", err
	}
	return fmt.Sprintf("🔇 User `%d` muted for %d minutes, until %s.", target, minutes, util.FormatDisplayTime(&until, d.displayOffset)), nil
}

func (d *Dispatcher) cmdStats(ctx context.Context) (string, error) {
	st, err := d.Store.Stats(ctx, d.now())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📊 *Statistics*\n\n"+
		"👥 Total users: `%d`\n"+
		"🔥 New in 24 hours: `%d`\n"+
		"📅 New in 7 days: `%d`\n"+
		"🚫 Banned: `%d`\n"+
		"🔇 Muted: `%d`\n",
		st.Total, st.NewDay, st.NewWeek, st.Banned, st.Muted), nil
}

func (d *Dispatcher) cmdInfo(ctx context.Context, target int64) (string, error) {
	rec, err := d.Store.GetRecord(ctx, target)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("User `%d` not found.", target), nil
	}
	if err != nil {
		return "", err
	}
	return d.formatProfile(rec), nil
}

func (d *Dispatcher) formatProfile(rec *models.ModerationRecord) string {
	now := d.now()
	status := "✅ Active"
	switch rec.Status(now) {
	case "banned":
		status = "🚫 BANNED"
	case "muted":
		status = "🔇 MUTED until " + util.FormatDisplayTime(rec.MuteUntil, d.displayOffset)
	}
	handle := "none"
	if rec.Username != nil && *rec.Username != "" {
		handle = "@" + relay.EscapeMarkdown(*rec.Username)
	}
	var sb strings.Builder
	sb.WriteString("👤 *User profile*\n")
	fmt.Fprintf(&sb, "🆔 ID: `%d`\n", rec.SubjectID)
	fmt.Fprintf(&sb, "👤 Name: %s\n", relay.EscapeMarkdown(rec.FirstName))
	fmt.Fprintf(&sb, "🔗 Username: %s\n", handle)
	fmt.Fprintf(&sb, "📅 Joined: %s\n", util.FormatDisplayTime(&rec.JoinedAt, d.displayOffset))
	fmt.Fprintf(&sb, "📊 Status: %s", status)
	return sb.String()
}

// Sends an administrator's reply back to the sender of the relayed message it answers. Replies to anything else (eg, between administrators) are ignored.
func (d *Dispatcher) answerSender(ctx context.Context, msg *gate.Message) error {
	target, ok := relay.ExtractSenderID(msg.ReplyToText)
	if !ok {
		return nil
	}
	var err error
	if msg.Text != "" {
		_, err = d.Messenger.SendMessage(ctx, botapi.SendMessageParams{ChatID: target, Text: msg.Text})
	} else {
		_, err = d.Messenger.CopyMessage(ctx, botapi.CopyMessageParams{
			ChatID:     target,
			FromChatID: msg.ChatID,
			MessageID:  msg.MessageID,
			Caption:    msg.Caption,
		})
	}
	if err != nil {
		d.Logger.Warn("failed to deliver admin reply", "admin", msg.SubjectID, "subject", target, "err", err)
		return d.reply(ctx, msg.ChatID, fmt.Sprintf("⚠️ Delivery failed: %v", err))
	}
	adminCommands.WithLabelValues("reply").Inc()
	return d.reply(ctx, msg.ChatID, "✅ Reply sent.")
}
