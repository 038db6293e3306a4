package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"

	"github.com/realmrv/raidlink-bot/internal/auth"
	"github.com/realmrv/raidlink-bot/internal/locales"
	"github.com/realmrv/raidlink-bot/internal/topics"
)

// reply sends an HTML reply to the triggering message.
func (h *CommandHandler) reply(ctx context.Context, msg telego.Message, text string) (*telego.Message, error) {
	params := tu.Message(tu.ID(msg.Chat.ID), text)
	params.ParseMode = telego.ModeHTML
	params.ReplyParameters = &telego.ReplyParameters{MessageID: msg.MessageID}
	sent, err := h.bot.SendMessage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to reply to message %d in chat %d: %w", msg.MessageID, msg.Chat.ID, err)
	}
	return sent, nil
}

// sendError reports the original error and tells the user something broke.
// The original error is returned for the update loop to capture.
func (h *CommandHandler) sendError(ctx context.Context, msg telego.Message, originalErr error) error {
	h.reporter.Error(ctx, originalErr, "command failed in chat %d", msg.Chat.ID)

	errMsg := locales.GetMessage(h.getLocalizer(msg.From), "MsgErrorGeneral", nil, nil)
	if _, err := h.reply(ctx, msg, errMsg); err != nil {
		h.reporter.Logf(ctx, "failed to deliver error notice to chat %d: %v", msg.Chat.ID, err)
	}
	return originalErr
}

// getLocalizer picks a localizer for the user's language, falling back to
// the default.
func (h *CommandHandler) getLocalizer(user *telego.User) *i18n.Localizer {
	if user != nil && user.LanguageCode != "" {
		return locales.NewLocalizer(user.LanguageCode)
	}
	return locales.NewLocalizer()
}

// selfDestruct waits out the grace period and deletes the messages. Failures
// are logged and swallowed.
func (h *CommandHandler) selfDestruct(ctx context.Context, chatID int64, messageIDs ...int) {
	time.Sleep(h.selfDestructDelay)
	err := h.bot.DeleteMessages(ctx, &telego.DeleteMessagesParams{
		ChatID:     tu.ID(chatID),
		MessageIDs: messageIDs,
	})
	if err != nil {
		h.reporter.Logf(ctx, "failed to delete messages %v in chat %d: %v", messageIDs, chatID, err)
	}
}

// ephemeralReply replies and removes both the reply and the trigger after
// the grace period.
func (h *CommandHandler) ephemeralReply(ctx context.Context, msg telego.Message, text string) error {
	sent, err := h.reply(ctx, msg, text)
	if err != nil {
		return err
	}
	h.selfDestruct(ctx, msg.Chat.ID, msg.MessageID, sent.MessageID)
	return nil
}

// commandArgument strips the leading /command (and optional @botname) from
// the message text and returns the remainder.
func (h *CommandHandler) commandArgument(msg telego.Message, command string) string {
	text := strings.TrimPrefix(msg.Text, "/"+command)
	text = strings.TrimPrefix(text, "@"+h.botUsername)
	return strings.TrimSpace(text)
}

// requireTopicsChat enforces that a command runs in a topics-enabled group.
// Returns false after notifying the user when it does not.
func (h *CommandHandler) requireTopicsChat(ctx context.Context, msg telego.Message, command string) (bool, error) {
	kind, err := h.resolver.ChatKind(ctx, msg.Chat.ID)
	if err != nil {
		return false, h.sendError(ctx, msg, err)
	}
	if kind == topics.KindTopics {
		return true, nil
	}
	text := locales.GetMessage(h.getLocalizer(msg.From), "MsgTopicsOnlyCommand", map[string]interface{}{
		"Command": "/" + command,
	}, nil)
	return false, h.ephemeralReply(ctx, msg, text)
}

// requirePermissions checks the sender's rights in the chat. On denial it
// replies with the full list of required permissions and self-destructs the
// exchange. An unknown flag or API failure is an internal error, never a
// denial.
func (h *CommandHandler) requirePermissions(ctx context.Context, msg telego.Message, flags ...auth.Flag) (bool, error) {
	if msg.From == nil {
		return false, nil
	}
	missing, err := h.checker.Missing(ctx, msg.Chat.ID, msg.From.ID, flags...)
	if err != nil {
		return false, h.sendError(ctx, msg, err)
	}
	if len(missing) == 0 {
		return true, nil
	}

	loc := h.getLocalizer(msg.From)
	var list strings.Builder
	for i, flag := range missing {
		if i > 0 {
			list.WriteString("\n")
		}
		list.WriteString(fmt.Sprintf("  - <b>%s</b>", flag))
	}
	text := strings.Join([]string{
		locales.GetMessage(loc, "MsgPermissionDeniedHeader", nil, nil),
		locales.GetMessage(loc, "MsgPermissionDeniedIntro", nil, nil),
		list.String(),
	}, "\n\n")
	return false, h.ephemeralReply(ctx, msg, text)
}

// logExchange mirrors a command and its response to the log channel,
// prefixed with the attribution title.
func (h *CommandHandler) logExchange(ctx context.Context, msg telego.Message, response string) {
	title, err := h.engine.Title(ctx, &msg)
	if err != nil {
		h.reporter.Logf(ctx, "failed to build title for log entry: %v", err)
	}
	h.reporter.Logf(ctx, "%s\n%s\n└➤%s", title, msg.Text, response)
}

// logAction records a command execution in the audit log, best effort.
func (h *CommandHandler) logAction(ctx context.Context, msg telego.Message, action string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["chat_id"] = msg.Chat.ID
	if msg.From != nil {
		details["user_id"] = msg.From.ID
	}
	if err := h.events.LogEvent(action, details); err != nil {
		h.reporter.Logf(ctx, "failed to record audit event %s: %v", action, err)
	}
}
