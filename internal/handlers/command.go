package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/realmrv/raidlink-bot/internal/auth"
	"github.com/realmrv/raidlink-bot/internal/locales"
	"github.com/realmrv/raidlink-bot/internal/markup"
)

// HandleStart handles the /start command: it registers the command menu and
// sends the welcome message.
func (h *CommandHandler) HandleStart(ctx context.Context, msg telego.Message) error {
	if err := h.setupCommands(ctx); err != nil {
		return h.sendError(ctx, msg, fmt.Errorf("failed to set up commands: %w", err))
	}
	h.logAction(ctx, msg, ActionCommandStart, nil)
	text := locales.GetMessage(h.getLocalizer(msg.From), "MsgStart", nil, nil)
	_, err := h.reply(ctx, msg, text)
	return err
}

// HandleHelp handles the /help command.
func (h *CommandHandler) HandleHelp(ctx context.Context, msg telego.Message) error {
	loc := h.getLocalizer(msg.From)
	var b strings.Builder
	b.WriteString(locales.GetMessage(loc, "MsgHelpHeader", nil, nil) + "\n")
	for _, cmd := range h.commands {
		b.WriteString(fmt.Sprintf("/%s - %s\n", cmd.Command, locales.GetMessage(loc, cmd.Description, nil, nil)))
	}
	h.logAction(ctx, msg, ActionCommandHelp, nil)
	_, err := h.reply(ctx, msg, b.String())
	return err
}

// HandleSetRaidTopic designates the topic the command was sent in as the
// chat's raid topic.
func (h *CommandHandler) HandleSetRaidTopic(ctx context.Context, msg telego.Message) error {
	ok, err := h.requireTopicsChat(ctx, msg, "set_raid_topic")
	if !ok || err != nil {
		return err
	}
	ok, err = h.requirePermissions(ctx, msg, auth.FlagIsAdmin, auth.FlagCanChangeInfo)
	if !ok || err != nil {
		return err
	}

	topic, rerr := h.resolver.Resolve(ctx, &msg)
	if topic == nil {
		return h.sendError(ctx, msg, rerr)
	}
	if rerr != nil {
		// Name resolution failed; the designation still proceeds by id.
		h.reporter.Error(ctx, rerr, "failed to resolve topic name in chat %d", msg.Chat.ID)
	}

	if err := h.raidTopics.Upsert(ctx, msg.Chat.ID, topic.ID); err != nil {
		return h.sendError(ctx, msg, err)
	}
	h.registry.SetRaidTopic(msg.Chat.ID, topic.ID)

	text := locales.GetMessage(h.getLocalizer(msg.From), "MsgRaidTopicSet", map[string]interface{}{
		"Topic": markup.Link(markup.MessageURL(msg.Chat.ID, topic.ID), topic.Name),
	}, nil)
	sent, err := h.reply(ctx, msg, text)
	if err != nil {
		return err
	}
	h.logExchange(ctx, msg, text)
	h.logAction(ctx, msg, ActionCommandSetRaidTopic, map[string]interface{}{"topic_id": topic.ID})
	h.selfDestruct(ctx, msg.Chat.ID, msg.MessageID, sent.MessageID)
	return nil
}

// HandleRaidTopic reports the chat's configured raid topic.
func (h *CommandHandler) HandleRaidTopic(ctx context.Context, msg telego.Message) error {
	ok, err := h.requireTopicsChat(ctx, msg, "raid_topic")
	if !ok || err != nil {
		return err
	}
	ok, err = h.requirePermissions(ctx, msg, auth.FlagIsAdmin, auth.FlagCanChangeInfo)
	if !ok || err != nil {
		return err
	}

	loc := h.getLocalizer(msg.From)
	topicID, ok := h.registry.RaidTopic(msg.Chat.ID)
	if !ok {
		return h.ephemeralReply(ctx, msg, locales.GetMessage(loc, "MsgRaidTopicNotSet", nil, nil))
	}

	name, nerr := h.resolver.Name(ctx, &msg, topicID)
	if nerr != nil {
		h.reporter.Error(ctx, nerr, "failed to resolve raid topic name in chat %d", msg.Chat.ID)
	}
	text := locales.GetMessage(loc, "MsgRaidTopicIs", map[string]interface{}{
		"Topic": markup.Link(markup.MessageURL(msg.Chat.ID, topicID), name),
	}, nil)
	sent, err := h.reply(ctx, msg, text)
	if err != nil {
		return err
	}
	h.logExchange(ctx, msg, text)
	h.logAction(ctx, msg, ActionCommandRaidTopic, map[string]interface{}{"topic_id": topicID})
	h.selfDestruct(ctx, msg.Chat.ID, msg.MessageID, sent.MessageID)
	return nil
}

// HandleLinkChat handles /link_chat: the target chat becomes a satellite of
// the current chat.
func (h *CommandHandler) HandleLinkChat(ctx context.Context, msg telego.Message) error {
	return h.linkChat(ctx, msg, "link_chat", false)
}

// HandleUnlinkChat handles /unlink_chat.
func (h *CommandHandler) HandleUnlinkChat(ctx context.Context, msg telego.Message) error {
	return h.linkChat(ctx, msg, "unlink_chat", true)
}

func (h *CommandHandler) linkChat(ctx context.Context, msg telego.Message, command string, undo bool) error {
	ok, err := h.requirePermissions(ctx, msg, auth.FlagIsAdmin, auth.FlagCanChangeInfo)
	if !ok || err != nil {
		return err
	}

	loc := h.getLocalizer(msg.From)
	target, errKey, err := h.resolveLinkTarget(ctx, h.commandArgument(msg, command))
	if err != nil {
		return h.sendError(ctx, msg, err)
	}
	if errKey != "" {
		_, err := h.reply(ctx, msg, locales.GetMessage(loc, errKey, nil, nil))
		return err
	}
	if target.id == msg.Chat.ID {
		_, err := h.reply(ctx, msg, locales.GetMessage(loc, "MsgCannotLinkSameChat", nil, nil))
		return err
	}

	var text string
	action := ActionCommandLinkChat
	if undo {
		action = ActionCommandUnlinkChat
		removed, err := h.chatLinks.Delete(ctx, target.id, msg.Chat.ID)
		if err != nil {
			return h.sendError(ctx, msg, err)
		}
		if !removed {
			_, err := h.reply(ctx, msg, locales.GetMessage(loc, "MsgChatAlreadyUnlinked", nil, nil))
			return err
		}
		h.registry.UnlinkChat(target.id)
		text = locales.GetMessage(loc, "MsgChatUnlinked", map[string]interface{}{
			"Chat": markup.Link(target.link, target.title),
		}, nil)
	} else {
		added, err := h.chatLinks.Insert(ctx, target.id, msg.Chat.ID)
		if err != nil {
			return h.sendError(ctx, msg, err)
		}
		if !added {
			_, err := h.reply(ctx, msg, locales.GetMessage(loc, "MsgChatAlreadyLinked", nil, nil))
			return err
		}
		h.registry.LinkChat(target.id, msg.Chat.ID)
		text = locales.GetMessage(loc, "MsgChatLinked", map[string]interface{}{
			"Chat": markup.Link(target.link, target.title),
		}, nil)
	}

	if _, err := h.reply(ctx, msg, text); err != nil {
		return err
	}
	h.logExchange(ctx, msg, text)
	h.logAction(ctx, msg, action, map[string]interface{}{"target_chat_id": target.id})
	return nil
}

type linkTarget struct {
	id    int64
	link  string
	title string
}

// resolveLinkTarget parses a /link_chat argument (numeric id, @username or
// t.me link), resolves the chat, and verifies the bot is a member. A
// user-correctable problem comes back as a message key; only infrastructure
// failures come back as errors.
func (h *CommandHandler) resolveLinkTarget(ctx context.Context, arg string) (linkTarget, string, error) {
	if arg == "" {
		return linkTarget{}, "MsgInvalidChatID", nil
	}
	if strings.Contains(arg, "+") {
		// Invite links point at private chats.
		return linkTarget{}, "MsgLinkedChatMustBePublic", nil
	}

	var chatID telego.ChatID
	switch {
	case strings.HasPrefix(arg, "@"):
		chatID = tu.Username(arg)
	case strings.Contains(arg, "t.me/"):
		_, username, _ := strings.Cut(arg, "t.me/")
		username = strings.TrimRight(username, "/")
		if username == "" {
			return linkTarget{}, "MsgInvalidChatID", nil
		}
		chatID = tu.Username("@" + username)
	default:
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return linkTarget{}, "MsgInvalidChatID", nil
		}
		chatID = tu.ID(id)
	}

	chat, err := h.bot.GetChat(ctx, &telego.GetChatParams{ChatID: chatID})
	if err != nil {
		return linkTarget{}, "MsgInvalidChatID", nil
	}
	if chat.Username == "" {
		return linkTarget{}, "MsgLinkedChatMustBePublic", nil
	}
	member, err := h.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(chat.ID),
		UserID: h.botID,
	})
	if err != nil {
		return linkTarget{}, "MsgBotMustBeMember", nil
	}
	switch member.MemberStatus() {
	case telego.MemberStatusLeft, telego.MemberStatusBanned:
		return linkTarget{}, "MsgBotMustBeMember", nil
	}

	return linkTarget{
		id:    chat.ID,
		link:  "https://t.me/" + chat.Username,
		title: chat.Title,
	}, "", nil
}

// HandleIgnoreDuplicate reruns the dedup pipeline over the command's payload
// with duplicate checks disabled, then removes the command message.
func (h *CommandHandler) HandleIgnoreDuplicate(ctx context.Context, msg telego.Message) error {
	ok, err := h.requirePermissions(ctx, msg, auth.FlagIsAdmin, auth.FlagCanChangeInfo)
	if !ok || err != nil {
		return err
	}

	if h.commandArgument(msg, "ignore_duplicate") == "" {
		text := locales.GetMessage(h.getLocalizer(msg.From), "MsgIgnoreDuplicateUsage", nil, nil)
		return h.ephemeralReply(ctx, msg, text)
	}

	if err := h.engine.ProcessIgnoreDuplicate(ctx, &msg); err != nil {
		return h.sendError(ctx, msg, err)
	}
	h.logAction(ctx, msg, ActionCommandIgnoreDuplicate, nil)

	err = h.bot.DeleteMessages(ctx, &telego.DeleteMessagesParams{
		ChatID:     tu.ID(msg.Chat.ID),
		MessageIDs: []int{msg.MessageID},
	})
	if err != nil {
		h.reporter.Logf(ctx, "failed to delete command message %d in chat %d: %v", msg.MessageID, msg.Chat.ID, err)
	}
	return nil
}

// setupCommands registers the command menu with the platform.
func (h *CommandHandler) setupCommands(ctx context.Context) error {
	loc := locales.NewLocalizer()
	commands := make([]telego.BotCommand, 0, len(h.commands))
	for _, cmd := range h.commands {
		commands = append(commands, telego.BotCommand{
			Command:     cmd.Command,
			Description: locales.GetMessage(loc, cmd.Description, nil, nil),
		})
	}
	return h.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands})
}
