package handlers

import (
	"context"
	"time"

	"github.com/mymmrac/telego"

	"github.com/realmrv/raidlink-bot/internal/auth"
	"github.com/realmrv/raidlink-bot/internal/database"
	"github.com/realmrv/raidlink-bot/internal/dedup"
	"github.com/realmrv/raidlink-bot/internal/observability"
	"github.com/realmrv/raidlink-bot/internal/registry"
	"github.com/realmrv/raidlink-bot/internal/topics"
	"github.com/realmrv/raidlink-bot/pkg/telegoapi"
)

// Action types for the audit log.
const (
	ActionCommandStart           = "command_start"
	ActionCommandHelp            = "command_help"
	ActionCommandSetRaidTopic    = "command_set_raid_topic"
	ActionCommandRaidTopic       = "command_raid_topic"
	ActionCommandLinkChat        = "command_link_chat"
	ActionCommandUnlinkChat      = "command_unlink_chat"
	ActionCommandIgnoreDuplicate = "command_ignore_duplicate"
)

// Command maps a command string to its description key and handler.
type Command struct {
	Command     string
	Description string // locale key, localized on demand
	Handler     func(context.Context, telego.Message) error
}

// CommandHandler routes and executes the bot's commands.
type CommandHandler struct {
	bot      telegoapi.BotAPI
	engine   *dedup.Engine
	resolver *topics.Resolver
	checker  *auth.Checker
	registry *registry.Registry
	reporter *observability.Reporter

	raidTopics database.RaidTopicRepository
	chatLinks  database.ChatLinkRepository
	events     database.EventLogger

	botID             int64
	botUsername       string
	selfDestructDelay time.Duration

	commands []Command
}

// Deps carries the collaborators a CommandHandler needs.
type Deps struct {
	Bot      telegoapi.BotAPI
	Engine   *dedup.Engine
	Resolver *topics.Resolver
	Checker  *auth.Checker
	Registry *registry.Registry
	Reporter *observability.Reporter

	RaidTopics database.RaidTopicRepository
	ChatLinks  database.ChatLinkRepository
	Events     database.EventLogger

	BotID             int64
	BotUsername       string
	SelfDestructDelay time.Duration
}

// NewCommandHandler creates a command handler and registers the command set.
func NewCommandHandler(deps Deps) *CommandHandler {
	h := &CommandHandler{
		bot:               deps.Bot,
		engine:            deps.Engine,
		resolver:          deps.Resolver,
		checker:           deps.Checker,
		registry:          deps.Registry,
		reporter:          deps.Reporter,
		raidTopics:        deps.RaidTopics,
		chatLinks:         deps.ChatLinks,
		events:            deps.Events,
		botID:             deps.BotID,
		botUsername:       deps.BotUsername,
		selfDestructDelay: deps.SelfDestructDelay,
	}
	h.commands = []Command{
		{Command: "start", Description: "CmdStartDesc", Handler: h.HandleStart},
		{Command: "help", Description: "CmdHelpDesc", Handler: h.HandleHelp},
		{Command: "set_raid_topic", Description: "CmdSetRaidTopicDesc", Handler: h.HandleSetRaidTopic},
		{Command: "raid_topic", Description: "CmdRaidTopicDesc", Handler: h.HandleRaidTopic},
		{Command: "link_chat", Description: "CmdLinkChatDesc", Handler: h.HandleLinkChat},
		{Command: "unlink_chat", Description: "CmdUnlinkChatDesc", Handler: h.HandleUnlinkChat},
		{Command: "ignore_duplicate", Description: "CmdIgnoreDuplicateDesc", Handler: h.HandleIgnoreDuplicate},
	}
	return h
}

// GetCommandHandler returns the handler registered for a command string, or
// nil when the command is unknown.
func (h *CommandHandler) GetCommandHandler(command string) func(context.Context, telego.Message) error {
	for _, cmd := range h.commands {
		if cmd.Command == command {
			return cmd.Handler
		}
	}
	return nil
}

// Commands returns the registered command set.
func (h *CommandHandler) Commands() []Command {
	return h.commands
}
