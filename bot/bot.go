package bot

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"

	"github.com/realmrv/raidlink-bot/internal/dedup"
	"github.com/realmrv/raidlink-bot/internal/handlers"
	"github.com/realmrv/raidlink-bot/internal/locales"
	"github.com/realmrv/raidlink-bot/internal/observability"
	"github.com/realmrv/raidlink-bot/internal/topics"
	"github.com/realmrv/raidlink-bot/pkg/telegoapi"
)

// Bot owns the update loop: it reads updates from the long-polling channel
// and routes each one, in its own goroutine, to the command handler, the
// topic rename listener or the dedup engine.
type Bot struct {
	bot         telegoapi.BotAPI
	updatesChan <-chan telego.Update
	handler     *handlers.CommandHandler
	engine      *dedup.Engine
	resolver    *topics.Resolver
	cache       *MessageCache
	reporter    *observability.Reporter
	botUsername string
	debug       bool
	ratelimiter ratelimit.Limiter
}

// Deps holds the dependencies required by the Bot.
type Deps struct {
	Bot         telegoapi.BotAPI
	UpdatesChan <-chan telego.Update
	Handler     *handlers.CommandHandler
	Engine      *dedup.Engine
	Resolver    *topics.Resolver
	Cache       *MessageCache
	Reporter    *observability.Reporter
	BotUsername string
	Debug       bool
}

// New creates a Bot instance from its dependencies.
func New(deps Deps) (*Bot, error) {
	if deps.Bot == nil {
		return nil, fmt.Errorf("bot API instance cannot be nil")
	}
	if deps.UpdatesChan == nil {
		return nil, fmt.Errorf("updates channel cannot be nil")
	}
	if deps.Handler == nil {
		return nil, fmt.Errorf("command handler cannot be nil")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("dedup engine cannot be nil")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("topic resolver cannot be nil")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("message cache cannot be nil")
	}
	if deps.Reporter == nil {
		return nil, fmt.Errorf("reporter cannot be nil")
	}
	return &Bot{
		bot:         deps.Bot,
		updatesChan: deps.UpdatesChan,
		handler:     deps.Handler,
		engine:      deps.Engine,
		resolver:    deps.Resolver,
		cache:       deps.Cache,
		reporter:    deps.Reporter,
		botUsername: deps.BotUsername,
		debug:       deps.Debug,
		ratelimiter: ratelimit.New(20),
	}, nil
}

// processUpdate routes one update. Runs in its own goroutine; panics are
// recovered and reported.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	b.ratelimiter.Take()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in processUpdate: %v\n%s", r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
		}
	}()

	processingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if update.Message == nil {
		if b.debug {
			log.Printf("Ignoring unhandled update type: %+v", update)
		}
		return
	}
	message := *update.Message
	b.cache.Put(&message)

	if message.ForumTopicCreated != nil || message.ForumTopicEdited != nil {
		if err := b.resolver.HandleTopicService(processingCtx, &message); err != nil {
			b.reporter.Error(processingCtx, err, "failed to process topic service message in chat %d", message.Chat.ID)
		}
		return
	}
	if message.From == nil {
		// Anonymous channel posts carry no sender to attribute links to.
		if b.debug {
			log.Printf("Ignoring message %d from chat %d without sender", message.MessageID, message.Chat.ID)
		}
		return
	}

	if strings.HasPrefix(message.Text, "/") {
		b.handleCommandUpdate(processingCtx, message)
		return
	}
	if message.Text != "" || message.Caption != "" {
		if err := b.engine.Process(processingCtx, &message); err != nil {
			b.reporter.Error(processingCtx, err, "failed to process message %d in chat %d", message.MessageID, message.Chat.ID)
		}
		return
	}
	if b.debug {
		log.Printf("Ignoring unhandled message type (ID: %d)", message.MessageID)
	}
}

// handleCommandUpdate dispatches a message starting with a slash. Commands
// addressed to another bot, and unknown commands in group chats, flow into
// the dedup pipeline like any other text.
func (b *Bot) handleCommandUpdate(ctx context.Context, message telego.Message) {
	token := strings.Split(message.Text, " ")[0][1:]
	command, mention, mentioned := strings.Cut(token, "@")
	if mentioned && mention != b.botUsername {
		return
	}
	logPrefix := fmt.Sprintf("[Cmd:%s User:%d]", command, message.From.ID)

	if handlerFunc := b.handler.GetCommandHandler(command); handlerFunc != nil {
		if b.debug {
			log.Printf("%s Executing handler", logPrefix)
		}
		if err := handlerFunc(ctx, message); err != nil {
			log.Printf("%s Handler error: %v", logPrefix, err)
			sentry.CaptureException(fmt.Errorf("%s handler error: %w", logPrefix, err))
		}
		return
	}

	kind, err := b.resolver.ChatKind(ctx, message.Chat.ID)
	if err != nil {
		b.reporter.Error(ctx, err, "failed to classify chat %d", message.Chat.ID)
		return
	}
	if kind != topics.KindPrivate {
		// In groups an unknown command is just a message that happens to
		// start with a slash.
		if err := b.engine.Process(ctx, &message); err != nil {
			b.reporter.Error(ctx, err, "failed to process message %d in chat %d", message.MessageID, message.Chat.ID)
		}
		return
	}

	localizer := locales.NewLocalizer(locales.GetDefaultLanguageTag().String())
	unknownCmdMsg := locales.GetMessage(localizer, "MsgErrorUnknownCommand", nil, nil)
	if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(message.Chat.ID), unknownCmdMsg)); err != nil {
		log.Printf("%s Failed to send unknown command message: %v", logPrefix, err)
	}
}

// Start begins the update processing loop and blocks until the context is
// cancelled or the updates channel closes.
func (b *Bot) Start(ctx context.Context) {
	log.Println("Listening for updates...")

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			log.Println("Context done, stopping update processing...")
			wg.Wait()
			log.Println("All update processing finished.")
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				log.Println("Updates channel closed.")
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}
