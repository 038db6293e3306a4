package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"

	"github.com/realmrv/raidlink-bot/internal/database"
	"github.com/realmrv/raidlink-bot/internal/database/models"
	"github.com/realmrv/raidlink-bot/internal/links"
	"github.com/realmrv/raidlink-bot/internal/locales"
	"github.com/realmrv/raidlink-bot/internal/markup"
	"github.com/realmrv/raidlink-bot/internal/observability"
	"github.com/realmrv/raidlink-bot/internal/registry"
	"github.com/realmrv/raidlink-bot/internal/topics"
	"github.com/realmrv/raidlink-bot/pkg/telegoapi"
)

// Config carries the engine's collaborators.
type Config struct {
	Bot               telegoapi.BotAPI
	Posts             database.PostRepository
	Registry          *registry.Registry
	Resolver          *topics.Resolver
	Reporter          *observability.Reporter
	Events            database.EventLogger
	BotUsername       string
	SelfDestructDelay time.Duration
}

// Engine applies the dedup pipeline to incoming messages: it extracts post
// links from the HTML markup, records first sightings, rewrites duplicates
// into annotations, and routes fresh links into the chat's raid topic.
type Engine struct {
	bot               telegoapi.BotAPI
	posts             database.PostRepository
	registry          *registry.Registry
	resolver          *topics.Resolver
	reporter          *observability.Reporter
	events            database.EventLogger
	botUsername       string
	selfDestructDelay time.Duration
}

// New creates a dedup engine.
func New(cfg Config) *Engine {
	return &Engine{
		bot:               cfg.Bot,
		posts:             cfg.Posts,
		registry:          cfg.Registry,
		resolver:          cfg.Resolver,
		reporter:          cfg.Reporter,
		events:            cfg.Events,
		botUsername:       cfg.BotUsername,
		selfDestructDelay: cfg.SelfDestructDelay,
	}
}

// runOptions tune a single pipeline pass.
type runOptions struct {
	// ignoreDuplicates records sightings but suppresses every duplicate
	// annotation and notice.
	ignoreDuplicates bool
	// skipReforward stops after recording, sending nothing. Used for
	// messages the bot itself already placed in the raid topic.
	skipReforward bool
	// stripPrefix removes a leading command (plus the bot's @mention) from
	// the markup before processing.
	stripPrefix string
}

// Process runs the pipeline on an incoming chat message. Messages from a
// satellite chat are first mirrored into the primary chat's raid topic and
// then recorded against the primary chat, so both chats share one dedup
// scope.
func (e *Engine) Process(ctx context.Context, msg *telego.Message) error {
	if primary, ok := e.registry.PrimaryChat(msg.Chat.ID); ok {
		if raidTopic, ok := e.registry.RaidTopic(primary); ok {
			return e.mirror(ctx, msg, primary, raidTopic)
		}
	}
	return e.run(ctx, msg, runOptions{})
}

// ProcessIgnoreDuplicate reruns the pipeline on a command message with
// duplicate checks disabled, stripping the command itself from the text.
func (e *Engine) ProcessIgnoreDuplicate(ctx context.Context, msg *telego.Message) error {
	return e.run(ctx, msg, runOptions{
		ignoreDuplicates: true,
		stripPrefix:      "/ignore_duplicate",
	})
}

func (e *Engine) mirror(ctx context.Context, msg *telego.Message, primary int64, raidTopic int) error {
	title, err := e.Title(ctx, msg)
	if err != nil {
		e.reporter.Error(ctx, err, "failed to build title for message %d in chat %d", msg.MessageID, msg.Chat.ID)
	}
	sent, err := e.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:          tu.ID(primary),
		Text:            title + "\n" + markup.MessageMarkup(msg),
		MessageThreadID: raidTopic,
		ParseMode:       telego.ModeHTML,
	})
	if err != nil {
		return fmt.Errorf("failed to mirror message %d from chat %d into chat %d: %w",
			msg.MessageID, msg.Chat.ID, primary, err)
	}
	// The mirrored copy already sits in the raid topic; record its links
	// without annotating or re-sending anything.
	return e.run(ctx, sent, runOptions{ignoreDuplicates: true, skipReforward: true})
}

func (e *Engine) run(ctx context.Context, msg *telego.Message, opts runOptions) error {
	text := markup.MessageMarkup(msg)
	if opts.stripPrefix != "" {
		text = strings.TrimPrefix(text, opts.stripPrefix)
		text = strings.TrimPrefix(text, "@"+e.botUsername)
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return nil
	}
	raidTopic, ok := e.registry.RaidTopic(msg.Chat.ID)
	if !ok {
		return nil
	}

	kind, err := e.resolver.ChatKind(ctx, msg.Chat.ID)
	if err != nil {
		return fmt.Errorf("failed to classify chat %d: %w", msg.Chat.ID, err)
	}
	isPrivate := kind == topics.KindPrivate

	topic, err := e.resolver.Resolve(ctx, msg)
	if err != nil {
		// A failed name resolution degrades to a null name; the sighting is
		// still recorded.
		e.reporter.Error(ctx, err, "failed to resolve topic for message %d in chat %d", msg.MessageID, msg.Chat.ID)
	}

	var topicID *int
	if topic != nil {
		id := topic.ID
		topicID = &id
	}
	var msgURL *string
	if !isPrivate {
		u := markup.MessageURL(msg.Chat.ID, msg.MessageID)
		msgURL = &u
	}
	var postedBy int64
	if msg.From != nil {
		postedBy = msg.From.ID
	}

	matches := links.Extract(text)
	dupMarker := locales.GetMessage(localizerFor(msg), "MsgMarkedDuplicate", nil, nil)
	var okParts, dupItems []string
	hasDup, hasMore := false, false
	lastEnd, end := 0, 0
	for _, m := range matches {
		res, err := e.posts.RecordOrFetch(ctx, models.Post{
			Handle:    m.Handle,
			PostID:    m.PostID,
			PostedBy:  postedBy,
			PostedAt:  msg.Date,
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
			TopicID:   topicID,
			URL:       msgURL,
		})
		if err != nil {
			return fmt.Errorf("failed to record post %s/%d: %w", m.Handle, m.PostID, err)
		}
		moreText := text[lastEnd:m.Start]
		if strings.TrimSpace(moreText) != "" {
			hasMore = true
		}
		switch {
		case res.Inserted, opts.ignoreDuplicates:
			if !res.Inserted {
				hasDup = true
				dupItems = append(dupItems, m.Text)
			}
			okParts = append(okParts, text[lastEnd:m.End])
		default:
			hasDup = true
			dupItems = append(dupItems, m.Text)
			okParts = append(okParts, moreText+markup.Link(e.duplicateHref(res.Record, isPrivate), dupMarker))
		}
		lastEnd = m.End
		end = m.End
	}
	hasURL := len(matches) > 0
	if hasURL && end != len(text) {
		hasMore = true
	}

	response := strings.Join(okParts, "") + text[end:]
	title, err := e.Title(ctx, msg)
	if err != nil {
		e.reporter.Error(ctx, err, "failed to build title for message %d in chat %d", msg.MessageID, msg.Chat.ID)
	}
	response = title + "\n" + response

	if err := e.events.LogEvent("dedup", map[string]interface{}{
		"chat_id":        msg.Chat.ID,
		"message_id":     msg.MessageID,
		"links":          len(matches),
		"has_duplicates": hasDup,
	}); err != nil {
		e.reporter.Logf(ctx, "failed to record audit event: %v", err)
	}

	if opts.skipReforward {
		return nil
	}

	if topic != nil && topic.ID == raidTopic {
		if !hasDup {
			// Fresh links already live in the raid topic; nothing to do.
			return nil
		}
		if hasMore || opts.ignoreDuplicates {
			if _, err := e.reply(ctx, msg, response); err != nil {
				return err
			}
		}
		if !opts.ignoreDuplicates {
			notice, err := e.reply(ctx, msg, e.duplicatesNotice(msg, dupItems))
			if err != nil {
				return err
			}
			e.selfDestruct(ctx, msg.Chat.ID, []int{msg.MessageID, notice.MessageID})
		}
		return nil
	}

	if hasURL && (!hasDup || opts.ignoreDuplicates) {
		_, err := e.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID:          tu.ID(msg.Chat.ID),
			Text:            response,
			MessageThreadID: raidTopic,
			ParseMode:       telego.ModeHTML,
		})
		if err != nil {
			return fmt.Errorf("failed to forward links into raid topic %d of chat %d: %w", raidTopic, msg.Chat.ID, err)
		}
	}
	return nil
}

// duplicateHref picks the annotation target for a duplicate: the original
// sighting's message URL, or the canonical post URL when no message URL
// exists.
func (e *Engine) duplicateHref(existing models.Post, isPrivate bool) string {
	if !isPrivate && existing.URL != nil {
		return *existing.URL
	}
	return links.CanonicalURL(existing.Handle, existing.PostID)
}

func (e *Engine) duplicatesNotice(msg *telego.Message, dupItems []string) string {
	loc := localizerFor(msg)
	parts := []string{locales.GetMessage(loc, "MsgDuplicatesHeader", nil, nil)}
	for _, item := range dupItems {
		parts = append(parts, strings.TrimSpace(item))
	}
	parts = append(parts, locales.GetMessage(loc, "MsgSelfDestructNote", map[string]interface{}{
		"Seconds": int(e.selfDestructDelay.Seconds()),
	}, nil))
	return strings.Join(parts, "\n\n")
}

func (e *Engine) reply(ctx context.Context, msg *telego.Message, text string) (*telego.Message, error) {
	sent, err := e.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:          tu.ID(msg.Chat.ID),
		Text:            text,
		ReplyParameters: &telego.ReplyParameters{MessageID: msg.MessageID},
		ParseMode:       telego.ModeHTML,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reply to message %d in chat %d: %w", msg.MessageID, msg.Chat.ID, err)
	}
	return sent, nil
}

// selfDestruct waits out the grace period and then deletes the messages.
// Deletion failures are logged and swallowed: the messages may already be
// gone.
func (e *Engine) selfDestruct(ctx context.Context, chatID int64, messageIDs []int) {
	time.Sleep(e.selfDestructDelay)
	err := e.bot.DeleteMessages(ctx, &telego.DeleteMessagesParams{
		ChatID:     tu.ID(chatID),
		MessageIDs: messageIDs,
	})
	if err != nil {
		e.reporter.Logf(ctx, "failed to delete messages %v in chat %d: %v", messageIDs, chatID, err)
	}
}

// Title builds the attribution line prepended to everything the bot posts on
// a user's behalf: the chat (linked when public), the topic, and the sender.
func (e *Engine) Title(ctx context.Context, msg *telego.Message) (string, error) {
	topic, err := e.resolver.Resolve(ctx, msg)
	if err != nil {
		return "", err
	}

	chatAndTopic := chatDisplayName(msg.Chat)
	if topic != nil && topic.Name != "" {
		chatAndTopic += markup.Link(markup.MessageURL(msg.Chat.ID, topic.ID), "#"+topic.Name)
	}
	if msg.From != nil && msg.Chat.ID == msg.From.ID {
		return fmt.Sprintf("<b>[%s]</b>:", chatAndTopic), nil
	}
	return fmt.Sprintf("<b>[%s]\n%s</b>:", chatAndTopic, senderDisplayName(msg.From)), nil
}

func chatDisplayName(chat telego.Chat) string {
	if chat.Title != "" {
		if chat.Username != "" {
			return markup.Link("https://t.me/"+chat.Username, chat.Title)
		}
		return markup.EscapeHTML(chat.Title)
	}
	name := chat.FirstName
	if chat.LastName != "" {
		name += " " + chat.LastName
	}
	if name == "" {
		return fmt.Sprintf("<code>%d</code>", chat.ID)
	}
	return markup.Link(fmt.Sprintf("tg://user?id=%d", chat.ID), name)
}

func senderDisplayName(from *telego.User) string {
	if from == nil {
		return ""
	}
	name := from.FirstName
	if from.LastName != "" {
		name += " " + from.LastName
	}
	return markup.Link(fmt.Sprintf("tg://user?id=%d", from.ID), name)
}

func localizerFor(msg *telego.Message) *i18n.Localizer {
	var prefs []string
	if msg.From != nil && msg.From.LanguageCode != "" {
		prefs = append(prefs, msg.From.LanguageCode)
	}
	return locales.NewLocalizer(prefs...)
}
