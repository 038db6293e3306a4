package topics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/realmrv/raidlink-bot/internal/database"
	"github.com/realmrv/raidlink-bot/internal/observability"
	"github.com/realmrv/raidlink-bot/pkg/telegoapi"
)

// Kind classifies a chat for topic resolution. Kind does not change at
// runtime in this model, so it is cached indefinitely per chat.
type Kind string

const (
	KindPrivate Kind = "private"
	KindTopics  Kind = "topics"
	KindGroup   Kind = "group"
)

const (
	// GeneralTopicID is the implicit default topic of every forum chat.
	GeneralTopicID   = 1
	generalTopicName = "General"

	// maxWalkHops bounds the reply-chain walk. The chain from a message to
	// its topic root is normally one hop; anything past this is a malformed
	// reply graph.
	maxWalkHops = 64
)

var (
	// ErrTopicWalkExceeded is returned when the reply-chain walk runs past
	// maxWalkHops without reaching the topic root.
	ErrTopicWalkExceeded = errors.New("topic reply-chain walk exceeded hop bound")
	// ErrTopicNotResolvable is returned when the walk cannot reach a
	// retrievable topic-creation message.
	ErrTopicNotResolvable = errors.New("topic name not resolvable")
)

// Info is a resolved topic identity.
type Info struct {
	ID   int
	Name string
}

// MessageFetcher retrieves a previously seen message. A miss is not an
// error: events arrive out of order and a parent may simply not be cached
// yet, in which case only the current resolution fails.
type MessageFetcher interface {
	GetMessage(chatID int64, messageID int) (*telego.Message, bool)
}

type topicKey struct {
	chatID  int64
	topicID int
}

// Resolver determines the (topic id, topic name) identity of an event's
// conversational context. Names resolve through three layers: in-memory
// cache, the topics table, and as a slow path a walk up the reply chain to
// the topic's creation message.
type Resolver struct {
	bot      telegoapi.BotAPI
	repo     database.TopicRepository
	fetcher  MessageFetcher
	reporter *observability.Reporter

	kinds sync.Map // chat id → Kind
	names sync.Map // topicKey → string
}

// NewResolver creates a topic resolver.
func NewResolver(bot telegoapi.BotAPI, repo database.TopicRepository, fetcher MessageFetcher, reporter *observability.Reporter) *Resolver {
	return &Resolver{bot: bot, repo: repo, fetcher: fetcher, reporter: reporter}
}

// WarmCache preloads the name cache from the topics table.
func (r *Resolver) WarmCache(ctx context.Context) error {
	all, err := r.repo.All(ctx)
	if err != nil {
		return err
	}
	for _, t := range all {
		r.names.Store(topicKey{t.ChatID, t.TopicID}, t.Name)
	}
	return nil
}

// ChatKind resolves and caches whether a chat is private, topics-enabled or
// a plain group.
func (r *Resolver) ChatKind(ctx context.Context, chatID int64) (Kind, error) {
	if v, ok := r.kinds.Load(chatID); ok {
		return v.(Kind), nil
	}
	chat, err := r.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return "", fmt.Errorf("failed to get chat %d: %w", chatID, err)
	}
	kind := KindGroup
	switch {
	case chat.Type == telego.ChatTypePrivate:
		kind = KindPrivate
	case chat.IsForum:
		kind = KindTopics
	}
	r.kinds.Store(chatID, kind)
	return kind, nil
}

// Resolve returns the topic identity of a message's context, or nil for
// chats without topics. When the name cannot be resolved the returned Info
// still carries the topic id together with the error, so callers can proceed
// with a null name after tracing the failure.
func (r *Resolver) Resolve(ctx context.Context, msg *telego.Message) (*Info, error) {
	kind, err := r.ChatKind(ctx, msg.Chat.ID)
	if err != nil {
		return nil, err
	}
	if kind != KindTopics {
		return nil, nil
	}

	topicID := GeneralTopicID
	if msg.IsTopicMessage {
		if msg.MessageThreadID != 0 {
			topicID = msg.MessageThreadID
		} else if msg.ReplyToMessage != nil {
			// Older-platform compatibility: no thread id, fall back to the
			// direct reply target.
			topicID = msg.ReplyToMessage.MessageID
		}
	}

	name, err := r.resolveName(ctx, msg, topicID)
	if err != nil {
		return &Info{ID: topicID}, err
	}
	return &Info{ID: topicID, Name: name}, nil
}

// Name resolves the name of an arbitrary topic id, using msg as the walk
// starting point when the name is not yet known.
func (r *Resolver) Name(ctx context.Context, msg *telego.Message, topicID int) (string, error) {
	return r.resolveName(ctx, msg, topicID)
}

// HandleTopicService consumes a forum-topic creation or rename service
// message, upserting the persistent row and then the cache. This keeps stale
// cached names from persisting indefinitely, independent of message traffic.
func (r *Resolver) HandleTopicService(ctx context.Context, msg *telego.Message) error {
	var name string
	switch {
	case msg.ForumTopicCreated != nil:
		name = msg.ForumTopicCreated.Name
	case msg.ForumTopicEdited != nil:
		name = msg.ForumTopicEdited.Name
	default:
		return nil
	}
	if name == "" {
		// Icon-only edits and topic closures carry no name.
		return nil
	}
	topicID := msg.MessageThreadID
	if topicID == 0 {
		topicID = msg.MessageID
	}
	if err := r.repo.Upsert(ctx, msg.Chat.ID, topicID, name); err != nil {
		return err
	}
	r.names.Store(topicKey{msg.Chat.ID, topicID}, name)
	return nil
}

func (r *Resolver) resolveName(ctx context.Context, msg *telego.Message, topicID int) (string, error) {
	key := topicKey{msg.Chat.ID, topicID}
	if v, ok := r.names.Load(key); ok {
		return v.(string), nil
	}

	var name string
	if topicID == GeneralTopicID {
		name = generalTopicName
	} else {
		stored, ok, err := r.repo.Get(ctx, msg.Chat.ID, topicID)
		if err != nil {
			return "", err
		}
		if ok {
			r.names.Store(key, stored)
			return stored, nil
		}
		name, err = r.walk(msg, topicID)
		if err != nil {
			return "", err
		}
	}

	inserted, err := r.repo.Insert(ctx, msg.Chat.ID, topicID, name)
	if err != nil {
		return name, err
	}
	if !inserted {
		// Lost the insert race: prefer whatever the winner stored.
		if v, ok := r.names.Load(key); ok {
			return v.(string), nil
		}
		stored, ok, err := r.repo.Get(ctx, msg.Chat.ID, topicID)
		if err == nil && ok {
			r.names.Store(key, stored)
			return stored, nil
		}
		r.reporter.Logf(ctx, "topic key not found: (%d, %d)", msg.Chat.ID, topicID)
	}
	r.names.Store(key, name)
	return name, nil
}

// walk steps backward through the reply chain until it reaches the message
// whose id equals topicID and reads its topic-creation payload. Embedded
// reply objects are shallow, so each step is refreshed from the message
// cache when possible; a missing parent fails only this resolution.
func (r *Resolver) walk(msg *telego.Message, topicID int) (string, error) {
	cur := msg
	for hops := 0; hops < maxWalkHops; hops++ {
		if cur.MessageID == topicID {
			if cur.ForumTopicCreated != nil {
				return cur.ForumTopicCreated.Name, nil
			}
			return "", fmt.Errorf("%w: message %d in chat %d carries no topic-creation payload",
				ErrTopicNotResolvable, topicID, msg.Chat.ID)
		}
		parent := cur.ReplyToMessage
		if parent == nil {
			return "", fmt.Errorf("%w: reply chain from message %d broke before topic %d in chat %d",
				ErrTopicNotResolvable, msg.MessageID, topicID, msg.Chat.ID)
		}
		if full, ok := r.fetcher.GetMessage(msg.Chat.ID, parent.MessageID); ok {
			cur = full
		} else {
			cur = parent
		}
	}
	return "", fmt.Errorf("%w: %d hops from message %d toward topic %d in chat %d",
		ErrTopicWalkExceeded, maxWalkHops, msg.MessageID, topicID, msg.Chat.ID)
}
