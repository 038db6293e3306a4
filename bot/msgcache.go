package bot

import (
	"sync"

	"github.com/mymmrac/telego"
)

type cacheKey struct {
	chatID    int64
	messageID int
}

// MessageCache remembers recently seen messages per chat so the topic
// resolver can walk a reply chain whose parents arrived earlier. Bounded,
// oldest-first eviction.
type MessageCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*telego.Message
	order   []cacheKey
	limit   int
}

// NewMessageCache creates a cache holding at most limit messages.
func NewMessageCache(limit int) *MessageCache {
	return &MessageCache{
		entries: make(map[cacheKey]*telego.Message, limit),
		limit:   limit,
	}
}

// Put stores a message and, when present, its embedded reply target. The
// embedded copy matters: it may be the topic-creation root the resolver
// needs even though that message itself was never delivered to the bot.
func (c *MessageCache) Put(msg *telego.Message) {
	if msg == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(msg.Chat.ID, msg.MessageID, msg)
	if parent := msg.ReplyToMessage; parent != nil {
		c.put(msg.Chat.ID, parent.MessageID, parent)
	}
}

func (c *MessageCache) put(chatID int64, messageID int, msg *telego.Message) {
	key := cacheKey{chatID: chatID, messageID: messageID}
	if _, ok := c.entries[key]; ok {
		c.entries[key] = msg
		return
	}
	c.entries[key] = msg
	c.order = append(c.order, key)
	for len(c.order) > c.limit {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}

// GetMessage implements topics.MessageFetcher.
func (c *MessageCache) GetMessage(chatID int64, messageID int) (*telego.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.entries[cacheKey{chatID: chatID, messageID: messageID}]
	return msg, ok
}
