package database

import (
	"context"

	"github.com/realmrv/raidlink-bot/internal/database/models"
)

// InsertResult is the outcome of an insert-if-absent-else-fetch call.
// When Inserted is false, Record carries the pre-existing row's values,
// never the rejected submission's.
type InsertResult struct {
	Inserted bool
	Record   models.Post
}

// PostRepository is the dedup store: a persistent table enforcing uniqueness
// on (handle, post id, destination chat).
type PostRepository interface {
	// RecordOrFetch atomically inserts post, or fetches the existing row on a
	// uniqueness conflict. Two concurrent calls with the same dedup key never
	// both observe Inserted=true.
	RecordOrFetch(ctx context.Context, post models.Post) (InsertResult, error)
}

// TopicRepository persists resolved topic identities.
type TopicRepository interface {
	// Insert adds a topic row if absent. Returns false (and no error) when a
	// concurrent resolution already inserted the key.
	Insert(ctx context.Context, chatID int64, topicID int, name string) (bool, error)
	// Upsert writes a topic row, overwriting the name on conflict. Used by
	// the rename listener.
	Upsert(ctx context.Context, chatID int64, topicID int, name string) error
	Get(ctx context.Context, chatID int64, topicID int) (string, bool, error)
	All(ctx context.Context) ([]models.Topic, error)
}

// RaidTopicRepository persists the raid-topic designation, one per chat.
type RaidTopicRepository interface {
	Upsert(ctx context.Context, chatID int64, topicID int) error
	All(ctx context.Context) ([]models.RaidTopic, error)
}

// ChatLinkRepository persists satellite → primary chat links.
type ChatLinkRepository interface {
	// Insert returns false when the pair already exists.
	Insert(ctx context.Context, satelliteChatID, primaryChatID int64) (bool, error)
	// Delete returns false when no such pair existed.
	Delete(ctx context.Context, satelliteChatID, primaryChatID int64) (bool, error)
	All(ctx context.Context) ([]models.ChatLink, error)
}

// EventLogger records processed events for auditing. Implementations must be
// safe to call from concurrent event handlers; failures are the caller's to
// log, never to propagate into event processing.
type EventLogger interface {
	LogEvent(eventType string, details map[string]interface{}) error
}
