package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/realmrv/raidlink-bot/internal/database"
)

// Registry mirrors the raid_topics and linked_chats tables in memory. The
// store is the source of truth; the mirror is rebuilt at startup and mutated
// only through the upsert operations below, after the backing store write
// has committed.
type Registry struct {
	raidTopics sync.Map // chat id → raid topic id (int)
	chatLinks  sync.Map // satellite chat id → primary chat id (int64)
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Load builds a registry from the persisted raid topics and chat links.
func Load(ctx context.Context, raidRepo database.RaidTopicRepository, linkRepo database.ChatLinkRepository) (*Registry, error) {
	r := New()

	raidTopics, err := raidRepo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load raid topics: %w", err)
	}
	for _, rt := range raidTopics {
		r.raidTopics.Store(rt.ChatID, rt.TopicID)
	}

	links, err := linkRepo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat links: %w", err)
	}
	for _, l := range links {
		r.chatLinks.Store(l.SatelliteChatID, l.PrimaryChatID)
	}
	return r, nil
}

// RaidTopic returns the raid topic configured for a chat.
func (r *Registry) RaidTopic(chatID int64) (int, bool) {
	v, ok := r.raidTopics.Load(chatID)
	if !ok {
		return 0, false
	}
	return v.(int), true
}

// SetRaidTopic records a raid-topic assignment, replacing any previous one.
func (r *Registry) SetRaidTopic(chatID int64, topicID int) {
	r.raidTopics.Store(chatID, topicID)
}

// PrimaryChat returns the primary chat a satellite chat is linked to.
func (r *Registry) PrimaryChat(satelliteChatID int64) (int64, bool) {
	v, ok := r.chatLinks.Load(satelliteChatID)
	if !ok {
		return 0, false
	}
	return v.(int64), true
}

// LinkChat records a satellite → primary link. A satellite links to at most
// one primary; a new link replaces the previous mapping.
func (r *Registry) LinkChat(satelliteChatID, primaryChatID int64) {
	r.chatLinks.Store(satelliteChatID, primaryChatID)
}

// UnlinkChat removes a satellite's link.
func (r *Registry) UnlinkChat(satelliteChatID int64) {
	r.chatLinks.Delete(satelliteChatID)
}
