package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/realmrv/raidlink-bot/internal/database/models"
)

// SQLiteRaidTopicRepository implements RaidTopicRepository on the raid_topics table.
type SQLiteRaidTopicRepository struct {
	db *sql.DB
}

// NewSQLiteRaidTopicRepository creates a new raid-topic repository.
func NewSQLiteRaidTopicRepository(db *sql.DB) *SQLiteRaidTopicRepository {
	return &SQLiteRaidTopicRepository{db: db}
}

func (r *SQLiteRaidTopicRepository) Upsert(ctx context.Context, chatID int64, topicID int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO raid_topics (topic_chat, topic_id) VALUES (?, ?)
		ON CONFLICT (topic_chat) DO UPDATE SET topic_id = excluded.topic_id
	`, chatID, topicID)
	if err != nil {
		return fmt.Errorf("failed to upsert raid topic for chat %d: %w", chatID, err)
	}
	return nil
}

func (r *SQLiteRaidTopicRepository) All(ctx context.Context) ([]models.RaidTopic, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT topic_chat, topic_id FROM raid_topics`)
	if err != nil {
		return nil, fmt.Errorf("failed to list raid topics: %w", err)
	}
	defer rows.Close()

	var raidTopics []models.RaidTopic
	for rows.Next() {
		var rt models.RaidTopic
		if err := rows.Scan(&rt.ChatID, &rt.TopicID); err != nil {
			return nil, fmt.Errorf("failed to scan raid topic: %w", err)
		}
		raidTopics = append(raidTopics, rt)
	}
	return raidTopics, rows.Err()
}

// SQLiteChatLinkRepository implements ChatLinkRepository on the linked_chats table.
type SQLiteChatLinkRepository struct {
	db *sql.DB
}

// NewSQLiteChatLinkRepository creates a new chat-link repository.
func NewSQLiteChatLinkRepository(db *sql.DB) *SQLiteChatLinkRepository {
	return &SQLiteChatLinkRepository{db: db}
}

func (r *SQLiteChatLinkRepository) Insert(ctx context.Context, satelliteChatID, primaryChatID int64) (bool, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO linked_chats (linked_chat_id, chat_id) VALUES (?, ?)
	`, satelliteChatID, primaryChatID)
	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to link chat %d to %d: %w", satelliteChatID, primaryChatID, err)
	}
	return true, nil
}

func (r *SQLiteChatLinkRepository) Delete(ctx context.Context, satelliteChatID, primaryChatID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM linked_chats WHERE linked_chat_id = ? AND chat_id = ?
	`, satelliteChatID, primaryChatID)
	if err != nil {
		return false, fmt.Errorf("failed to unlink chat %d from %d: %w", satelliteChatID, primaryChatID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read unlink result: %w", err)
	}
	return affected > 0, nil
}

func (r *SQLiteChatLinkRepository) All(ctx context.Context) ([]models.ChatLink, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT linked_chat_id, chat_id FROM linked_chats`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat links: %w", err)
	}
	defer rows.Close()

	var links []models.ChatLink
	for rows.Next() {
		var l models.ChatLink
		if err := rows.Scan(&l.SatelliteChatID, &l.PrimaryChatID); err != nil {
			return nil, fmt.Errorf("failed to scan chat link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
