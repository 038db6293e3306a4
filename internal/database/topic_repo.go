package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/realmrv/raidlink-bot/internal/database/models"
)

// SQLiteTopicRepository implements TopicRepository on the topics table.
type SQLiteTopicRepository struct {
	db *sql.DB
}

// NewSQLiteTopicRepository creates a new topic repository.
func NewSQLiteTopicRepository(db *sql.DB) *SQLiteTopicRepository {
	return &SQLiteTopicRepository{db: db}
}

func (r *SQLiteTopicRepository) Insert(ctx context.Context, chatID int64, topicID int, name string) (bool, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO topics (topic_chat, topic_id, topic_name) VALUES (?, ?, ?)
	`, chatID, topicID, name)
	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert topic (%d, %d): %w", chatID, topicID, err)
	}
	return true, nil
}

func (r *SQLiteTopicRepository) Upsert(ctx context.Context, chatID int64, topicID int, name string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO topics (topic_chat, topic_id, topic_name) VALUES (?, ?, ?)
		ON CONFLICT (topic_chat, topic_id) DO UPDATE SET topic_name = excluded.topic_name
	`, chatID, topicID, name)
	if err != nil {
		return fmt.Errorf("failed to upsert topic (%d, %d): %w", chatID, topicID, err)
	}
	return nil
}

func (r *SQLiteTopicRepository) Get(ctx context.Context, chatID int64, topicID int) (string, bool, error) {
	var name string
	err := r.db.QueryRowContext(ctx, `
		SELECT topic_name FROM topics WHERE topic_chat = ? AND topic_id = ?
	`, chatID, topicID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query topic (%d, %d): %w", chatID, topicID, err)
	}
	return name, true, nil
}

func (r *SQLiteTopicRepository) All(ctx context.Context) ([]models.Topic, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT topic_chat, topic_id, topic_name FROM topics`)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []models.Topic
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ChatID, &t.TopicID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
