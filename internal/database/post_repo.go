package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/realmrv/raidlink-bot/internal/database/models"
)

// SQLitePostRepository implements PostRepository on the tw_posts table.
type SQLitePostRepository struct {
	db *sql.DB
}

// NewSQLitePostRepository creates a new post repository.
func NewSQLitePostRepository(db *sql.DB) *SQLitePostRepository {
	return &SQLitePostRepository{db: db}
}

// RecordOrFetch attempts the insert and, on a uniqueness violation, reads the
// existing row inside the same transaction. The unique index on
// (tw_username, tw_post_id, tg_msg_chat) is the sole arbiter between racing
// callers; there is deliberately no pre-check read.
func (r *SQLitePostRepository) RecordOrFetch(ctx context.Context, post models.Post) (InsertResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return InsertResult{}, fmt.Errorf("failed to begin dedup transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tw_posts (tw_username, tw_post_id, tg_msg_by, tg_msg_at, tg_msg_chat, tg_msg_id, tg_msg_topic, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		post.Handle,
		post.PostID,
		post.PostedBy,
		post.PostedAt,
		post.ChatID,
		post.MessageID,
		nullableInt(post.TopicID),
		nullableString(post.URL),
	)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return InsertResult{}, fmt.Errorf("failed to commit dedup insert: %w", err)
		}
		return InsertResult{Inserted: true, Record: post}, nil
	}
	if !IsUniqueViolation(err) {
		return InsertResult{}, fmt.Errorf("failed to insert post record: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT tw_username, tw_post_id, tg_msg_by, tg_msg_at, tg_msg_chat, tg_msg_id, tg_msg_topic, url
		FROM tw_posts
		WHERE tw_username = ? AND tw_post_id = ? AND tg_msg_chat = ?
	`, post.Handle, post.PostID, post.ChatID)

	var existing models.Post
	var topicID sql.NullInt64
	var url sql.NullString
	if err := row.Scan(
		&existing.Handle,
		&existing.PostID,
		&existing.PostedBy,
		&existing.PostedAt,
		&existing.ChatID,
		&existing.MessageID,
		&topicID,
		&url,
	); err != nil {
		return InsertResult{}, fmt.Errorf("failed to fetch existing post record: %w", err)
	}
	if topicID.Valid {
		t := int(topicID.Int64)
		existing.TopicID = &t
	}
	if url.Valid {
		u := url.String
		existing.URL = &u
	}
	if err := tx.Commit(); err != nil {
		return InsertResult{}, fmt.Errorf("failed to commit dedup fetch: %w", err)
	}
	return InsertResult{Inserted: false, Record: existing}, nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
