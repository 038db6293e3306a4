package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Open opens (creating if necessary) the sqlite database at path, enables
// write-ahead logging before any other schema operation, and creates the
// schema. The returned handle is limited to a single pooled connection:
// sqlite allows one writer at a time and a single connection keeps PRAGMA
// state consistent.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode = WAL`).Scan(&mode); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		db.Close()
		return nil, fmt.Errorf("could not enable WAL mode, journal_mode is %q", mode)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tw_posts (
			tw_username TEXT NOT NULL,
			tw_post_id INTEGER NOT NULL,
			tg_msg_by INTEGER NOT NULL,
			tg_msg_at INTEGER NOT NULL,
			tg_msg_chat INTEGER NOT NULL,
			tg_msg_id INTEGER NOT NULL,
			tg_msg_topic INTEGER,
			url TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS topics (
			topic_chat INTEGER NOT NULL,
			topic_id INTEGER NOT NULL,
			topic_name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raid_topics (
			topic_chat INTEGER NOT NULL UNIQUE,
			topic_id INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS linked_chats (
			linked_chat_id INTEGER NOT NULL,
			chat_id INTEGER NOT NULL,
			UNIQUE (chat_id, linked_chat_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tw_posts
			ON tw_posts (tw_username, tw_post_id, tg_msg_chat)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_topics
			ON topics (topic_chat, topic_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a sqlite uniqueness-constraint
// violation. Repositories use it to turn the constraint into control flow;
// every other store error propagates as-is.
func IsUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT,
		sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
