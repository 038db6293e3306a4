package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	AppEnv          string
	Debug           bool
	Version         string
	BotToken        string
	LogChannelID    int64
	DatabasePath    string
	SentryDSN       string
	DefaultLanguage string
	MongoDBURI      string
	MongoDBDatabase string

	// SelfDestructDelay is how long ephemeral replies (denials, duplicate
	// notices, command errors) stay visible before deletion.
	SelfDestructDelay time.Duration
	// PermissionTTL is how long a cached permission snapshot stays valid.
	PermissionTTL time.Duration
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	logChannelStr := getEnv("LOG_CHANNEL_ID", "")
	logChannelID, err := strconv.ParseInt(logChannelStr, 10, 64)
	if err != nil && logChannelStr != "" {
		return nil, fmt.Errorf("invalid LOG_CHANNEL_ID: %w", err)
	}

	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Debug:             debug,
		Version:           getEnv("VERSION", "dev"),
		BotToken:          getEnv("TELEGRAM_BOT_TOKEN", ""),
		LogChannelID:      logChannelID,
		DatabasePath:      getEnv("DATABASE_PATH", "data/raidlink.sqlite3"),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		DefaultLanguage:   getEnv("DEFAULT_LANGUAGE", "en"),
		MongoDBURI:        getEnv("MONGODB_URI", ""),
		MongoDBDatabase:   getEnv("MONGODB_DATABASE", ""),
		SelfDestructDelay: 10 * time.Second,
		PermissionTTL:     5 * time.Minute,
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.LogChannelID == 0 {
		return nil, fmt.Errorf("LOG_CHANNEL_ID is required")
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}
	if cfg.MongoDBURI == "" {
		log.Println("Warning: MONGODB_URI is not set. Event audit log disabled.")
	} else if cfg.MongoDBDatabase == "" {
		return nil, fmt.Errorf("MONGODB_DATABASE is required when MONGODB_URI is set")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
