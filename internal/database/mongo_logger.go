package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const eventLogCollection = "event_log"

// ConnectMongo establishes a connection to the MongoDB audit database.
func ConnectMongo(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	var result bson.M
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Decode(&result); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Println("Successfully connected and pinged MongoDB!")

	return client, client.Database(dbName), nil
}

// MongoEventLogger implements EventLogger on a MongoDB collection. It is the
// optional audit trail; the sqlite tables remain the source of truth.
type MongoEventLogger struct {
	db *mongo.Database
}

// NewMongoEventLogger creates a new Mongo-backed event logger.
func NewMongoEventLogger(db *mongo.Database) *MongoEventLogger {
	return &MongoEventLogger{db: db}
}

// LogEvent writes one audit entry with a server-side timestamp.
func (m *MongoEventLogger) LogEvent(eventType string, details map[string]interface{}) error {
	collection := m.db.Collection(eventLogCollection)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := collection.InsertOne(ctx, bson.M{
		"event":   eventType,
		"details": details,
		"time":    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to insert audit event %q: %w", eventType, err)
	}
	return nil
}

// NoopEventLogger discards audit events. Used when MONGODB_URI is not set.
type NoopEventLogger struct{}

func (NoopEventLogger) LogEvent(string, map[string]interface{}) error { return nil }
