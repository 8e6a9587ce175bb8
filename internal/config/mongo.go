package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Posts collection: the compound unique index is the final dedup guard
	// for the sync engine; the rest serve the query/gateway read paths.
	postsCollection := db.Collection("posts")
	postIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account", Value: 1}, {Key: "post_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "account", Value: 1}, {Key: "state", Value: 1}, {Key: "posted_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "account", Value: 1}, {Key: "posted_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "account", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	}
	_, err := postsCollection.Indexes().CreateMany(context.Background(), postIndexes)
	if err != nil {
		return err
	}

	// Sessions collection: one persisted session per account.
	sessionsCollection := db.Collection("sessions")
	sessionIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err = sessionsCollection.Indexes().CreateMany(context.Background(), sessionIndexes)
	if err != nil {
		return err
	}

	return nil
}
