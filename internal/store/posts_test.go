package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"foodmap-backend/models"
)

// Integration tests; require a reachable MongoDB.
func testDB(t *testing.T) *mongo.Database {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Skipf("mongo connect failed: %v", err)
	}
	db := client.Database("foodmap_test")

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		db.Drop(ctx)
		client.Disconnect(ctx)
	})
	return db
}

func samplePost(account, id string, postedAt time.Time) *models.PostRecord {
	return &models.PostRecord{
		Account:  account,
		PostID:   id,
		Author:   "foodie",
		Caption:  "best pasta in town",
		PostedAt: postedAt,
	}
}

func TestInsertAndExists(t *testing.T) {
	store := NewPostStore(testDB(t))
	ctx := context.Background()

	known, err := store.Exists(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if known {
		t.Fatal("post should not exist yet")
	}

	if err := store.Insert(ctx, samplePost("alice", "p1", time.Now().UTC())); err != nil {
		t.Fatalf("insert: %v", err)
	}

	known, err = store.Exists(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !known {
		t.Fatal("post should exist after insert")
	}

	// Same id under another account is a distinct record
	known, _ = store.Exists(ctx, "bob", "p1")
	if known {
		t.Fatal("accounts must be isolated")
	}
}

func TestInsertDuplicateReturnsConflict(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// The production index set includes the unique {account, post_id} guard
	_, err := db.Collection("posts").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "account", Value: 1}, {Key: "post_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		t.Fatalf("create index: %v", err)
	}

	store := NewPostStore(db)
	if err := store.Insert(ctx, samplePost("alice", "p1", time.Now().UTC())); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err = store.Insert(ctx, samplePost("alice", "p1", time.Now().UTC()))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// Other accounts are unaffected by the collision
	if err := store.Insert(ctx, samplePost("bob", "p1", time.Now().UTC())); err != nil {
		t.Fatalf("insert under other account: %v", err)
	}
}

func TestInsertDefaultsToUnparsed(t *testing.T) {
	store := NewPostStore(testDB(t))
	ctx := context.Background()

	if err := store.Insert(ctx, samplePost("alice", "p1", time.Now().UTC())); err != nil {
		t.Fatalf("insert: %v", err)
	}

	records, err := store.ListUnparsed(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("list unparsed: %v", err)
	}
	if len(records) != 1 || records[0].State != models.StateUnparsed {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestParsedLifecycle(t *testing.T) {
	store := NewPostStore(testDB(t))
	ctx := context.Background()

	if err := store.Insert(ctx, samplePost("alice", "p1", time.Now().UTC())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.UpdateParsed(ctx, "alice", "p1", "Pasta Place", "12 Noodle Ave"); err != nil {
		t.Fatalf("update parsed: %v", err)
	}

	unparsed, err := store.ListUnparsed(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("list unparsed: %v", err)
	}
	if len(unparsed) != 0 {
		t.Fatal("parsed record still in unparsed backlog")
	}

	parsed, err := store.ListParsed(ctx, "alice", 10, 0)
	if err != nil {
		t.Fatalf("list parsed: %v", err)
	}
	if len(parsed) != 1 || parsed[0].ParsedAddress != "12 Noodle Ave" {
		t.Fatalf("unexpected parsed records: %+v", parsed)
	}

	if err := store.UpdateParsed(ctx, "alice", "missing", "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestQueryKeywordAndOrdering(t *testing.T) {
	store := NewPostStore(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := samplePost("alice", "old", base)
	older.Caption = "quiet coffee corner"
	newer := samplePost("alice", "new", base.Add(time.Hour))
	newer.Caption = "amazing COFFEE roastery"

	if err := store.Insert(ctx, older); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Insert(ctx, newer); err != nil {
		t.Fatalf("insert: %v", err)
	}

	records, err := store.Query(ctx, "alice", QueryFilter{Keyword: "coffee"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("keyword match count = %d, want 2", len(records))
	}
	if records[0].PostID != "new" {
		t.Fatalf("expected newest first, got %s", records[0].PostID)
	}

	records, err = store.Query(ctx, "alice", QueryFilter{Keyword: "roastery"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 1 || records[0].PostID != "new" {
		t.Fatalf("unexpected match: %+v", records)
	}
}
