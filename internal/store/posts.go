package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"foodmap-backend/models"
)

// PostStore is the durable record store for saved posts. Records are
// partitioned by account; the {account, post_id} unique index enforces
// uniqueness. Every mutation is a single-document synchronous commit, so the
// sync and annotation pipelines coordinate only through persisted state.
type PostStore struct {
	collection *mongo.Collection
}

func NewPostStore(db *mongo.Database) *PostStore {
	return &PostStore{collection: db.Collection("posts")}
}

// QueryFilter narrows Query results. Zero values mean "no constraint";
// Limit <= 0 falls back to a default page size.
type QueryFilter struct {
	State   string
	Keyword string
	Limit   int64
	Offset  int64
}

const defaultPageSize = 100

// Exists reports whether the post is already known for the account. This is
// the sync engine's dedup check.
func (s *PostStore) Exists(ctx context.Context, account, postID string) (bool, error) {
	count, err := s.collection.CountDocuments(
		ctx,
		bson.M{"account": account, "post_id": postID},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("exists check: %w", err)
	}
	return count > 0, nil
}

// Insert writes a new record. A duplicate post_id for the account fails with
// ErrConflict via the unique index, never by overwriting.
func (s *PostStore) Insert(ctx context.Context, record *models.PostRecord) error {
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.State == "" {
		record.State = models.StateUnparsed
	}

	_, err := s.collection.InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// UpdateParsed commits the annotator's result: sets the parsed fields,
// transitions the record to parsed and stamps updated_at.
func (s *PostStore) UpdateParsed(ctx context.Context, account, postID, storeName, address string) error {
	res, err := s.collection.UpdateOne(
		ctx,
		bson.M{"account": account, "post_id": postID},
		bson.M{
			"$set": bson.M{
				"state":          models.StateParsed,
				"parsed_store":   storeName,
				"parsed_address": address,
				"parse_error":    "",
				"updated_at":     time.Now().UTC(),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("update parsed: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkParseFailed records a failed annotation attempt.
func (s *PostStore) MarkParseFailed(ctx context.Context, account, postID, reason string) error {
	res, err := s.collection.UpdateOne(
		ctx,
		bson.M{"account": account, "post_id": postID},
		bson.M{
			"$set": bson.M{
				"state":       models.StateParseFailed,
				"parse_error": reason,
				"updated_at":  time.Now().UTC(),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("mark parse failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Query lists records for an account. Parsed queries are ordered by
// updated_at descending, everything else by posted_at descending (newest
// saved first). Keyword does a case-insensitive match over caption text.
func (s *PostStore) Query(ctx context.Context, account string, filter QueryFilter) ([]models.PostRecord, error) {
	match := bson.M{"account": account}
	if filter.State != "" {
		match["state"] = filter.State
	}
	if filter.Keyword != "" {
		match["caption"] = bson.M{"$regex": primitive.Regex{
			Pattern: regexp.QuoteMeta(filter.Keyword),
			Options: "i",
		}}
	}

	sort := bson.D{{Key: "posted_at", Value: -1}}
	if filter.State == models.StateParsed {
		sort = bson.D{{Key: "updated_at", Value: -1}}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	opts := options.Find().
		SetSort(sort).
		SetLimit(limit).
		SetSkip(filter.Offset)

	return s.find(ctx, match, opts)
}

// ListUnparsed returns unparsed records oldest-posted first so the
// annotation backlog drains in arrival order.
func (s *PostStore) ListUnparsed(ctx context.Context, account string, limit int64) ([]models.PostRecord, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "posted_at", Value: 1}}).
		SetLimit(limit)

	return s.find(ctx, bson.M{"account": account, "state": models.StateUnparsed}, opts)
}

// ListParsed returns records with a non-empty parsed address, most recently
// annotated first.
func (s *PostStore) ListParsed(ctx context.Context, account string, limit, offset int64) ([]models.PostRecord, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	match := bson.M{
		"account":        account,
		"state":          models.StateParsed,
		"parsed_address": bson.M{"$nin": bson.A{"", nil}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	return s.find(ctx, match, opts)
}

// Count returns the number of records stored for the account.
func (s *PostStore) Count(ctx context.Context, account string) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"account": account})
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

func (s *PostStore) find(ctx context.Context, match bson.M, opts *options.FindOptions) ([]models.PostRecord, error) {
	cursor, err := s.collection.Find(ctx, match, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.PostRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return records, nil
}

// IsNotFound reports whether err is the store's missing-record error,
// unwrapping as needed.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
