package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"foodmap-backend/models"
)

// SessionStore persists one authenticated session per account. Save is an
// atomic replace, so readers never see a partially written token.
type SessionStore struct {
	collection *mongo.Collection
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{collection: db.Collection("sessions")}
}

// Load reads the persisted session for an account without validating it
// against the external source.
func (s *SessionStore) Load(ctx context.Context, account string) (*models.Session, error) {
	var session models.Session
	err := s.collection.FindOne(ctx, bson.M{"account": account}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &session, nil
}

// Save overwrites the persisted session for the account.
func (s *SessionStore) Save(ctx context.Context, session *models.Session) error {
	_, err := s.collection.ReplaceOne(
		ctx,
		bson.M{"account": session.Account},
		session,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the persisted session (logout). Clearing an absent session
// is not an error.
func (s *SessionStore) Clear(ctx context.Context, account string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"account": account})
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
