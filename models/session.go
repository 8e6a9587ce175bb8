package models

import (
	"time"
)

// Session is the persisted authentication artifact for one account.
// The stored token is the source of truth across restarts; it is removed
// only on explicit logout.
type Session struct {
	Account   string    `bson:"account" json:"account"`
	SessionID string    `bson:"session_id" json:"-"`
	CSRFToken string    `bson:"csrf_token" json:"-"`
	UserAgent string    `bson:"user_agent,omitempty" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	Valid     bool      `bson:"valid" json:"valid"`
}
