package models

import (
	"time"
)

// Processing states for a saved post record. A record is created unparsed,
// and the annotator moves it to parsed or parse_failed through the gateway.
const (
	StateUnparsed    = "unparsed"
	StateParsed      = "parsed"
	StateParseFailed = "parse_failed"
)

// Media kinds stored on a post record.
const (
	MediaImage = "image"
	MediaVideo = "video"
)

// MediaRef is a single media item owned by a post record.
type MediaRef struct {
	Type        string `bson:"type" json:"type"` // image, video
	URL         string `bson:"url" json:"url"`
	StoragePath string `bson:"storage_path,omitempty" json:"storage_path,omitempty"`
}

// PostRecord is one saved Instagram post captured for an account.
// PostID, Author and PostedAt are immutable after creation; State and the
// parsed fields are owned by the annotation pipeline.
type PostRecord struct {
	Account       string     `bson:"account" json:"account"`
	PostID        string     `bson:"post_id" json:"post_id"`
	Author        string     `bson:"author" json:"author"`
	Caption       string     `bson:"caption" json:"caption"`
	Media         []MediaRef `bson:"media,omitempty" json:"media,omitempty"`
	PostURL       string     `bson:"post_url" json:"post_url"`
	Likes         int        `bson:"likes" json:"likes"`
	Comments      int        `bson:"comments" json:"comments"`
	PostedAt      time.Time  `bson:"posted_at" json:"posted_at"`
	State         string     `bson:"state" json:"state"` // unparsed, parsed, parse_failed
	ParsedStore   string     `bson:"parsed_store,omitempty" json:"parsed_store,omitempty"`
	ParsedAddress string     `bson:"parsed_address,omitempty" json:"parsed_address,omitempty"`
	ParseError    string     `bson:"parse_error,omitempty" json:"parse_error,omitempty"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
}
