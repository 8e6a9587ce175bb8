package gateway

import (
	"context"
	"fmt"
	"strings"

	"foodmap-backend/internal/logger"
	"foodmap-backend/models"
)

// Records is the slice of the post store the gateway mediates. Implemented
// by *store.PostStore.
type Records interface {
	ListUnparsed(ctx context.Context, account string, limit int64) ([]models.PostRecord, error)
	UpdateParsed(ctx context.Context, account, postID, storeName, address string) error
	MarkParseFailed(ctx context.Context, account, postID, reason string) error
}

// Gateway hands unparsed records to the external annotation stage and
// commits its results. Claims are non-exclusive reads; only a committed
// result transitions a record, so a crashed annotator leaves records
// claimable again with no cleanup.
type Gateway struct {
	records Records
}

func New(records Records) *Gateway {
	return &Gateway{records: records}
}

// ClaimUnparsed returns up to limit unparsed records, oldest posted first.
// Records already parsed or failed are never handed out.
func (g *Gateway) ClaimUnparsed(ctx context.Context, account string, limit int64) ([]models.PostRecord, error) {
	return g.records.ListUnparsed(ctx, account, limit)
}

// CommitParsed applies one annotation result. An empty address is rejected
// so a half-filled result cannot mark the record done.
func (g *Gateway) CommitParsed(ctx context.Context, account, postID, storeName, address string) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("post %s: parsed address must not be empty", postID)
	}
	if err := g.records.UpdateParsed(ctx, account, postID, storeName, address); err != nil {
		return err
	}
	logger.Debug("Annotation committed", "account", account, "post_id", postID)
	return nil
}

// CommitFailure records a failed annotation attempt so the record stops
// cycling through the backlog.
func (g *Gateway) CommitFailure(ctx context.Context, account, postID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "annotation failed"
	}
	return g.records.MarkParseFailed(ctx, account, postID, reason)
}
