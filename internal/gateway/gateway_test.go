package gateway

import (
	"context"
	"testing"

	"foodmap-backend/internal/store"
	"foodmap-backend/models"
)

type memRecords struct {
	posts map[string]*models.PostRecord
}

func newMemRecords(ids ...string) *memRecords {
	r := &memRecords{posts: map[string]*models.PostRecord{}}
	for _, id := range ids {
		r.posts[id] = &models.PostRecord{PostID: id, State: models.StateUnparsed}
	}
	return r
}

func (r *memRecords) ListUnparsed(ctx context.Context, account string, limit int64) ([]models.PostRecord, error) {
	out := []models.PostRecord{}
	for _, p := range r.posts {
		if p.State == models.StateUnparsed {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memRecords) UpdateParsed(ctx context.Context, account, postID, storeName, address string) error {
	p, ok := r.posts[postID]
	if !ok {
		return store.ErrNotFound
	}
	p.State = models.StateParsed
	p.ParsedStore = storeName
	p.ParsedAddress = address
	return nil
}

func (r *memRecords) MarkParseFailed(ctx context.Context, account, postID, reason string) error {
	p, ok := r.posts[postID]
	if !ok {
		return store.ErrNotFound
	}
	p.State = models.StateParseFailed
	p.ParseError = reason
	return nil
}

func TestClaimNeverReturnsCommittedRecords(t *testing.T) {
	records := newMemRecords("a", "b")
	gw := New(records)
	ctx := context.Background()

	if err := gw.CommitParsed(ctx, "alice", "a", "Cafe", "1 Main St"); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	claimed, err := gw.ClaimUnparsed(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].PostID != "b" {
		t.Fatalf("unexpected claim: %+v", claimed)
	}
}

func TestCommitParsedRejectsEmptyAddress(t *testing.T) {
	records := newMemRecords("a")
	gw := New(records)

	if err := gw.CommitParsed(context.Background(), "alice", "a", "Cafe", "   "); err == nil {
		t.Fatal("expected error for blank address")
	}
	if records.posts["a"].State != models.StateUnparsed {
		t.Fatal("record must stay unparsed after rejected commit")
	}
}

func TestCommitParsedUnknownRecord(t *testing.T) {
	gw := New(newMemRecords())

	err := gw.CommitParsed(context.Background(), "alice", "missing", "Cafe", "1 Main St")
	if !store.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestCommitFailureRemovesFromBacklog(t *testing.T) {
	records := newMemRecords("a")
	gw := New(records)
	ctx := context.Background()

	if err := gw.CommitFailure(ctx, "alice", "a", "no address in caption"); err != nil {
		t.Fatalf("commit failure errored: %v", err)
	}

	claimed, err := gw.ClaimUnparsed(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("failed record still claimable: %+v", claimed)
	}
	if records.posts["a"].ParseError != "no address in caption" {
		t.Fatalf("reason not recorded: %q", records.posts["a"].ParseError)
	}
}
