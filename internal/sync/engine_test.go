package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"foodmap-backend/internal/instagram"
	"foodmap-backend/internal/store"
	"foodmap-backend/models"
)

type fakeFeed struct {
	ids []string
	pos int
	err error
}

func (f *fakeFeed) Next(ctx context.Context) bool {
	if f.pos >= len(f.ids) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeFeed) ID() string { return f.ids[f.pos-1] }

func (f *fakeFeed) Err() error { return f.err }

type fakeSource struct {
	ids          []string
	details      map[string]*instagram.PostDetail
	media        map[string][]byte
	listErr      error
	fetchErr     map[string]error
	fetchErrOnce map[string]error
	mediaErr     map[string]error

	listCalls  int
	fetchCalls int
}

func (s *fakeSource) ListSaved(ctx context.Context, session *models.Session) (Feed, error) {
	s.listCalls++
	if s.listErr != nil {
		err := s.listErr
		s.listErr = nil
		return nil, err
	}
	return &fakeFeed{ids: s.ids}, nil
}

func (s *fakeSource) FetchDetail(ctx context.Context, session *models.Session, id string) (*instagram.PostDetail, error) {
	s.fetchCalls++
	if err, ok := s.fetchErr[id]; ok {
		return nil, err
	}
	if err, ok := s.fetchErrOnce[id]; ok {
		delete(s.fetchErrOnce, id)
		return nil, err
	}
	if detail, ok := s.details[id]; ok {
		return detail, nil
	}
	return &instagram.PostDetail{ID: id, Author: "someone", TakenAt: time.Now().UTC()}, nil
}

func (s *fakeSource) FetchMedia(ctx context.Context, session *models.Session, url string) ([]byte, error) {
	if err, ok := s.mediaErr[url]; ok {
		return nil, err
	}
	return s.media[url], nil
}

type fakeRecords struct {
	mu      sync.Mutex
	stored  map[string]*models.PostRecord
	inserts []string
}

func newFakeRecords(existing ...string) *fakeRecords {
	r := &fakeRecords{stored: map[string]*models.PostRecord{}}
	for _, id := range existing {
		r.stored[id] = &models.PostRecord{PostID: id}
	}
	return r
}

func (r *fakeRecords) Exists(ctx context.Context, account, postID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stored[postID]
	return ok, nil
}

func (r *fakeRecords) Insert(ctx context.Context, record *models.PostRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stored[record.PostID]; ok {
		return store.ErrConflict
	}
	r.stored[record.PostID] = record
	r.inserts = append(r.inserts, record.PostID)
	return nil
}

type fakeAuth struct {
	session     *models.Session
	ensureErr   error
	invalidated int
	ensures     int
}

func (a *fakeAuth) EnsureAuthenticated(ctx context.Context, account string, supplier instagram.CredentialSupplier) (*models.Session, error) {
	a.ensures++
	if a.ensureErr != nil {
		return nil, a.ensureErr
	}
	if a.session == nil {
		a.session = &models.Session{Account: account, SessionID: "sess", Valid: true}
	}
	return a.session, nil
}

func (a *fakeAuth) Invalidate(ctx context.Context, account string) error {
	a.invalidated++
	a.session = nil
	return nil
}

type fakeMedia struct {
	saved map[string]string
}

func (m *fakeMedia) Save(account, postID string, index int, sourceURL string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = map[string]string{}
	}
	path := fmt.Sprintf("/tmp/%s/%s_%d", account, postID, index)
	m.saved[postID] = path
	return path, nil
}

func newTestEngine(source Source, auth Authenticator, records Records) *Engine {
	return NewEngine(source, auth, records, &fakeMedia{}, nil, Options{
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	})
}

func TestRunStoresNewPosts(t *testing.T) {
	source := &fakeSource{ids: []string{"a", "b", "c"}}
	records := newFakeRecords()
	engine := newTestEngine(source, &fakeAuth{}, records)

	result, err := engine.Run(context.Background(), "alice", nil, 0)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Fetched != 3 || result.SkippedExisting != 0 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(records.stored) != 3 {
		t.Fatalf("expected 3 stored records, got %d", len(records.stored))
	}
}

func TestRunIsIdempotent(t *testing.T) {
	source := &fakeSource{ids: []string{"a", "b"}}
	records := newFakeRecords()
	engine := newTestEngine(source, &fakeAuth{}, records)

	if _, err := engine.Run(context.Background(), "alice", nil, 0); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	result, err := engine.Run(context.Background(), "alice", nil, 0)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if result.Fetched != 0 {
		t.Fatalf("second run fetched %d, want 0", result.Fetched)
	}
	if result.SkippedExisting != 2 {
		t.Fatalf("second run skipped %d, want 2", result.SkippedExisting)
	}
	if len(records.inserts) != 2 {
		t.Fatalf("records inserted more than once: %v", records.inserts)
	}
}

func TestRunMixedHistoryFetchesOnlyNew(t *testing.T) {
	// alice already has b and c from an earlier run; a is newly saved.
	source := &fakeSource{ids: []string{"a", "b", "c"}}
	records := newFakeRecords("b", "c")
	engine := newTestEngine(source, &fakeAuth{}, records)

	result, err := engine.Run(context.Background(), "alice", nil, 0)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.TotalListed != 3 || result.Fetched != 1 || result.SkippedExisting != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(records.inserts) != 1 || records.inserts[0] != "a" {
		t.Fatalf("unexpected inserts: %v", records.inserts)
	}
}

func TestRunBoundedTakesNewestFirst(t *testing.T) {
	// Listing is newest first, so max=2 over [a b c] must take a and b.
	source := &fakeSource{ids: []string{"a", "b", "c"}}
	records := newFakeRecords()
	engine := newTestEngine(source, &fakeAuth{}, records)

	result, err := engine.Run(context.Background(), "alice", nil, 2)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Fetched != 2 {
		t.Fatalf("fetched %d, want 2", result.Fetched)
	}
	if len(records.inserts) != 2 || records.inserts[0] != "a" || records.inserts[1] != "b" {
		t.Fatalf("unexpected inserts: %v", records.inserts)
	}
}

func TestRunIsolatesItemFailures(t *testing.T) {
	source := &fakeSource{
		ids:      []string{"a", "bad", "c"},
		fetchErr: map[string]error{"bad": errors.New("detail gone")},
	}
	records := newFakeRecords()
	engine := newTestEngine(source, &fakeAuth{}, records)

	result, err := engine.Run(context.Background(), "alice", nil, 0)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Fetched != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].PostID != "bad" || result.Errors[0].Stage != models.SyncStageFetch {
		t.Fatalf("unexpected item errors: %+v", result.Errors)
	}
	if _, ok := records.stored["bad"]; ok {
		t.Fatal("failed item must not be stored")
	}
}

func TestRunMediaFailureSkipsInsert(t *testing.T) {
	source := &fakeSource{
		ids: []string{"a"},
		details: map[string]*instagram.PostDetail{
			"a": {ID: "a", Media: []instagram.MediaItem{{Type: "image", URL: "http://x/img.jpg"}}},
		},
		mediaErr: map[string]error{"http://x/img.jpg": errors.New("gone")},
	}
	records := newFakeRecords()
	engine := NewEngine(source, &fakeAuth{}, records, &fakeMedia{}, nil, Options{
		MaxRetries: 2, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond, DownloadMedia: true,
	})

	result, err := engine.Run(context.Background(), "alice", nil, 0)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Failed != 1 || result.Fetched != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Errors[0].Stage != models.SyncStageMedia {
		t.Fatalf("stage = %s, want media", result.Errors[0].Stage)
	}
	if len(records.stored) != 0 {
		t.Fatal("record with failed media must not be committed")
	}
}

func TestRunReauthenticatesOnceOnStaleSession(t *testing.T) {
	source := &fakeSource{
		ids:     []string{"a"},
		listErr: instagram.ErrUnauthenticated,
	}
	auth := &fakeAuth{}
	records := newFakeRecords()
	engine := newTestEngine(source, auth, records)

	result, err := engine.Run(context.Background(), "alice", nil, 0)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if auth.invalidated != 1 {
		t.Fatalf("invalidated %d times, want 1", auth.invalidated)
	}
	if source.listCalls != 2 {
		t.Fatalf("listed %d times, want 2", source.listCalls)
	}
	if result.Fetched != 1 {
		t.Fatalf("fetched %d, want 1", result.Fetched)
	}
}

func TestRunAbortsWhenReauthFails(t *testing.T) {
	source := &fakeSource{
		ids:      []string{"a"},
		fetchErr: map[string]error{"a": instagram.ErrUnauthenticated},
	}
	records := newFakeRecords()
	engine := newTestEngine(source, &fakeAuth{}, records)

	// Re-login succeeds but the session keeps getting rejected, so the
	// second rejection must abort.
	result, err := engine.Run(context.Background(), "alice", nil, 0)
	if !errors.Is(err, ErrReauthFailed) {
		t.Fatalf("err = %v, want ErrReauthFailed", err)
	}
	if !result.Aborted || result.AbortReason != "reauth_failed" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunBacksOffOnRateLimitThenAborts(t *testing.T) {
	source := &fakeSource{
		ids:      []string{"a"},
		fetchErr: map[string]error{"a": &instagram.RateLimitError{}},
	}
	records := newFakeRecords()
	engine := newTestEngine(source, &fakeAuth{}, records)

	result, err := engine.Run(context.Background(), "alice", nil, 0)
	if !errors.Is(err, ErrRateLimitExhausted) {
		t.Fatalf("err = %v, want ErrRateLimitExhausted", err)
	}
	if result.AbortReason != "rate_limited_exhausted" {
		t.Fatalf("abort reason = %s", result.AbortReason)
	}
	if source.fetchCalls != 3 {
		t.Fatalf("fetch attempts = %d, want initial + 2 retries", source.fetchCalls)
	}
}

func TestRunRestartCountsBadPostOnce(t *testing.T) {
	// A throttle mid-walk forces a restart; the persistently failing post is
	// re-encountered on the second walk and must be counted once, not per
	// walk.
	source := &fakeSource{
		ids:          []string{"bad", "limit", "ok"},
		fetchErr:     map[string]error{"bad": errors.New("detail gone")},
		fetchErrOnce: map[string]error{"limit": &instagram.RateLimitError{}},
	}
	records := newFakeRecords()
	engine := newTestEngine(source, &fakeAuth{}, records)

	result, err := engine.Run(context.Background(), "alice", nil, 0)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Fetched != 2 {
		t.Fatalf("fetched %d, want 2", result.Fetched)
	}
	if result.Failed != 1 {
		t.Fatalf("failed %d, want 1", result.Failed)
	}
	if len(result.Errors) != 1 || result.Errors[0].PostID != "bad" {
		t.Fatalf("unexpected item errors: %+v", result.Errors)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	source := &fakeSource{ids: []string{"a", "b", "c"}}
	records := newFakeRecords()
	engine := newTestEngine(source, &fakeAuth{}, records)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Run(ctx, "alice", nil, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result.AbortReason != "cancelled" {
		t.Fatalf("abort reason = %s", result.AbortReason)
	}
}

func TestRunCountsConflictAsSkip(t *testing.T) {
	// Exists says unknown but Insert hits the unique index, as happens when
	// two runs race. The run must treat it as a skip, not a failure.
	source := &fakeSource{ids: []string{"a"}}
	records := newFakeRecords()
	records.stored["a"] = &models.PostRecord{PostID: "a"}
	racyRecords := &racingRecords{inner: records}
	engine := newTestEngine(source, &fakeAuth{}, racyRecords)

	result, err := engine.Run(context.Background(), "alice", nil, 0)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Failed != 0 || result.SkippedExisting != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

type racingRecords struct {
	inner *fakeRecords
}

func (r *racingRecords) Exists(ctx context.Context, account, postID string) (bool, error) {
	return false, nil
}

func (r *racingRecords) Insert(ctx context.Context, record *models.PostRecord) error {
	return r.inner.Insert(ctx, record)
}
