package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"foodmap-backend/internal/instagram"
	"foodmap-backend/internal/logger"
	"foodmap-backend/internal/store"
	"foodmap-backend/internal/telemetry"
	"foodmap-backend/models"
)

var (
	// ErrReauthFailed aborts a run after the one allowed re-login attempt
	// also failed.
	ErrReauthFailed = errors.New("sync: re-authentication failed")

	// ErrRateLimitExhausted aborts a run after the retry budget was spent on
	// source throttling.
	ErrRateLimitExhausted = errors.New("sync: rate limit retries exhausted")
)

// Feed iterates the source's saved-post identifiers, newest first.
type Feed interface {
	Next(ctx context.Context) bool
	ID() string
	Err() error
}

// Source is the external saved-posts surface the engine pulls from.
type Source interface {
	ListSaved(ctx context.Context, session *models.Session) (Feed, error)
	FetchDetail(ctx context.Context, session *models.Session, id string) (*instagram.PostDetail, error)
	FetchMedia(ctx context.Context, session *models.Session, url string) ([]byte, error)
}

// Records is the slice of the post store the engine writes through.
// Implemented by *store.PostStore.
type Records interface {
	Exists(ctx context.Context, account, postID string) (bool, error)
	Insert(ctx context.Context, record *models.PostRecord) error
}

// MediaSink stores downloaded media bytes. Implemented by *store.MediaStore.
type MediaSink interface {
	Save(account, postID string, index int, sourceURL string, data []byte) (string, error)
}

// Authenticator supplies sessions and invalidates stale ones. Implemented by
// *instagram.Manager.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context, account string, supplier instagram.CredentialSupplier) (*models.Session, error)
	Invalidate(ctx context.Context, account string) error
}

// Options tunes a sync run. Zero values take the documented defaults.
type Options struct {
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	DownloadMedia bool
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 2 * time.Minute
	}
	return o
}

// Engine pulls saved posts from the source into the record store. Runs are
// idempotent: already-stored identifiers are skipped, new ones are fetched
// in full and committed exactly once.
type Engine struct {
	source  Source
	auth    Authenticator
	records Records
	media   MediaSink
	metrics *telemetry.Metrics
	opts    Options
}

func NewEngine(source Source, auth Authenticator, records Records, media MediaSink, metrics *telemetry.Metrics, opts Options) *Engine {
	return &Engine{
		source:  source,
		auth:    auth,
		records: records,
		media:   media,
		metrics: metrics,
		opts:    opts.withDefaults(),
	}
}

// Run performs one sync pass for the account. max > 0 bounds how many new
// records are committed; listing still walks newest first, so a bounded run
// takes the newest unseen posts. A failed item never aborts the run; only
// authentication loss (after one re-login attempt), an exhausted rate-limit
// budget or context cancellation do.
func (e *Engine) Run(ctx context.Context, account string, supplier instagram.CredentialSupplier, max int) (*models.SyncResult, error) {
	tracer := otel.Tracer("sync-engine")
	ctx, span := tracer.Start(ctx, "sync.run")
	defer span.End()
	span.SetAttributes(attribute.String("account", account))

	result := &models.SyncResult{
		RunID:     uuid.NewString(),
		Account:   account,
		StartedAt: time.Now().UTC(),
		Errors:    []models.SyncItemError{},
	}
	logger.Info("Sync run started", "run_id", result.RunID, "account", account, "max", max)

	session, err := e.auth.EnsureAuthenticated(ctx, account, supplier)
	if err != nil {
		return e.finish(ctx, result, err)
	}

	reauthed := false
	budget := e.opts.MaxRetries

restart:
	feed, err := e.source.ListSaved(ctx, session)
	if err != nil {
		session, err = e.handleRunError(ctx, account, supplier, err, &reauthed, &budget)
		if err != nil {
			return e.finish(ctx, result, err)
		}
		goto restart
	}

	for feed.Next(ctx) {
		if err := ctx.Err(); err != nil {
			return e.finish(ctx, result, err)
		}
		if max > 0 && result.Fetched >= max {
			break
		}

		id := feed.ID()
		result.TotalListed++

		known, err := e.records.Exists(ctx, account, id)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.SyncItemError{PostID: id, Stage: models.SyncStageStore, Message: err.Error()})
			continue
		}
		if known {
			result.SkippedExisting++
			continue
		}

		if err := e.ingest(ctx, session, account, id); err != nil {
			var skipped *skipError
			if errors.As(err, &skipped) {
				result.SkippedExisting++
				continue
			}
			// Run-level failures retry the whole listing; item-level ones
			// only mark this post and move on.
			if isRunFatal(err) {
				session, err = e.handleRunError(ctx, account, supplier, err, &reauthed, &budget)
				if err != nil {
					return e.finish(ctx, result, err)
				}
				resetWalkCounters(result)
				goto restart
			}
			stage := models.SyncStageFetch
			var itemErr *itemError
			if errors.As(err, &itemErr) {
				stage = itemErr.stage
			}
			result.Failed++
			result.Errors = append(result.Errors, models.SyncItemError{PostID: id, Stage: stage, Message: err.Error()})
			logger.Warn("Sync item failed", "run_id", result.RunID, "post_id", id, "stage", stage, "error", err)
			continue
		}
		result.Fetched++
	}

	if err := feed.Err(); err != nil {
		if isRunFatal(err) {
			session, err = e.handleRunError(ctx, account, supplier, err, &reauthed, &budget)
			if err != nil {
				return e.finish(ctx, result, err)
			}
			resetWalkCounters(result)
			goto restart
		}
		return e.finish(ctx, result, err)
	}

	return e.finish(ctx, result, nil)
}

// ingest fetches one post's detail (and media when enabled) and commits it.
func (e *Engine) ingest(ctx context.Context, session *models.Session, account, id string) error {
	detail, err := e.source.FetchDetail(ctx, session, id)
	if err != nil {
		if isRunFatal(err) {
			return err
		}
		return &itemError{stage: models.SyncStageFetch, err: err}
	}

	record := &models.PostRecord{
		Account:  account,
		PostID:   detail.ID,
		Author:   detail.Author,
		Caption:  detail.Caption,
		PostURL:  "https://www.instagram.com/p/" + detail.ID + "/",
		Likes:    detail.Likes,
		Comments: detail.Comments,
		PostedAt: detail.TakenAt,
		State:    models.StateUnparsed,
	}

	for i, item := range detail.Media {
		ref := models.MediaRef{Type: item.Type, URL: item.URL}
		if e.opts.DownloadMedia && e.media != nil {
			data, err := e.source.FetchMedia(ctx, session, item.URL)
			if err != nil {
				if isRunFatal(err) {
					return err
				}
				return &itemError{stage: models.SyncStageMedia, err: err}
			}
			path, err := e.media.Save(account, detail.ID, i, item.URL, data)
			if err != nil {
				return &itemError{stage: models.SyncStageMedia, err: err}
			}
			ref.StoragePath = path
		}
		record.Media = append(record.Media, ref)
	}

	if err := e.records.Insert(ctx, record); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Raced with a concurrent run; the record is there, which is all
			// that matters.
			return &skipError{}
		}
		return &itemError{stage: models.SyncStageStore, err: err}
	}
	return nil
}

// handleRunError deals with run-level failures: one re-login for a lost
// session, bounded backoff for throttling. Returns a session to continue
// with, or the abort error.
func (e *Engine) handleRunError(ctx context.Context, account string, supplier instagram.CredentialSupplier, cause error, reauthed *bool, budget *int) (*models.Session, error) {
	if errors.Is(cause, instagram.ErrUnauthenticated) {
		if *reauthed {
			return nil, fmt.Errorf("%w: %v", ErrReauthFailed, cause)
		}
		*reauthed = true
		if err := e.auth.Invalidate(ctx, account); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReauthFailed, err)
		}
		session, err := e.auth.EnsureAuthenticated(ctx, account, supplier)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReauthFailed, err)
		}
		logger.Info("Re-authenticated mid-run", "account", account)
		return session, nil
	}

	var rateErr *instagram.RateLimitError
	if errors.As(cause, &rateErr) {
		if *budget <= 0 {
			return nil, fmt.Errorf("%w: %v", ErrRateLimitExhausted, cause)
		}
		attempt := e.opts.MaxRetries - *budget
		*budget--

		delay := rateErr.RetryAfter
		if delay <= 0 {
			delay = e.opts.BackoffBase << attempt
		}
		if delay > e.opts.BackoffMax {
			delay = e.opts.BackoffMax
		}
		logger.Warn("Source throttled, backing off", "account", account, "delay", delay.String(), "retries_left", *budget)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		session, err := e.auth.EnsureAuthenticated(ctx, account, supplier)
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	return nil, cause
}

func (e *Engine) finish(ctx context.Context, result *models.SyncResult, cause error) (*models.SyncResult, error) {
	result.FinishedAt = time.Now().UTC()
	if cause != nil {
		result.Aborted = true
		result.AbortReason = abortReason(cause)
		logger.Error("Sync run aborted", "run_id", result.RunID, "account", result.Account, "reason", result.AbortReason, "error", cause)
	} else {
		logger.Info("Sync run finished",
			"run_id", result.RunID,
			"account", result.Account,
			"listed", result.TotalListed,
			"fetched", result.Fetched,
			"skipped", result.SkippedExisting,
			"failed", result.Failed,
		)
	}
	if e.metrics != nil {
		e.metrics.RecordSyncRun(ctx, result.Account, result.Fetched, result.SkippedExisting, result.Failed)
	}
	if cause != nil {
		return result, cause
	}
	return result, nil
}

func abortReason(err error) string {
	switch {
	case errors.Is(err, ErrReauthFailed):
		return "reauth_failed"
	case errors.Is(err, ErrRateLimitExhausted):
		return "rate_limited_exhausted"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		var authErr *instagram.AuthError
		if errors.As(err, &authErr) {
			return "auth_failed"
		}
		return "source_error"
	}
}

// resetWalkCounters clears the per-walk accounting before a run-level
// restart re-lists from the start. Fetched stays: committed records survive
// the restart and show up as skips on the re-walk. Failures are cleared so a
// post that keeps failing is counted once, not once per walk.
func resetWalkCounters(result *models.SyncResult) {
	result.TotalListed = 0
	result.SkippedExisting = 0
	result.Failed = 0
	result.Errors = result.Errors[:0]
}

// isRunFatal reports whether an item failure must be escalated to run level.
func isRunFatal(err error) bool {
	if errors.Is(err, instagram.ErrUnauthenticated) {
		return true
	}
	var rateErr *instagram.RateLimitError
	return errors.As(err, &rateErr)
}

// itemError tags a per-post failure with the pipeline stage it hit.
type itemError struct {
	stage string
	err   error
}

func (e *itemError) Error() string { return e.err.Error() }

func (e *itemError) Unwrap() error { return e.err }

// skipError marks a duplicate insert raced by a concurrent run.
type skipError struct{}

func (e *skipError) Error() string { return "record already stored" }
