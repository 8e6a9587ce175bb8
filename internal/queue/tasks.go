package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"foodmap-backend/internal/instagram"
	"foodmap-backend/internal/logger"
	syncengine "foodmap-backend/internal/sync"
)

const TaskSyncRun = "sync:run"

type SyncRunPayload struct {
	Account    string `json:"account"`
	MaxRecords int    `json:"max_records"`
}

// NewSyncRunTask builds the background sync task for an account. Tasks for
// the same account are unique while one is in flight so scheduled and manual
// triggers do not stack.
func NewSyncRunTask(account string, maxRecords int) (*asynq.Task, error) {
	payload, err := json.Marshal(SyncRunPayload{
		Account:    account,
		MaxRecords: maxRecords,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskSyncRun,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("critical"),
		asynq.Unique(30*time.Minute),
	), nil
}

// Task handlers
type TaskProcessor struct {
	engine *syncengine.Engine
}

func NewTaskProcessor(engine *syncengine.Engine) *TaskProcessor {
	return &TaskProcessor{engine: engine}
}

// ProcessSyncRun runs one sync pass. Background runs never prompt: they rely
// on the persisted session, so a missing or invalid session fails the task
// without retrying since retries cannot make credentials appear.
func (p *TaskProcessor) ProcessSyncRun(ctx context.Context, t *asynq.Task) error {
	var payload SyncRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	result, err := p.engine.Run(ctx, payload.Account, nil, payload.MaxRecords)
	if err != nil {
		var authErr *instagram.AuthError
		if errors.As(err, &authErr) && authErr.Reason == instagram.ReasonInvalidCredentials {
			logger.Error("Background sync needs a fresh login", "account", payload.Account)
			return fmt.Errorf("no usable session for %s: %w", payload.Account, asynq.SkipRetry)
		}
		return err // Will retry
	}

	logger.Info("Background sync finished",
		"account", payload.Account,
		"run_id", result.RunID,
		"fetched", result.Fetched,
		"skipped", result.SkippedExisting,
		"failed", result.Failed,
	)
	return nil
}
