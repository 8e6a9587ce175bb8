package queue

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"

	"foodmap-backend/internal/logger"
)

// Scheduler enqueues periodic sync tasks for the configured accounts. It
// only produces tasks; the asynq worker pool does the actual runs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	client    *asynq.Client
}

func NewScheduler(client *asynq.Client) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &Scheduler{
		scheduler: s,
		client:    client,
	}
}

// ScheduleAccountSyncs registers one interval job per account.
func (s *Scheduler) ScheduleAccountSyncs(accounts []string, interval time.Duration) error {
	for _, account := range accounts {
		account := account
		_, err := s.scheduler.Every(interval).Tag("sync-" + account).Do(func() {
			s.enqueueSync(account)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) enqueueSync(account string) {
	task, err := NewSyncRunTask(account, 0)
	if err != nil {
		logger.Error("Failed to build sync task", "account", account, "error", err)
		return
	}
	info, err := s.client.Enqueue(task)
	if err != nil {
		// Duplicate of an in-flight run; nothing to do
		logger.Debug("Sync task not enqueued", "account", account, "error", err)
		return
	}
	logger.Info("Scheduled sync enqueued", "account", account, "task_id", info.ID)
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
