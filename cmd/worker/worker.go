package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"foodmap-backend/internal/config"
	"foodmap-backend/internal/instagram"
	"foodmap-backend/internal/logger"
	"foodmap-backend/internal/queue"
	"foodmap-backend/internal/store"
	syncengine "foodmap-backend/internal/sync"
	"foodmap-backend/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())

	db := mongoClient.Database(cfg.DBName)
	sessionStore := store.NewSessionStore(db)
	postStore := store.NewPostStore(db)
	mediaStore := store.NewMediaStore(cfg.FileStorageDir)

	igClient := instagram.NewClient(cfg.InstagramBaseURL, cfg.InstagramUserAgent, cfg.SourceRequestsPerMinute)
	authManager := instagram.NewManager(sessionStore, igClient, cfg.TwoFactorRetries)
	engine := syncengine.NewEngine(
		syncengine.NewInstagramSource(igClient),
		authManager,
		postStore,
		mediaStore,
		metrics,
		syncengine.Options{
			MaxRetries:    cfg.SyncMaxRetries,
			BackoffBase:   cfg.SyncBackoffBase,
			BackoffMax:    cfg.SyncBackoffMax,
			DownloadMedia: cfg.MediaDownload,
		},
	)

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Periodic syncs for the configured accounts
	if len(cfg.SyncAccounts) > 0 {
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()

		scheduler := queue.NewScheduler(asynqClient)
		if err := scheduler.ScheduleAccountSyncs(cfg.SyncAccounts, cfg.SyncInterval); err != nil {
			log.Fatal("Failed to schedule account syncs:", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("Scheduled periodic syncs", "accounts", cfg.SyncAccounts, "interval", cfg.SyncInterval.String())
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(engine)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskSyncRun, processor.ProcessSyncRun)

	logger.Info("Starting worker", "concurrency", 10, "redis", cfg.RedisURL)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
