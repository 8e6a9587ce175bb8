package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"foodmap-backend/internal/config"
	"foodmap-backend/internal/gateway"
	"foodmap-backend/internal/instagram"
	"foodmap-backend/internal/logger"
	"foodmap-backend/internal/store"
	syncengine "foodmap-backend/internal/sync"
	"foodmap-backend/internal/telemetry"
	"foodmap-backend/middleware"
	"foodmap-backend/routes"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Tracing is optional; the service runs fine without a collector
	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("foodmap-backend", cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
		} else {
			defer shutdown()
		}
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	// Wire the sync pipeline
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
	gw := gateway.New(postStore)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg, rdb)

	// Setup routes
	routes.SetupAuthRoutes(router, cfg, rdb)
	routes.SetupInstagramRoutes(router, authManager, authMiddleware)
	routes.SetupProfileRoutes(router, authManager, igClient, authMiddleware)
	routes.SetupSyncRoutes(router, engine, authManager, postStore, asynqClient, authMiddleware)
	routes.SetupPostRoutes(router, postStore, authMiddleware)
	routes.SetupAnnotatorRoutes(router, gw, authMiddleware)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
