package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string

	Port        string
	GinMode     string
	CORSOrigins []string

	// Operator API auth
	APIPasswordHash string
	AccessSecret    string
	RefreshSecret   string

	// Redis (rate limiting, token revocation, asynq)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// Instagram source
	InstagramBaseURL        string
	InstagramUserAgent      string
	SourceRequestsPerMinute int

	// Sync engine
	SyncMaxRetries   int
	SyncBackoffBase  time.Duration
	SyncBackoffMax   time.Duration
	TwoFactorRetries int
	MediaDownload    bool
	FileStorageDir   string

	// Scheduled syncs (worker)
	SyncAccounts []string
	SyncInterval time.Duration

	// Telemetry
	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/foodmap"),
		DBName:   getEnv("DB_NAME", "foodmap"),

		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		APIPasswordHash: getEnv("API_PASSWORD_HASH", ""),
		AccessSecret:    getEnv("ACCESS_SECRET", ""),
		RefreshSecret:   getEnv("REFRESH_SECRET", ""),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		InstagramBaseURL:        getEnv("INSTAGRAM_BASE_URL", "https://www.instagram.com"),
		InstagramUserAgent:      getEnv("INSTAGRAM_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
		SourceRequestsPerMinute: getEnvInt("SOURCE_REQUESTS_PER_MINUTE", 20),

		SyncMaxRetries:   getEnvInt("SYNC_MAX_RETRIES", 5),
		SyncBackoffBase:  getEnvDuration("SYNC_BACKOFF_BASE", 2*time.Second),
		SyncBackoffMax:   getEnvDuration("SYNC_BACKOFF_MAX", 2*time.Minute),
		TwoFactorRetries: getEnvInt("TWO_FACTOR_RETRIES", 0),
		MediaDownload:    getEnvBool("MEDIA_DOWNLOAD", false),
		FileStorageDir:   getEnv("FILE_STORAGE_DIR", "./storage"),

		SyncAccounts: splitNonEmpty(getEnv("SYNC_ACCOUNTS", "")),
		SyncInterval: getEnvDuration("SYNC_INTERVAL", 6*time.Hour),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET is required - set it in .env file")
	}

	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("REFRESH_SECRET is required - set it in .env file")
	}

	if cfg.APIPasswordHash == "" {
		return nil, fmt.Errorf("API_PASSWORD_HASH is required - set it in .env file")
	}

	return cfg, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
