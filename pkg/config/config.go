package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/lucianoflow8/flowtracking-receipts/pkg/storage"
)

// OCRConfig bounds the recognition engine.
type OCRConfig struct {
	Language       string
	TimeoutSeconds int
}

// ProcessorConfig tunes the receipt processing pipeline.
type ProcessorConfig struct {
	Workers         int
	MaxAttempts     int
	PollIntervalSec int
	// WatchDir, when set, enables the drop-directory intake for the given
	// project/line scope.
	WatchDir       string
	WatchProjectID string
	WatchLineID    string
}

// AppConfig is the centralized application configuration, populated from the
// environment. A local .env file is loaded first without overriding variables
// that are already set.
type AppConfig struct {
	Port        string
	DatabaseDSN string
	AutoMigrate bool
	JWTSecret   string
	LogLevel    string

	// StorageBackend selects "minio" or "fs".
	StorageBackend string
	UploadBase     string
	MinIO          storage.MinIOConfig

	OCR       OCRConfig
	Processor ProcessorConfig
}

func Load() *AppConfig {
	_ = godotenv.Load()
	return &AppConfig{
		Port:        getEnv("PORT", "8081"),
		DatabaseDSN: getEnv("DB_DSN", ""),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),
		JWTSecret:   getEnv("JWT_SECRET", "dev-insecure-secret-change"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		StorageBackend: getEnv("STORAGE_BACKEND", "fs"),
		UploadBase:     getEnv("UPLOAD_BASE", "uploads"),
		MinIO: storage.MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "receipts"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},

		OCR: OCRConfig{
			Language:       getEnv("OCR_LANG", "spa"),
			TimeoutSeconds: getEnvInt("OCR_TIMEOUT_SEC", 30),
		},
		Processor: ProcessorConfig{
			Workers:         getEnvInt("PROCESS_WORKERS", 0),
			MaxAttempts:     getEnvInt("PROCESS_MAX_ATTEMPTS", 3),
			PollIntervalSec: getEnvInt("PROCESS_POLL_SEC", 15),
			WatchDir:        getEnv("WATCH_DIR", ""),
			WatchProjectID:  getEnv("WATCH_PROJECT_ID", ""),
			WatchLineID:     getEnv("WATCH_LINE_ID", ""),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
