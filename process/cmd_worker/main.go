// Standalone processing worker: runs the receipt pipeline against the shared
// database without the HTTP intake. Useful for scaling OCR throughput
// independently of the API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lucianoflow8/flowtracking-receipts/pkg/config"
	"github.com/lucianoflow8/flowtracking-receipts/pkg/logger"
	"github.com/lucianoflow8/flowtracking-receipts/pkg/ocr"
	"github.com/lucianoflow8/flowtracking-receipts/pkg/storage"
	"github.com/lucianoflow8/flowtracking-receipts/process"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.DatabaseDSN == "" {
		log.Fatal("DB_DSN must be set")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}

	var store storage.Store
	switch cfg.StorageBackend {
	case "minio":
		store, err = storage.NewMinIO(cfg.MinIO)
	default:
		store, err = storage.NewFS(cfg.UploadBase)
	}
	if err != nil {
		log.Fatal("init storage", zap.Error(err))
	}

	proc := process.New(db, store, ocr.NewTesseract(), ocr.NewExtractor(ocr.DefaultBanks), log, process.Config{
		Workers:      cfg.Processor.Workers,
		MaxAttempts:  cfg.Processor.MaxAttempts,
		PollInterval: time.Duration(cfg.Processor.PollIntervalSec) * time.Second,
		OCRTimeout:   time.Duration(cfg.OCR.TimeoutSeconds) * time.Second,
		Language:     cfg.OCR.Language,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Info("worker started", zap.Int("workers", cfg.Processor.Workers))
	proc.Run(ctx)
}
