package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

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

	jwtSecret = []byte(cfg.JWTSecret)

	if err := initDB(cfg.DatabaseDSN, cfg.AutoMigrate, log); err != nil {
		log.Fatal("init database", zap.Error(err))
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

	extractor := ocr.NewExtractor(ocr.DefaultBanks)
	proc = process.New(db, store, ocr.NewTesseract(), extractor, log, process.Config{
		Workers:      cfg.Processor.Workers,
		MaxAttempts:  cfg.Processor.MaxAttempts,
		PollInterval: time.Duration(cfg.Processor.PollIntervalSec) * time.Second,
		OCRTimeout:   time.Duration(cfg.OCR.TimeoutSeconds) * time.Second,
		Language:     cfg.OCR.Language,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go proc.Run(ctx)

	if cfg.Processor.WatchDir != "" {
		w := process.NewWatcher(db, store, proc, log, cfg.Processor.WatchDir,
			cfg.Processor.WatchProjectID, cfg.Processor.WatchLineID)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error("drop-dir watcher stopped", zap.Error(err))
			}
		}()
	}

	r := gin.Default()
	setupRoutes(r)

	log.Info("listening", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
