package main

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lucianoflow8/flowtracking-receipts/models"
)

var db *gorm.DB

func initDB(dsn string, autoMigrate bool, log *zap.Logger) error {
	if dsn == "" {
		return fmt.Errorf("DB_DSN is not set; a Postgres DSN is required")
	}
	var err error
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if autoMigrate {
		// Migrate models individually so a failure on one doesn't block others.
		if err := db.AutoMigrate(&models.Conversion{}); err != nil {
			log.Warn("migration warning (conversions)", zap.Error(err))
		}
		if err := db.AutoMigrate(&models.Receipt{}); err != nil {
			log.Warn("migration warning (receipts)", zap.Error(err))
		}
	}
	return nil
}
