package models

import "time"

// Receipt status values. Transitions are forward-only:
// pending -> processing -> {done, error}, error -> processing while retries remain.
const (
	ReceiptStatusPending    = "pending"
	ReceiptStatusProcessing = "processing"
	ReceiptStatusDone       = "done"
	ReceiptStatusError      = "error"
)

// Receipt is a queued payment-receipt submission awaiting OCR processing.
// FilePath is immutable once set; MediaURL is only consulted until the bytes
// have been persisted to blob storage.
type Receipt struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ProjectID    string `gorm:"size:64;index;not null"`
	LineID       string `gorm:"size:64;index;not null"`
	CustomerName string `gorm:"size:255"`
	Caption      string `gorm:"size:512"`
	Contact      string `gorm:"size:64;index"`
	MediaURL     string `gorm:"size:1024"`
	FilePath     string `gorm:"size:512;index"`
	ContentType  string `gorm:"size:128"`
	Status       string `gorm:"size:16;not null;default:pending;index"`
	Attempts     int    `gorm:"not null;default:0"`
	LastError    string `gorm:"size:512"`
	ConversionID *uint  `gorm:"index"`
}
