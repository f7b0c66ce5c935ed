package models

import "time"

// Conversion is a sale/conversion row created upstream by analytics. The
// receipt processor only fills in extraction-derived fields; Amount must never
// decrease across repeated writes.
type Conversion struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	ProjectID string  `gorm:"size:64;index;not null"`
	Contact   string  `gorm:"size:64;index"`
	Amount    *int64  `gorm:"index"`
	FileURL   *string `gorm:"size:1024"`
	FileMime  *string `gorm:"size:128"`
	Concept   *string `gorm:"size:512"`

	// Fields below come exclusively from receipt extraction.
	Reference     *string `gorm:"size:128"`
	OperationNo   *string `gorm:"size:128"`
	OriginName    *string `gorm:"size:255"`
	OriginCUIT    *string `gorm:"size:32"`
	OriginAccount *string `gorm:"size:32"`
	OriginBank    *string `gorm:"size:128"`
	DestName      *string `gorm:"size:255"`
	DestCUIT      *string `gorm:"size:32"`
	DestAccount   *string `gorm:"size:32"`
	DestBank      *string `gorm:"size:128"`
}
