package models

import (
	"time"

	"gorm.io/datatypes"
)

// Invocation records one AI request made on behalf of a user.
type Invocation struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`          // Requesting user.
	Task   string `gorm:"type:varchar(32);not null"` // Task kind (image, analyze, validate).
	Model  string `gorm:"type:text;not null;index"`  // Upstream model name.

	Attempts int  `gorm:"not null;default:0"`     // Upstream attempts made.
	Failed   bool `gorm:"not null;default:false"` // Failure flag.

	ErrorStatusCode *int           `gorm:"index"`      // Upstream status code for failed requests.
	ErrorDetail     datatypes.JSON `gorm:"type:jsonb"` // Structured error detail JSON.

	CreditsCharged int64 `gorm:"not null;default:0"` // Credits debited for this invocation.
	LatencyMs      int64 `gorm:"not null;default:0"` // Wall time including retries.

	RequestedAt time.Time `gorm:"not null;index"`          // Request timestamp.
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
