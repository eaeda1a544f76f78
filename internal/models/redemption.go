package models

import "time"

// UsedCode marks a redemption code as consumed. The primary key makes codes single-use.
type UsedCode struct {
	Code      string    `gorm:"type:varchar(16);primaryKey"` // Redemption code, upper case.
	UserID    uint64    `gorm:"not null;index"`              // User who consumed the code.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`     // Consumption timestamp.
}

// RedemptionLog records one successful redemption per device per month.
type RedemptionLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID        uint64 `gorm:"not null;index"`                                                      // Redeeming user.
	DeviceID      string `gorm:"type:varchar(255);not null;uniqueIndex:idx_redemption_device_month"` // Redeeming device.
	Code          string `gorm:"type:varchar(16);not null"`                                           // Redeemed code.
	RedeemedMonth string `gorm:"type:varchar(7);not null;uniqueIndex:idx_redemption_device_month"`   // Month key in YYYY-MM form.
	Credits       int64  `gorm:"not null"`                                                            // Credits granted.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Redemption timestamp.
}
