package models

import "time"

// User represents an end-user account holding a credit balance.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Password string `gorm:"type:text;not null"`             // Hashed password.
	Nickname string `gorm:"type:text"`                      // Display name.

	Credits int64 `gorm:"not null;default:0"` // Spendable AI credits, never negative.

	IsAdmin  bool `gorm:"not null;default:false"` // Grants access to admin routes.
	Disabled bool `gorm:"not null;default:false"` // Blocks sign in when true.

	DeviceID     string  `gorm:"type:text;index"`       // Last device the user signed in from.
	DeviceSuffix string  `gorm:"type:varchar(16);index"` // Trailing characters of DeviceID used as the referral code.
	ReferredBy   *uint64 `gorm:"index"`                 // Referrer user ID, if any.

	LastLoginAt *time.Time // Last successful sign in.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// DeviceUsage records that a device has already received the registration bonus.
type DeviceUsage struct {
	DeviceID  string    `gorm:"type:varchar(255);primaryKey"` // Client-supplied device identifier.
	UserID    *uint64   `gorm:"index"`                        // First user registered from the device.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`      // First seen timestamp.
}
