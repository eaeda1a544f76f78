package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a payment order.
type OrderStatus string

// Order lifecycle states.
const (
	// OrderStatusPending marks an order awaiting payment confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid marks an order whose credits have been granted.
	OrderStatusPaid OrderStatus = "paid"
)

// Order is a purchase of a credit package through the payment gateway.
type Order struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrderID   string          `gorm:"type:varchar(64);not null;uniqueIndex"` // Merchant order number sent to the gateway.
	UserID    uint64          `gorm:"not null;index"`                        // Purchasing user.
	PackageID string          `gorm:"type:varchar(32);not null"`             // Catalog package identifier.
	Amount    decimal.Decimal `gorm:"type:decimal(10,2);not null"`           // Price charged in CNY.
	Credits   int64           `gorm:"not null"`                              // Credits granted on payment.

	Status  OrderStatus `gorm:"type:varchar(16);not null;default:'pending';index"` // Lifecycle state.
	TradeNo *string     `gorm:"type:varchar(64)"`                                 // Gateway trade number once paid.
	PaidAt  *time.Time  // Payment confirmation time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
