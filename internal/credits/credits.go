package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"gorm.io/gorm"
)

// Balance errors.
var (
	// ErrUserNotFound indicates the target user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientCredits indicates the balance cannot cover the charge.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrInvalidAmount indicates a non-positive credit amount.
	ErrInvalidAmount = errors.New("credit amount must be positive")
)

// Grant adds amount credits to the user. Pass a transaction handle to make
// the grant part of a larger atomic write.
func Grant(ctx context.Context, tx *gorm.DB, userID uint64, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	res := tx.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"credits":    gorm.Expr("credits + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("grant credits: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Debit removes amount credits only when the balance covers it.
func Debit(ctx context.Context, tx *gorm.DB, userID uint64, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	res := tx.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND credits >= ?", userID, amount).
		Updates(map[string]any{
			"credits":    gorm.Expr("credits - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("debit credits: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, errBalance := Balance(ctx, tx, userID); errBalance != nil {
		return errBalance
	}
	return ErrInsufficientCredits
}

// Balance returns the user's current credits.
func Balance(ctx context.Context, db *gorm.DB, userID uint64) (int64, error) {
	var user models.User
	if errFind := db.WithContext(ctx).Select("id", "credits").First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("load balance: %w", errFind)
	}
	return user.Credits, nil
}

// Spend charges cost credits for work done by fn. The balance is checked
// before fn runs and debited only after fn succeeds; a failed fn costs nothing.
// An empty balance is rejected even for free work; a zero cost never debits.
func Spend(ctx context.Context, db *gorm.DB, userID uint64, cost int64, fn func(context.Context) error) (int64, error) {
	balance, err := Balance(ctx, db, userID)
	if err != nil {
		return 0, err
	}
	if balance <= 0 || balance < cost {
		return balance, ErrInsufficientCredits
	}

	if errRun := fn(ctx); errRun != nil {
		return balance, errRun
	}
	if cost <= 0 {
		return balance, nil
	}

	// The debit must land even if the caller hangs up after fn returned.
	debitCtx := context.WithoutCancel(ctx)
	if errDebit := Debit(debitCtx, db, userID, cost); errDebit != nil {
		return balance, errDebit
	}
	return Balance(debitCtx, db, userID)
}
