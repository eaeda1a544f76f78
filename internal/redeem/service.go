package redeem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qingcheng-ai/QingchengAPI/internal/credits"
	"github.com/qingcheng-ai/QingchengAPI/internal/db"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"github.com/qingcheng-ai/QingchengAPI/internal/ratelimit"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RewardCredits is granted for each successful redemption.
const RewardCredits = 5

// Input identifies a redemption attempt.
type Input struct {
	Code     string
	UserID   uint64
	DeviceID string
}

// Service validates and settles redemption codes.
type Service struct {
	db      *gorm.DB
	loc     *time.Location
	limiter ratelimit.Limiter
	now     func() time.Time
}

// NewService constructs a Service. Codes and month buckets follow loc.
func NewService(db *gorm.DB, loc *time.Location, limiter ratelimit.Limiter) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Service{db: db, loc: loc, limiter: limiter, now: time.Now}
}

// Now returns the current time in the redemption time zone.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// Redeem grants RewardCredits for a valid, unused code and returns the new balance.
func (s *Service) Redeem(ctx context.Context, in Input) (int64, error) {
	code := strings.TrimSpace(in.Code)
	deviceID := strings.TrimSpace(in.DeviceID)
	if code == "" || deviceID == "" || in.UserID == 0 {
		return 0, ErrMissingParameters
	}

	decision, errLimit := s.limiter.Allow(ctx, "redeem:"+deviceID)
	if errLimit != nil {
		// Fail open; code and device uniqueness are enforced by the store.
		log.WithError(errLimit).Warn("redeem: rate limiter unavailable")
	} else if !decision.Allowed {
		return 0, &RateLimitError{RetryAfter: decision.RetryAfter}
	}

	now := s.Now()
	if errValidate := ValidateCode(code, now); errValidate != nil {
		return 0, errValidate
	}
	month := MonthKey(now)

	var balance int64
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var used int64
		if errCount := tx.Model(&models.UsedCode{}).Where("code = ?", code).Count(&used).Error; errCount != nil {
			return errCount
		}
		if used > 0 {
			return ErrAlreadyUsed
		}
		var logged int64
		if errCount := tx.Model(&models.RedemptionLog{}).
			Where("device_id = ? AND redeemed_month = ?", deviceID, month).
			Count(&logged).Error; errCount != nil {
			return errCount
		}
		if logged > 0 {
			return ErrQuotaExceeded
		}

		if errCreate := tx.Create(&models.UsedCode{Code: code, UserID: in.UserID}).Error; errCreate != nil {
			if db.IsUniqueViolation(errCreate) {
				return ErrAlreadyUsed
			}
			return errCreate
		}
		if errCreate := tx.Create(&models.RedemptionLog{
			UserID:        in.UserID,
			DeviceID:      deviceID,
			Code:          code,
			RedeemedMonth: month,
			Credits:       RewardCredits,
		}).Error; errCreate != nil {
			if db.IsUniqueViolation(errCreate) {
				return ErrQuotaExceeded
			}
			return errCreate
		}
		if errGrant := credits.Grant(ctx, tx, in.UserID, RewardCredits); errGrant != nil {
			if errors.Is(errGrant, credits.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return errGrant
		}
		current, errBalance := credits.Balance(ctx, tx, in.UserID)
		if errBalance != nil {
			return errBalance
		}
		balance = current
		return nil
	})
	if errTx != nil {
		if isRedeemError(errTx) {
			return 0, errTx
		}
		return 0, fmt.Errorf("redeem: %w", errTx)
	}

	log.WithFields(log.Fields{
		"user_id":   in.UserID,
		"device_id": deviceID,
		"month":     month,
	}).Info("redeem: code redeemed")
	return balance, nil
}

func isRedeemError(err error) bool {
	for _, target := range []error{ErrAlreadyUsed, ErrQuotaExceeded, ErrUserNotFound} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
