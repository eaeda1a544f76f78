package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qingcheng-ai/QingchengAPI/internal/credits"
	"github.com/qingcheng-ai/QingchengAPI/internal/db"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"github.com/qingcheng-ai/QingchengAPI/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// RegistrationBonus is granted on the first registration from a device.
	RegistrationBonus int64 = 5
	// ReferralBonus is granted to the referrer of a new account.
	ReferralBonus int64 = 1
	// SuffixLength is the number of trailing device id characters used as a referral code.
	SuffixLength = 6
)

var (
	// ErrMissingCredentials indicates an empty username or password.
	ErrMissingCredentials = errors.New("missing username or password")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrInvalidCredentials indicates an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserDisabled indicates the account is blocked.
	ErrUserDisabled = errors.New("user disabled")
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Username     string
	Password     string
	Nickname     string
	DeviceID     string
	ReferrerCode string
}

// RegisterResult describes a newly created account.
type RegisterResult struct {
	User       models.User
	Bonus      int64   // Credits granted to the new user.
	ReferrerID *uint64 // Set when a referrer was credited.
}

// Service manages user accounts and the device-based bonuses.
type Service struct {
	db   *gorm.DB
	hash func(string) (string, error)
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(conn *gorm.DB) *Service {
	return &Service{db: conn, hash: security.HashPassword, now: time.Now}
}

// DeviceSuffix returns the referral code derived from a device id.
func DeviceSuffix(deviceID string) string {
	deviceID = strings.TrimSpace(deviceID)
	if len(deviceID) <= SuffixLength {
		return deviceID
	}
	return deviceID[len(deviceID)-SuffixLength:]
}

// Register creates a user, granting the first-device bonus and crediting a
// referrer found by device suffix. All writes share one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	username := strings.TrimSpace(in.Username)
	password := strings.TrimSpace(in.Password)
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	if errPassword := security.ValidatePassword(password); errPassword != nil {
		return nil, errPassword
	}
	hash, errHash := s.hash(password)
	if errHash != nil {
		return nil, fmt.Errorf("hash password: %w", errHash)
	}

	deviceID := strings.TrimSpace(in.DeviceID)
	referrerCode := strings.TrimSpace(in.ReferrerCode)
	now := s.now().UTC()
	result := &RegisterResult{}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if errCount := tx.Model(&models.User{}).Where("username = ?", username).Count(&taken).Error; errCount != nil {
			return errCount
		}
		if taken > 0 {
			return ErrUsernameTaken
		}

		bonus := RegistrationBonus
		if deviceID != "" {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.DeviceUsage{DeviceID: deviceID, CreatedAt: now})
			if res.Error != nil {
				return fmt.Errorf("record device: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				bonus = 0
			}
		}

		user := models.User{
			Username:     username,
			Password:     hash,
			Nickname:     strings.TrimSpace(in.Nickname),
			Credits:      bonus,
			DeviceID:     deviceID,
			DeviceSuffix: DeviceSuffix(deviceID),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if user.Nickname == "" {
			user.Nickname = username
		}

		if deviceID != "" && len(referrerCode) == SuffixLength {
			referrer, errFind := findReferrer(tx, referrerCode, deviceID)
			if errFind != nil {
				return errFind
			}
			if referrer != nil {
				user.ReferredBy = &referrer.ID
			}
		}

		if errCreate := tx.Create(&user).Error; errCreate != nil {
			if db.IsUniqueViolation(errCreate) {
				return ErrUsernameTaken
			}
			return fmt.Errorf("create user: %w", errCreate)
		}
		if deviceID != "" && bonus > 0 {
			if errLink := tx.Model(&models.DeviceUsage{}).
				Where("device_id = ?", deviceID).
				Update("user_id", user.ID).Error; errLink != nil {
				return fmt.Errorf("link device: %w", errLink)
			}
		}
		if user.ReferredBy != nil {
			if errGrant := credits.Grant(ctx, tx, *user.ReferredBy, ReferralBonus); errGrant != nil {
				return fmt.Errorf("credit referrer: %w", errGrant)
			}
		}

		result.User = user
		result.Bonus = bonus
		result.ReferrerID = user.ReferredBy
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	log.WithFields(log.Fields{
		"user_id":  result.User.ID,
		"bonus":    result.Bonus,
		"referred": result.ReferrerID != nil,
	}).Info("account: user registered")
	return result, nil
}

// findReferrer returns the earliest user whose device suffix matches code,
// excluding users on deviceID itself.
func findReferrer(tx *gorm.DB, code, deviceID string) (*models.User, error) {
	var referrer models.User
	query := tx.Where("device_suffix = ?", code)
	if deviceID != "" {
		query = query.Where("device_id <> ?", deviceID)
	}
	errFind := query.Order("id ASC").First(&referrer).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, fmt.Errorf("find referrer: %w", errFind)
	}
	return &referrer, nil
}

// Login checks credentials and records the sign in. A non-empty deviceID
// replaces the stored device and its referral suffix.
func (s *Service) Login(ctx context.Context, username, password, deviceID string) (*models.User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	var user models.User
	if errFind := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", errFind)
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}
	if !security.CheckPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	updates := map[string]any{"last_login_at": now, "updated_at": now}
	if deviceID = strings.TrimSpace(deviceID); deviceID != "" {
		updates["device_id"] = deviceID
		updates["device_suffix"] = DeviceSuffix(deviceID)
	}
	if errUpdate := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; errUpdate != nil {
		return nil, fmt.Errorf("record login: %w", errUpdate)
	}
	return &user, nil
}

// Profile loads a user by id.
func (s *Service) Profile(ctx context.Context, userID uint64) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", errFind)
	}
	return &user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	user, errProfile := s.Profile(ctx, userID)
	if errProfile != nil {
		return errProfile
	}
	if !security.CheckPassword(user.Password, strings.TrimSpace(oldPassword)) {
		return ErrInvalidCredentials
	}
	newPassword = strings.TrimSpace(newPassword)
	if errPassword := security.ValidatePassword(newPassword); errPassword != nil {
		return errPassword
	}
	hash, errHash := s.hash(newPassword)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"password":   hash,
		"updated_at": s.now().UTC(),
	}).Error
}
