package redeem

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/qingcheng-ai/QingchengAPI/internal/db"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"github.com/qingcheng-ai/QingchengAPI/internal/ratelimit"
	"gorm.io/gorm"
)

var jan15 = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func setupRedeemDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:redeem_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func createUser(t *testing.T, conn *gorm.DB, name string) uint64 {
	t.Helper()
	user := models.User{Username: name, Password: "x"}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user.ID
}

func newTestService(conn *gorm.DB, limiter ratelimit.Limiter, now time.Time) *Service {
	svc := NewService(conn, time.UTC, limiter)
	svc.now = func() time.Time { return now }
	return svc
}

func TestValidateCodeDateWindow(t *testing.T) {
	if err := ValidateCode("15AB28XYZ", jan15); err != nil {
		t.Fatalf("expected code valid on the 15th: %v", err)
	}
	if err := ValidateCode("15AB28XYZ", jan15.AddDate(0, 0, 1)); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected code invalid on the 16th, got %v", err)
	}
	// Month rollover: Jan 25 + 13 days = Feb 7.
	if err := ValidateCode("25QQ07ABC", time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("expected rollover code valid: %v", err)
	}
}

func TestValidateCodeRejectsMalformed(t *testing.T) {
	cases := map[string]error{
		"15AB28XY":   ErrInvalidFormat,
		"15AB28XYZZ": ErrInvalidFormat,
		"15ab28XYZ":  ErrInvalidCode,
		"15A128XYZ":  ErrInvalidCode,
		"15AB28XY1":  ErrInvalidCode,
		"14AB28XYZ":  ErrInvalidCode,
		"15AB27XYZ":  ErrInvalidCode,
	}
	for code, want := range cases {
		if err := ValidateCode(code, jan15); !errors.Is(err, want) {
			t.Fatalf("code %q: expected %v, got %v", code, want, err)
		}
	}
}

func TestGenerateCodeIsValid(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateCode(jan15)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if err := ValidateCode(code, jan15); err != nil {
			t.Fatalf("generated code %q invalid: %v", code, err)
		}
	}
}

func TestRedeemGrantsCreditsOnce(t *testing.T) {
	conn := setupRedeemDB(t)
	alice := createUser(t, conn, "alice")
	bob := createUser(t, conn, "bob")
	svc := newTestService(conn, nil, jan15)
	ctx := context.Background()

	balance, err := svc.Redeem(ctx, Input{Code: "15AB28XYZ", UserID: alice, DeviceID: "device-alice"})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if balance != RewardCredits {
		t.Fatalf("expected %d credits, got %d", RewardCredits, balance)
	}

	if _, err := svc.Redeem(ctx, Input{Code: "15AB28XYZ", UserID: bob, DeviceID: "device-bob"}); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("expected used code to be rejected for another user, got %v", err)
	}

	var logs int64
	conn.Model(&models.RedemptionLog{}).Count(&logs)
	if logs != 1 {
		t.Fatalf("expected one redemption log, got %d", logs)
	}
}

func TestRedeemDeviceMonthlyQuota(t *testing.T) {
	conn := setupRedeemDB(t)
	alice := createUser(t, conn, "alice")
	bob := createUser(t, conn, "bob")
	svc := newTestService(conn, nil, jan15)
	ctx := context.Background()

	if _, err := svc.Redeem(ctx, Input{Code: "15AB28XYZ", UserID: alice, DeviceID: "shared-device"}); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if _, err := svc.Redeem(ctx, Input{Code: "15CD28UVW", UserID: bob, DeviceID: "shared-device"}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected device quota error, got %v", err)
	}

	var user models.User
	conn.First(&user, bob)
	if user.Credits != 0 {
		t.Fatalf("rejected redemption granted credits: %d", user.Credits)
	}

	// A new month opens a new quota bucket.
	feb := newTestService(conn, nil, time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC))
	if _, err := feb.Redeem(ctx, Input{Code: "03AB16XYZ", UserID: bob, DeviceID: "shared-device"}); err != nil {
		t.Fatalf("expected redemption in next month: %v", err)
	}
}

func TestRedeemMissingUserRollsBack(t *testing.T) {
	conn := setupRedeemDB(t)
	svc := newTestService(conn, nil, jan15)

	if _, err := svc.Redeem(context.Background(), Input{Code: "15AB28XYZ", UserID: 777, DeviceID: "d"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
	var used int64
	conn.Model(&models.UsedCode{}).Count(&used)
	if used != 0 {
		t.Fatalf("code must stay unused after rollback")
	}
}

func TestRedeemMissingParameters(t *testing.T) {
	svc := newTestService(setupRedeemDB(t), nil, jan15)
	if _, err := svc.Redeem(context.Background(), Input{Code: "15AB28XYZ", UserID: 1}); !errors.Is(err, ErrMissingParameters) {
		t.Fatalf("expected missing parameters, got %v", err)
	}
}

func TestRedeemRateLimited(t *testing.T) {
	conn := setupRedeemDB(t)
	alice := createUser(t, conn, "alice")
	svc := newTestService(conn, ratelimit.NewLocalLimiter(1, time.Minute), jan15)
	ctx := context.Background()

	if _, err := svc.Redeem(ctx, Input{Code: "99ZZ99ZZZ", UserID: alice, DeviceID: "d"}); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected invalid code on first attempt, got %v", err)
	}
	_, err := svc.Redeem(ctx, Input{Code: "15AB28XYZ", UserID: alice, DeviceID: "d"})
	var limited *RateLimitError
	if !errors.As(err, &limited) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if limited.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after")
	}
}

func TestMonthKey(t *testing.T) {
	if got := MonthKey(jan15); got != "2026-01" {
		t.Fatalf("unexpected month key %q", got)
	}
}
