package redeem

import (
	"errors"
	"fmt"
	"time"
)

// Redemption errors. Messages are safe to show to end users.
var (
	ErrMissingParameters = errors.New("missing parameters")
	ErrInvalidFormat     = errors.New("invalid redemption code format")
	ErrInvalidCode       = errors.New("redemption code invalid or expired")
	ErrAlreadyUsed       = errors.New("redemption code already used")
	ErrQuotaExceeded     = errors.New("this device has already redeemed a code this month")
	ErrUserNotFound      = errors.New("user not found")
	ErrRateLimited       = errors.New("too many redemption attempts")
)

// RateLimitError reports when the device may try again.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
