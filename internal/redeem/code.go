package redeem

import (
	"fmt"
	"strings"
	"time"

	"github.com/qingcheng-ai/QingchengAPI/internal/security"
)

// Code layout: DD LL dd LLL where DD is today's day of month, dd the day of
// month expiryOffsetDays later, and L an upper-case letter.
const (
	CodeLength       = 9
	expiryOffsetDays = 13
	monthLayout      = "2006-01"
)

// ValidateCode checks a code against the calendar date of now.
func ValidateCode(code string, now time.Time) error {
	if len(code) != CodeLength {
		return ErrInvalidFormat
	}
	today := fmt.Sprintf("%02d", now.Day())
	later := fmt.Sprintf("%02d", now.AddDate(0, 0, expiryOffsetDays).Day())
	if code[0:2] != today || code[4:6] != later {
		return ErrInvalidCode
	}
	if !isUpperLetters(code[2:4]) || !isUpperLetters(code[6:9]) {
		return ErrInvalidCode
	}
	return nil
}

// GenerateCode returns a random code valid on the calendar date of now.
func GenerateCode(now time.Time) (string, error) {
	first, err := security.RandomString(security.UpperLetters, 2)
	if err != nil {
		return "", err
	}
	second, err := security.RandomString(security.UpperLetters, 3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d%s%02d%s", now.Day(), first, now.AddDate(0, 0, expiryOffsetDays).Day(), second), nil
}

// MonthKey returns the YYYY-MM bucket used for the per-device quota.
func MonthKey(now time.Time) string {
	return now.Format(monthLayout)
}

func isUpperLetters(s string) bool {
	return s != "" && strings.Trim(s, security.UpperLetters) == ""
}
