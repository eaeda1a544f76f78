package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Invocation errors.
var (
	// ErrProviderBusy wraps the last error once every attempt hit a retryable failure.
	ErrProviderBusy = errors.New("ai provider busy")
	// ErrNotConfigured indicates the provider API key is missing.
	ErrNotConfigured = errors.New("ai provider not configured")
	// ErrEmptyResponse indicates a successful call without the expected content.
	ErrEmptyResponse = errors.New("ai provider returned no content")
	// ErrUnknownTask indicates an unsupported task name.
	ErrUnknownTask = errors.New("unknown ai task")
	// ErrInvalidRequest indicates a request the provider would reject outright.
	ErrInvalidRequest = errors.New("invalid ai request")
)

// ProviderError is a non-2xx response from the provider.
type ProviderError struct {
	StatusCode int
	Status     string // Provider status name, e.g. RESOURCE_EXHAUSTED.
	Message    string
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("gemini: status=%d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini: status=%d %s", e.StatusCode, e.Status)
}

// retryableMessages are provider phrases that indicate transient overload.
var retryableMessages = []string{
	"rate limit",
	"quota",
	"overloaded",
	"temporarily",
	"resource exhausted",
	"resource_exhausted",
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		switch providerErr.StatusCode {
		case 429, 500, 503:
			return true
		}
	}
	if IsTimeout(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range retryableMessages {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// User-facing messages for failed invocations.
const (
	MessageBusy    = "AI service busy, please retry later"
	MessageTimeout = "AI service timed out, please retry"
	MessageGeneric = "AI service error"
)

// UserMessage maps an invocation error to a message safe to show to end users.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case IsTimeout(err):
		return MessageTimeout
	case errors.Is(err, ErrProviderBusy), IsRetryable(err):
		return MessageBusy
	default:
		return MessageGeneric
	}
}
