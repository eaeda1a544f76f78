package payment

import (
	"context"
	"strings"
	"time"

	"github.com/qingcheng-ai/QingchengAPI/internal/alipay"
	"github.com/qingcheng-ai/QingchengAPI/internal/settings"
	"gorm.io/gorm"
)

// ConfigSource supplies the current gateway configuration.
type ConfigSource interface {
	Payment(ctx context.Context) (settings.PaymentConfig, error)
}

// Options holds the static gateway options.
type Options struct {
	GatewayURL string
	Subject    string
	// AllowUnverifiedNotify processes callbacks whose signature fails to verify.
	AllowUnverifiedNotify bool
}

// Service creates payment orders and settles gateway callbacks.
type Service struct {
	db      *gorm.DB
	config  ConfigSource
	opts    Options
	now     func() time.Time
	orderID func(time.Time) (string, error)
}

// NewService constructs a Service.
func NewService(db *gorm.DB, config ConfigSource, opts Options) *Service {
	if strings.TrimSpace(opts.GatewayURL) == "" {
		opts.GatewayURL = alipay.DefaultGatewayURL
	}
	if strings.TrimSpace(opts.Subject) == "" {
		opts.Subject = "AI credits"
	}
	return &Service{
		db:      db,
		config:  config,
		opts:    opts,
		now:     time.Now,
		orderID: NewOrderID,
	}
}

// NotifyPath is the callback route registered with the gateway.
const NotifyPath = "/v0/front/payment/notify"

// BaseURLFromHost derives the public base URL from a request host.
func BaseURLFromHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		host = "localhost"
	}
	scheme := "https"
	if strings.Contains(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
		scheme = "http"
	}
	return scheme + "://" + host
}
