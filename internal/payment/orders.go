package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/qingcheng-ai/QingchengAPI/internal/alipay"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"github.com/qingcheng-ai/QingchengAPI/internal/security"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// orderIDPrefix starts every merchant order number.
const orderIDPrefix = "QC"

// CreateOrderInput describes a checkout request.
type CreateOrderInput struct {
	UserID    uint64
	PackageID string
	BaseURL   string // Public scheme://host used for return and notify URLs.
}

// CreateOrderResult is returned to the client to start checkout.
type CreateOrderResult struct {
	OrderID  string          `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
	Credits  int64           `json:"credits"`
	FormHTML string          `json:"form_html"`
}

// NewOrderID returns QC + unix millis + six random upper-case alphanumerics.
func NewOrderID(now time.Time) (string, error) {
	suffix, err := security.RandomString(security.UpperAlphanumeric, 6)
	if err != nil {
		return "", err
	}
	return orderIDPrefix + strconv.FormatInt(now.UnixMilli(), 10) + suffix, nil
}

// CreateOrder records a pending order and returns the signed checkout form.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	cfg, errCfg := s.config.Payment(ctx)
	if errCfg != nil {
		return nil, fmt.Errorf("load payment config: %w", errCfg)
	}
	if !cfg.Configured() {
		return nil, ErrGatewayNotConfigured
	}
	if !cfg.Enabled {
		return nil, ErrGatewayDisabled
	}

	var user models.User
	if errFind := s.db.WithContext(ctx).Select("id").First(&user, in.UserID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", errFind)
	}

	pkg, ok := LookupPackage(strings.TrimSpace(in.PackageID))
	if !ok {
		return nil, ErrUnknownPackage
	}

	now := s.now()
	orderID, errID := s.orderID(now)
	if errID != nil {
		return nil, errID
	}

	baseURL := strings.TrimRight(in.BaseURL, "/")
	form, errForm := alipay.BuildWapPayForm(alipay.WapPayRequest{
		GatewayURL: s.opts.GatewayURL,
		AppID:      cfg.AppID,
		PrivateKey: cfg.PrivateKey,
		OrderID:    orderID,
		Amount:     pkg.Price.StringFixed(2),
		Subject:    fmt.Sprintf("%s x%d", s.opts.Subject, pkg.Credits),
		ReturnURL:  baseURL + "/",
		NotifyURL:  baseURL + NotifyPath,
		Now:        now,
	})
	if errForm != nil {
		// Unparseable key material surfaces as a configuration error.
		log.WithError(errForm).WithField("order_id", orderID).Error("payment: sign checkout request failed")
		return nil, fmt.Errorf("%w: %v", ErrGatewayNotConfigured, errForm)
	}

	order := models.Order{
		OrderID:   orderID,
		UserID:    user.ID,
		PackageID: pkg.ID,
		Amount:    pkg.Price,
		Credits:   pkg.Credits,
		Status:    models.OrderStatusPending,
	}
	if errCreate := s.db.WithContext(ctx).Create(&order).Error; errCreate != nil {
		return nil, fmt.Errorf("create order: %w", errCreate)
	}

	log.WithFields(log.Fields{
		"order_id": orderID,
		"user_id":  user.ID,
		"package":  pkg.ID,
		"amount":   pkg.Price.StringFixed(2),
	}).Info("payment: order created")

	return &CreateOrderResult{
		OrderID:  orderID,
		Amount:   pkg.Price,
		Credits:  pkg.Credits,
		FormHTML: form.HTML,
	}, nil
}

// GetOrder returns one of the user's orders.
func (s *Service) GetOrder(ctx context.Context, userID uint64, orderID string) (*models.Order, error) {
	var order models.Order
	if errFind := s.db.WithContext(ctx).
		Where("order_id = ? AND user_id = ?", strings.TrimSpace(orderID), userID).
		First(&order).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("load order: %w", errFind)
	}
	return &order, nil
}
