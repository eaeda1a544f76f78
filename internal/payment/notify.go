package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qingcheng-ai/QingchengAPI/internal/alipay"
	"github.com/qingcheng-ai/QingchengAPI/internal/credits"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Ack is the plain-text body the gateway expects in reply to a callback.
// Anything other than "success" makes the gateway redeliver.
type Ack string

// Callback acknowledgements.
const (
	AckSuccess Ack = "success"
	AckFail    Ack = "fail"
)

// Notification errors explain a fail acknowledgement.
var (
	// ErrNotifyKeyMissing indicates no gateway public key is configured.
	ErrNotifyKeyMissing = errors.New("gateway public key not configured")
	// ErrNotifyUnknownOrder indicates the callback names an unknown order.
	ErrNotifyUnknownOrder = errors.New("notification for unknown order")
	// ErrNotifyAmountMismatch indicates the paid amount differs from the order.
	ErrNotifyAmountMismatch = errors.New("notification amount mismatch")
)

// NotifyMeta carries transport details logged with suspicious callbacks.
type NotifyMeta struct {
	RemoteIP  string
	UserAgent string
}

// NotifyResult describes how a callback was handled.
type NotifyResult struct {
	Ack     Ack
	OrderID string
	Granted bool // Credits were granted by this delivery.
}

// HandleNotification verifies and settles a payment callback. Redelivered
// callbacks for a paid order acknowledge success without granting again.
func (s *Service) HandleNotification(ctx context.Context, params map[string]string, meta NotifyMeta) (NotifyResult, error) {
	orderID := strings.TrimSpace(params["out_trade_no"])
	tradeStatus := strings.TrimSpace(params["trade_status"])
	tradeNo := strings.TrimSpace(params["trade_no"])
	result := NotifyResult{Ack: AckFail, OrderID: orderID}
	entry := log.WithFields(log.Fields{
		"order_id":     orderID,
		"trade_no":     tradeNo,
		"trade_status": tradeStatus,
	})

	cfg, errCfg := s.config.Payment(ctx)
	if errCfg != nil {
		entry.WithError(errCfg).Error("payment notify: load config failed")
		return result, errCfg
	}
	if strings.TrimSpace(cfg.PublicKey) == "" {
		entry.Error("payment notify: gateway public key not configured")
		return result, ErrNotifyKeyMissing
	}

	if errVerify := alipay.Verify(params, cfg.PublicKey); errVerify != nil {
		suspicious := entry.WithError(errVerify).WithFields(log.Fields{
			"remote_ip":  meta.RemoteIP,
			"user_agent": meta.UserAgent,
		})
		if !s.opts.AllowUnverifiedNotify {
			suspicious.Warn("payment notify: signature verification failed, rejecting")
			return result, errVerify
		}
		suspicious.Warn("payment notify: signature verification failed, processing because allow-unverified-notify is set")
	}

	if tradeStatus != alipay.TradeStatusSuccess && tradeStatus != alipay.TradeStatusFinished {
		entry.Info("payment notify: non-final trade status, acknowledged without changes")
		result.Ack = AckSuccess
		return result, nil
	}

	var order models.Order
	if errFind := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			entry.Warn("payment notify: order not found")
			return result, ErrNotifyUnknownOrder
		}
		entry.WithError(errFind).Error("payment notify: load order failed")
		return result, errFind
	}

	if order.Status == models.OrderStatusPaid {
		entry.Info("payment notify: order already paid")
		result.Ack = AckSuccess
		return result, nil
	}

	if raw := strings.TrimSpace(params["total_amount"]); raw != "" {
		paid, errAmount := decimal.NewFromString(raw)
		if errAmount != nil || !paid.Equal(order.Amount) {
			entry.WithFields(log.Fields{
				"expected": order.Amount.StringFixed(2),
				"received": raw,
			}).Warn("payment notify: amount mismatch")
			return result, ErrNotifyAmountMismatch
		}
	}

	granted, errSettle := s.settle(ctx, order, tradeNo)
	if errSettle != nil {
		entry.WithError(errSettle).Error("payment notify: settle order failed")
		return result, errSettle
	}

	result.Ack = AckSuccess
	result.Granted = granted
	if granted {
		entry.WithFields(log.Fields{
			"user_id": order.UserID,
			"credits": order.Credits,
		}).Info("payment notify: order paid, credits granted")
	} else {
		entry.Info("payment notify: concurrent delivery already settled order")
	}
	return result, nil
}

// settle flips the order to paid and grants its credits in one transaction.
// The status compare-and-set ensures only one delivery grants.
func (s *Service) settle(ctx context.Context, order models.Order, tradeNo string) (bool, error) {
	granted := false
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()
		updates := map[string]any{
			"status":     models.OrderStatusPaid,
			"paid_at":    now,
			"updated_at": now,
		}
		if tradeNo != "" {
			updates["trade_no"] = tradeNo
		}
		res := tx.Model(&models.Order{}).
			Where("order_id = ? AND status = ?", order.OrderID, models.OrderStatusPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("mark order paid: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if errGrant := credits.Grant(ctx, tx, order.UserID, order.Credits); errGrant != nil {
			return errGrant
		}
		granted = true
		return nil
	})
	if errTx != nil {
		return false, errTx
	}
	return granted, nil
}
