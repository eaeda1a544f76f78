package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/payment"
	log "github.com/sirupsen/logrus"
)

// PaymentHandler handles package checkout and gateway callbacks.
type PaymentHandler struct {
	payments *payment.Service
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments *payment.Service) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Packages lists the purchasable credit packages.
func (h *PaymentHandler) Packages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packages": payment.Packages()})
}

// createOrderRequest defines the request body for checkout.
type createOrderRequest struct {
	PackageID string `json:"package_id"`
}

// CreateOrder records a pending order and returns the gateway form.
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body createOrderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	packageID := strings.TrimSpace(body.PackageID)
	if packageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing package_id"})
		return
	}

	res, errCreate := h.payments.CreateOrder(c.Request.Context(), payment.CreateOrderInput{
		UserID:    userID,
		PackageID: packageID,
		BaseURL:   payment.BaseURLFromHost(c.Request.Host),
	})
	if errCreate != nil {
		switch {
		case errors.Is(errCreate, payment.ErrUnknownPackage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown package"})
		case errors.Is(errCreate, payment.ErrGatewayDisabled):
			c.JSON(http.StatusBadRequest, gin.H{"error": "payment is currently disabled"})
		case errors.Is(errCreate, payment.ErrGatewayNotConfigured):
			log.WithError(errCreate).Error("payment gateway misconfigured")
			c.JSON(http.StatusBadRequest, gin.H{"error": "payment is currently unavailable"})
		case errors.Is(errCreate, payment.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			log.WithError(errCreate).Error("create order failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create order failed"})
		}
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetOrder returns one of the current user's orders.
func (h *PaymentHandler) GetOrder(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	order, errFind := h.payments.GetOrder(c.Request.Context(), userID, c.Param("order_id"))
	if errFind != nil {
		if errors.Is(errFind, payment.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query order failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":   order.OrderID,
		"package_id": order.PackageID,
		"amount":     order.Amount,
		"credits":    order.Credits,
		"status":     order.Status,
		"paid_at":    order.PaidAt,
		"created_at": order.CreatedAt,
	})
}

// Notify handles the gateway's asynchronous payment callback. The reply is
// the plain-text acknowledgement the gateway expects.
func (h *PaymentHandler) Notify(c *gin.Context) {
	if errParse := c.Request.ParseForm(); errParse != nil {
		log.WithError(errParse).Warn("payment notify: unreadable form")
		c.String(http.StatusOK, string(payment.AckFail))
		return
	}
	params := make(map[string]string, len(c.Request.PostForm))
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	res, errNotify := h.payments.HandleNotification(c.Request.Context(), params, payment.NotifyMeta{
		RemoteIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if errNotify != nil {
		log.WithError(errNotify).WithField("order_id", res.OrderID).Warn("payment notify rejected")
	}
	c.String(http.StatusOK, string(res.Ack))
}
