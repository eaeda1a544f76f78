package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/redeem"
	log "github.com/sirupsen/logrus"
)

// RedeemHandler handles redemption code endpoints for users.
type RedeemHandler struct {
	redeemer *redeem.Service
}

// NewRedeemHandler constructs a RedeemHandler.
func NewRedeemHandler(redeemer *redeem.Service) *RedeemHandler {
	return &RedeemHandler{redeemer: redeemer}
}

// redeemRequest defines the request body for code redemption.
type redeemRequest struct {
	Code     string `json:"code"`
	DeviceID string `json:"device_id"`
}

// Redeem applies a redemption code for the current user.
func (h *RedeemHandler) Redeem(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body redeemRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	balance, errRedeem := h.redeemer.Redeem(c.Request.Context(), redeem.Input{
		Code:     body.Code,
		UserID:   userID,
		DeviceID: body.DeviceID,
	})
	if errRedeem != nil {
		var rateErr *redeem.RateLimitError
		switch {
		case errors.As(errRedeem, &rateErr):
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.RetryAfter.Seconds()))))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": redeem.ErrRateLimited.Error()})
		case errors.Is(errRedeem, redeem.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": errRedeem.Error()})
		case errors.Is(errRedeem, redeem.ErrMissingParameters),
			errors.Is(errRedeem, redeem.ErrInvalidFormat),
			errors.Is(errRedeem, redeem.ErrInvalidCode),
			errors.Is(errRedeem, redeem.ErrAlreadyUsed),
			errors.Is(errRedeem, redeem.ErrQuotaExceeded):
			c.JSON(http.StatusBadRequest, gin.H{"error": errRedeem.Error()})
		default:
			log.WithError(errRedeem).Error("redeem failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credits": balance,
		"reward":  redeem.RewardCredits,
	})
}
