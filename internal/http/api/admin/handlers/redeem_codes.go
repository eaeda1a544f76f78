package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/redeem"
)

// RedeemCodeHandler issues redemption codes for the current day.
type RedeemCodeHandler struct {
	redeemer *redeem.Service
}

// NewRedeemCodeHandler constructs a RedeemCodeHandler.
func NewRedeemCodeHandler(redeemer *redeem.Service) *RedeemCodeHandler {
	return &RedeemCodeHandler{redeemer: redeemer}
}

// generateCodesRequest defines the request body for code generation.
type generateCodesRequest struct {
	Count int `json:"count"`
}

// Generate returns fresh codes valid on today's date in the redemption time zone.
func (h *RedeemCodeHandler) Generate(c *gin.Context) {
	var body generateCodesRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	if body.Count == 0 {
		body.Count = 1
	}
	if body.Count < 0 || body.Count > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 1 and 100"})
		return
	}

	now := h.redeemer.Now()
	codes := make([]string, 0, body.Count)
	for i := 0; i < body.Count; i++ {
		code, errCode := redeem.GenerateCode(now)
		if errCode != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "generate code failed"})
			return
		}
		codes = append(codes, code)
	}
	c.JSON(http.StatusCreated, gin.H{
		"codes":    codes,
		"valid_on": now.Format("2006-01-02"),
		"reward":   redeem.RewardCredits,
	})
}
