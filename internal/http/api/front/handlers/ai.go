package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/credits"
	"github.com/qingcheng-ai/QingchengAPI/internal/gemini"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Invoker runs one AI request with retries.
type Invoker interface {
	Invoke(ctx context.Context, req gemini.Request) (*gemini.Result, gemini.Invocation, error)
}

// AIHandler charges credits for successful AI invocations.
type AIHandler struct {
	db  *gorm.DB
	ai  Invoker
	now func() time.Time
}

// NewAIHandler constructs an AIHandler.
func NewAIHandler(db *gorm.DB, ai Invoker) *AIHandler {
	return &AIHandler{db: db, ai: ai, now: time.Now}
}

// invokeRequest defines the request body for an AI invocation.
type invokeRequest struct {
	Task   string         `json:"task"`
	Prompt string         `json:"prompt"`
	Images []gemini.Image `json:"images"`
}

// Invoke calls the provider and debits the task cost only after it succeeds.
func (h *AIHandler) Invoke(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body invokeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	task, errTask := gemini.ParseTask(body.Task)
	if errTask != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown task"})
		return
	}

	ctx := c.Request.Context()
	started := h.now()
	cost := task.Cost()

	var (
		result *gemini.Result
		info   gemini.Invocation
		errAI  error
	)
	balance, errSpend := credits.Spend(ctx, h.db, userID, cost, func(ctx context.Context) error {
		result, info, errAI = h.ai.Invoke(ctx, gemini.Request{Task: task, Prompt: body.Prompt, Images: body.Images})
		return errAI
	})

	// Spend reports insufficient credits either before the call or when the
	// guarded debit loses a race after it. Neither releases the result.
	if errSpend != nil && info.Attempts > 0 {
		h.record(context.WithoutCancel(ctx), userID, task, info, started, errSpend, 0)
	}
	if errSpend != nil {
		h.respondError(c, userID, task, errSpend)
		return
	}
	h.record(context.WithoutCancel(ctx), userID, task, info, started, nil, cost)

	c.JSON(http.StatusOK, gin.H{
		"result":   result,
		"credits":  balance,
		"charged":  cost,
		"attempts": info.Attempts,
	})
}

func (h *AIHandler) respondError(c *gin.Context, userID uint64, task gemini.Task, err error) {
	entry := log.WithError(err).WithFields(log.Fields{"user_id": userID, "task": task})
	var providerErr *gemini.ProviderError
	switch {
	case errors.Is(err, credits.ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient credits"})
	case errors.Is(err, credits.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, gemini.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt or image required"})
	case errors.Is(err, gemini.ErrNotConfigured):
		entry.Error("ai provider not configured")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gemini.MessageGeneric})
	case errors.Is(err, gemini.ErrProviderBusy), gemini.IsTimeout(err):
		entry.Warn("ai provider unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gemini.UserMessage(err)})
	case errors.As(err, &providerErr), errors.Is(err, gemini.ErrEmptyResponse):
		entry.Warn("ai provider failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": gemini.UserMessage(err)})
	default:
		entry.Error("ai invoke failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": gemini.MessageGeneric})
	}
}

// invocationError is stored in Invocation.ErrorDetail.
type invocationError struct {
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// record writes the invocation row. Failures are logged and never change the response.
func (h *AIHandler) record(ctx context.Context, userID uint64, task gemini.Task, info gemini.Invocation, started time.Time, err error, charged int64) {
	row := models.Invocation{
		UserID:         userID,
		Task:           string(task),
		Model:          info.Model,
		Attempts:       info.Attempts,
		Failed:         err != nil,
		CreditsCharged: charged,
		LatencyMs:      h.now().Sub(started).Milliseconds(),
		RequestedAt:    started.UTC(),
	}
	if err != nil {
		detail := invocationError{Message: err.Error()}
		var providerErr *gemini.ProviderError
		if errors.As(err, &providerErr) {
			status := providerErr.StatusCode
			row.ErrorStatusCode = &status
			detail.Status = providerErr.Status
		}
		if raw, errMarshal := json.Marshal(detail); errMarshal == nil {
			row.ErrorDetail = datatypes.JSON(raw)
		}
	}
	if errCreate := h.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).WithField("user_id", userID).Warn("record invocation failed")
	}
}
