package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"gorm.io/gorm"
)

// UsageHandler reports a user's AI invocations.
type UsageHandler struct {
	db  *gorm.DB
	loc *time.Location
}

// NewUsageHandler constructs a UsageHandler. Day boundaries use loc.
func NewUsageHandler(db *gorm.DB, loc *time.Location) *UsageHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &UsageHandler{db: db, loc: loc}
}

// usageSummary aggregates invocation statistics.
type usageSummary struct {
	TotalRequests  int64 `json:"total_requests"`
	FailedRequests int64 `json:"failed_requests"`
	CreditsSpent   int64 `json:"credits_spent"`
}

// Stats returns invocation summaries for recent time windows.
func (h *UsageHandler) Stats(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	now := time.Now().In(h.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
	periods := map[string]time.Time{
		"today":   today,
		"7_days":  today.AddDate(0, 0, -6),
		"30_days": today.AddDate(0, 0, -29),
	}

	result := make(map[string]usageSummary, len(periods))
	for name, since := range periods {
		var summary usageSummary
		if errScan := h.db.WithContext(c.Request.Context()).Model(&models.Invocation{}).
			Where("user_id = ? AND requested_at >= ?", userID, since.UTC()).
			Select("COUNT(*) AS total_requests, " +
				"COALESCE(SUM(CASE WHEN failed THEN 1 ELSE 0 END), 0) AS failed_requests, " +
				"COALESCE(SUM(credits_charged), 0) AS credits_spent").
			Scan(&summary).Error; errScan != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage failed"})
			return
		}
		result[name] = summary
	}

	c.JSON(http.StatusOK, result)
}

// usageListQuery defines query parameters for listing invocations.
type usageListQuery struct {
	Page  int    `form:"page,default=1"`
	Limit int    `form:"limit,default=20"`
	Task  string `form:"task"`
}

// invocationEntry is one row of the invocation history.
type invocationEntry struct {
	ID             uint64    `json:"id"`
	Task           string    `json:"task"`
	Model          string    `json:"model"`
	Attempts       int       `json:"attempts"`
	Failed         bool      `json:"failed"`
	CreditsCharged int64     `json:"credits_charged"`
	LatencyMs      int64     `json:"latency_ms"`
	RequestedAt    time.Time `json:"requested_at"`
}

// List returns the user's invocation history, newest first.
func (h *UsageHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var q usageListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.Invocation{}).Where("user_id = ?", userID)
	if q.Task != "" {
		query = query.Where("task = ?", q.Task)
	}

	var total int64
	if errCount := query.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage failed"})
		return
	}

	var rows []models.Invocation
	if errFind := query.Session(&gorm.Session{}).Order("requested_at DESC, id DESC").
		Offset((q.Page - 1) * q.Limit).Limit(q.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage failed"})
		return
	}

	items := make([]invocationEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, invocationEntry{
			ID:             row.ID,
			Task:           row.Task,
			Model:          row.Model,
			Attempts:       row.Attempts,
			Failed:         row.Failed,
			CreditsCharged: row.CreditsCharged,
			LatencyMs:      row.LatencyMs,
			RequestedAt:    row.RequestedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"invocations": items,
		"total":       total,
		"page":        q.Page,
		"limit":       q.Limit,
	})
}
