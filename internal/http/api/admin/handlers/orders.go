package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"gorm.io/gorm"
)

// OrderHandler lists payment orders for reconciliation.
type OrderHandler struct {
	db *gorm.DB
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(db *gorm.DB) *OrderHandler {
	return &OrderHandler{db: db}
}

// orderListQuery defines query parameters for listing orders.
type orderListQuery struct {
	Page   int    `form:"page,default=1"`
	Limit  int    `form:"limit,default=20"`
	Status string `form:"status"`
	UserID uint64 `form:"user_id"`
}

// List returns orders filtered by status and user, newest first.
func (h *OrderHandler) List(c *gin.Context) {
	var q orderListQuery
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

	query := h.db.WithContext(c.Request.Context()).Model(&models.Order{})
	if status := strings.TrimSpace(q.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if q.UserID != 0 {
		query = query.Where("user_id = ?", q.UserID)
	}

	var total int64
	if errCount := query.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list orders failed"})
		return
	}
	var rows []models.Order
	if errFind := query.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Offset((q.Page - 1) * q.Limit).Limit(q.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list orders failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"order_id":   row.OrderID,
			"user_id":    row.UserID,
			"package_id": row.PackageID,
			"amount":     row.Amount,
			"credits":    row.Credits,
			"status":     row.Status,
			"trade_no":   row.TradeNo,
			"paid_at":    row.PaidAt,
			"created_at": row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"orders": out, "total": total, "page": q.Page, "limit": q.Limit})
}
