package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/config"
	"github.com/qingcheng-ai/QingchengAPI/internal/http/api/admin/handlers"
	"github.com/qingcheng-ai/QingchengAPI/internal/http/api/front"
	"github.com/qingcheng-ai/QingchengAPI/internal/redeem"
	"github.com/qingcheng-ai/QingchengAPI/internal/settings"
	"gorm.io/gorm"
)

// Deps holds the services behind the admin routes.
type Deps struct {
	DB       *gorm.DB
	JWT      config.JWTConfig
	Settings *settings.Store
	Redeemer *redeem.Service
}

// RegisterAdminRoutes registers the health check and admin-only routes.
func RegisterAdminRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	admin := r.Group("/v0/admin")
	admin.Use(front.UserAuthMiddleware(deps.DB, deps.JWT), adminOnlyMiddleware())

	settingsHandler := handlers.NewSettingsHandler(deps.Settings)
	admin.GET("/settings", settingsHandler.List)
	admin.PUT("/settings", settingsHandler.Update)

	codesHandler := handlers.NewRedeemCodeHandler(deps.Redeemer)
	admin.POST("/redeem-codes", codesHandler.Generate)

	ordersHandler := handlers.NewOrderHandler(deps.DB)
	admin.GET("/orders", ordersHandler.List)
}
