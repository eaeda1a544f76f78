package front

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/account"
	"github.com/qingcheng-ai/QingchengAPI/internal/config"
	"github.com/qingcheng-ai/QingchengAPI/internal/http/api/front/handlers"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"github.com/qingcheng-ai/QingchengAPI/internal/payment"
	"github.com/qingcheng-ai/QingchengAPI/internal/redeem"
	"github.com/qingcheng-ai/QingchengAPI/internal/security"
	"github.com/qingcheng-ai/QingchengAPI/internal/settings"
	"gorm.io/gorm"
)

// Deps holds the services behind the front-end routes.
type Deps struct {
	DB       *gorm.DB
	JWT      config.JWTConfig
	SiteName string
	Location *time.Location // Calendar used for usage windows.
	Accounts *account.Service
	Settings *settings.Store
	Payments *payment.Service
	Redeemer *redeem.Service
	AI       handlers.Invoker
}

// RegisterFrontRoutes registers public and authenticated front-end routes.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	front := r.Group("/v0/front")

	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.JWT)
	front.POST("/register", authHandler.Register)
	front.POST("/login", authHandler.Login)

	configHandler := handlers.NewConfigHandler(deps.Settings, deps.SiteName)
	front.GET("/config", configHandler.Get)

	paymentHandler := handlers.NewPaymentHandler(deps.Payments)
	front.GET("/payment/packages", paymentHandler.Packages)
	front.POST(strings.TrimPrefix(payment.NotifyPath, "/v0/front"), paymentHandler.Notify)

	authed := front.Group("")
	authed.Use(UserAuthMiddleware(deps.DB, deps.JWT))

	profileHandler := handlers.NewProfileHandler(deps.Accounts)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile/password", profileHandler.ChangePassword)

	authed.POST("/payment/orders", paymentHandler.CreateOrder)
	authed.GET("/payment/orders/:order_id", paymentHandler.GetOrder)

	redeemHandler := handlers.NewRedeemHandler(deps.Redeemer)
	authed.POST("/redeem", redeemHandler.Redeem)

	aiHandler := handlers.NewAIHandler(deps.DB, deps.AI)
	authed.POST("/ai/invoke", aiHandler.Invoke)

	usageHandler := handlers.NewUsageHandler(deps.DB, deps.Location)
	authed.GET("/usage/stats", usageHandler.Stats)
	authed.GET("/usage/invocations", usageHandler.List)
}

// UserAuthMiddleware validates user JWTs and loads the user into context.
func UserAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).
			Select("id", "disabled", "is_admin").
			First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		c.Set("userID", user.ID)
		c.Set("isAdmin", user.IsAdmin)
		c.Next()
	}
}
