package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	internalsettings "github.com/qingcheng-ai/QingchengAPI/internal/settings"
	log "github.com/sirupsen/logrus"
)

// publicConfigResponse is the response payload for public config.
type publicConfigResponse struct {
	SiteName       string `json:"site_name"`
	PaymentEnabled bool   `json:"payment_enabled"`
}

// ConfigHandler serves the public configuration.
type ConfigHandler struct {
	settings        *internalsettings.Store
	defaultSiteName string
}

// NewConfigHandler constructs a ConfigHandler.
func NewConfigHandler(settings *internalsettings.Store, defaultSiteName string) *ConfigHandler {
	return &ConfigHandler{settings: settings, defaultSiteName: defaultSiteName}
}

// Get returns public configuration for the front UI.
func (h *ConfigHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	siteName, errSite := h.settings.String(ctx, internalsettings.SiteNameKey, h.defaultSiteName)
	if errSite != nil {
		log.WithError(errSite).Warn("load site name failed")
		siteName = h.defaultSiteName
	}
	payment, errPayment := h.settings.Payment(ctx)
	if errPayment != nil {
		log.WithError(errPayment).Warn("load payment config failed")
	}
	c.JSON(http.StatusOK, publicConfigResponse{
		SiteName:       siteName,
		PaymentEnabled: errPayment == nil && payment.Enabled && payment.Configured(),
	})
}
