package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/alipay"
	"github.com/qingcheng-ai/QingchengAPI/internal/settings"
	"github.com/qingcheng-ai/QingchengAPI/internal/util"
	log "github.com/sirupsen/logrus"
)

// SettingsHandler manages the database-backed settings.
type SettingsHandler struct {
	store *settings.Store
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// settingDTO is one setting as returned to administrators.
type settingDTO struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	IsEnabled bool      `json:"is_enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List returns every setting with secret values masked.
func (h *SettingsHandler) List(c *gin.Context) {
	entries, errAll := h.store.All(c.Request.Context())
	if errAll != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]settingDTO, 0, len(keys))
	for _, key := range keys {
		entry := entries[key]
		value := entry.Value
		if settings.SecretKeys[key] {
			value = util.MaskSecret(value)
		}
		out = append(out, settingDTO{Key: key, Value: value, IsEnabled: entry.IsEnabled, UpdatedAt: entry.UpdatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// settingUpdate is one entry of an update request. Nil fields are left unchanged.
type settingUpdate struct {
	Key       string  `json:"key"`
	Value     *string `json:"value"`
	IsEnabled *bool   `json:"is_enabled"`
}

// updateSettingsRequest defines the request body for settings updates.
type updateSettingsRequest struct {
	Settings []settingUpdate `json:"settings"`
}

// Update validates and writes settings, then drops the cached snapshot.
func (h *SettingsHandler) Update(c *gin.Context) {
	var body updateSettingsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.Settings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no settings provided"})
		return
	}

	for i := range body.Settings {
		item := &body.Settings[i]
		item.Key = strings.TrimSpace(item.Key)
		if !settings.EditableKeys[item.Key] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown setting: " + item.Key})
			return
		}
		if item.Value == nil {
			continue
		}
		value := strings.TrimSpace(*item.Value)
		item.Value = &value
		if value == "" {
			continue
		}
		switch item.Key {
		case settings.AlipayPrivateKeyKey:
			if _, errKey := alipay.ParsePrivateKey(value); errKey != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid private key"})
				return
			}
		case settings.AlipayPublicKeyKey:
			if _, errKey := alipay.ParsePublicKey(value); errKey != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid public key"})
				return
			}
		}
	}

	ctx := c.Request.Context()
	for _, item := range body.Settings {
		if errPut := h.store.Put(ctx, item.Key, item.Value, item.IsEnabled); errPut != nil {
			log.WithError(errPut).WithField("key", item.Key).Error("update setting failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update settings failed"})
			return
		}
		log.WithFields(log.Fields{
			"key":         item.Key,
			"value_set":   item.Value != nil,
			"enabled_set": item.IsEnabled != nil,
			"user_id":     c.GetUint64("userID"),
		}).Info("setting updated")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
