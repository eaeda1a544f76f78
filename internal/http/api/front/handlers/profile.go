package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/account"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"github.com/qingcheng-ai/QingchengAPI/internal/security"
)

// ProfileHandler handles user profile endpoints.
type ProfileHandler struct {
	accounts *account.Service
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(accounts *account.Service) *ProfileHandler {
	return &ProfileHandler{accounts: accounts}
}

// userPayload is the public view of a user.
func userPayload(user models.User) gin.H {
	return gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"nickname":      user.Nickname,
		"credits":       user.Credits,
		"is_admin":      user.IsAdmin,
		"referral_code": user.DeviceSuffix,
		"last_login_at": user.LastLoginAt,
		"created_at":    user.CreatedAt,
	}
}

// Get returns the current user's profile and balance.
func (h *ProfileHandler) Get(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, errProfile := h.accounts.Profile(c.Request.Context(), userID)
	if errProfile != nil {
		if errors.Is(errProfile, account.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, userPayload(*user))
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword verifies and updates the user's password.
func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.OldPassword) == "" || strings.TrimSpace(body.NewPassword) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}

	errChange := h.accounts.ChangePassword(c.Request.Context(), userID, body.OldPassword, body.NewPassword)
	switch {
	case errChange == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case errors.Is(errChange, account.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "old password incorrect"})
	case errors.Is(errChange, security.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "password too short"})
	case errors.Is(errChange, account.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "change password failed"})
	}
}
