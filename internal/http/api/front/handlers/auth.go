package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qingcheng-ai/QingchengAPI/internal/account"
	"github.com/qingcheng-ai/QingchengAPI/internal/config"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"github.com/qingcheng-ai/QingchengAPI/internal/security"
	log "github.com/sirupsen/logrus"
)

// AuthHandler handles user authentication endpoints.
type AuthHandler struct {
	accounts *account.Service
	jwtCfg   config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(accounts *account.Service, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{accounts: accounts, jwtCfg: jwtCfg}
}

// registerRequest defines the request body for user registration.
type registerRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Nickname     string `json:"nickname"`
	DeviceID     string `json:"device_id"`
	ReferrerCode string `json:"referrer_code"`
}

// Register creates a new user account and signs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, errRegister := h.accounts.Register(c.Request.Context(), account.RegisterInput{
		Username:     body.Username,
		Password:     body.Password,
		Nickname:     body.Nickname,
		DeviceID:     body.DeviceID,
		ReferrerCode: body.ReferrerCode,
	})
	if errRegister != nil {
		switch {
		case errors.Is(errRegister, account.ErrMissingCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		case errors.Is(errRegister, security.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": "password too short"})
		case errors.Is(errRegister, account.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
		default:
			log.WithError(errRegister).Error("register failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		}
		return
	}

	token, errToken := h.issueToken(res.User)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate token failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token": token,
		"user":  userPayload(res.User),
		"bonus": res.Bonus,
	})
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

// Login authenticates a user and issues a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	user, errLogin := h.accounts.Login(c.Request.Context(), body.Username, body.Password, body.DeviceID)
	if errLogin != nil {
		switch {
		case errors.Is(errLogin, account.ErrMissingCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		case errors.Is(errLogin, account.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		case errors.Is(errLogin, account.ErrUserDisabled):
			c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		default:
			log.WithError(errLogin).Error("login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		}
		return
	}

	token, errToken := h.issueToken(*user)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  userPayload(*user),
	})
}

func (h *AuthHandler) issueToken(user models.User) (string, error) {
	return security.GenerateToken(h.jwtCfg.Secret, user.ID, user.Username, user.IsAdmin, h.jwtCfg.Expiry())
}
