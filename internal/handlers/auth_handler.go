package handlers

import (
	"errors"
	"net/http"
	"strings"

	"taskboard/internal/apierr"
	"taskboard/internal/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Login handles POST /api/login. Unknown usernames are registered on first
// login; known ones must match the stored bcrypt hash.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Abort(c, http.StatusBadRequest, "Invalid request. Username and password are required.")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		apierr.Abort(c, http.StatusBadRequest, "Invalid request. Username and password are required.")
		return
	}

	var user models.User
	err := h.DB.Where("username = ?", username).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		hash, herr := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if herr != nil {
			h.fail(c, herr)
			return
		}
		user = models.User{ID: newID(), Username: username, Password: string(hash)}
		if err := h.DB.Create(&user).Error; err != nil {
			h.fail(c, err)
			return
		}
		h.Log.Info("user registered", "user_id", user.ID, "username", user.Username)
	case err != nil:
		h.fail(c, err)
		return
	default:
		if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
			apierr.Abort(c, http.StatusUnauthorized, "Invalid username or password")
			return
		}
	}

	token, err := h.Tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		Message:  "Login successful",
	})
}
