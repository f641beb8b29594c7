package handler

import (
	"net/http"

	"nfcunha/vigil/core/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles login, logout and session checks.
type AuthHandler struct {
	auth         *service.AuthService
	cookieName   string
	cookieSecure bool
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(auth *service.AuthService, cookieName string, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		cookieName:   cookieName,
		cookieSecure: cookieSecure,
	}
}

type loginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// Login handles POST /api/login
// Accepts JSON or form credentials and sets the session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, "Username and password are required", err)
		return
	}

	session, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, session.ID, int(h.auth.TTL().Seconds()), "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"user":       gin.H{"username": session.Username, "role": session.Role},
		"expires_at": session.ExpiresAt,
	})
}

// Logout handles POST /api/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	id, _ := c.Cookie(h.cookieName)
	if err := h.auth.Logout(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Check handles GET /api/auth/check
func (h *AuthHandler) Check(c *gin.Context) {
	session := SessionFrom(c)
	if session == nil {
		respondServiceError(c, service.ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          gin.H{"username": session.Username, "role": session.Role},
		"expires_at":    session.ExpiresAt,
	})
}
