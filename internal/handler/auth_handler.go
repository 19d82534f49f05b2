package handler

import (
	"net/http"

	"github.com/SergeiKhy/shortlinks/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Срок жизни cookie админки в секундах
const authCookieMaxAge = 24 * 60 * 60

// AuthHandler вход в админку: API ключ меняется на cookie
type AuthHandler struct {
	keys   *middleware.APIKey
	logger *zap.Logger
}

func NewAuthHandler(keys *middleware.APIKey, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{keys: keys, logger: logger}
}

type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login godoc
// @Summary Log in to the admin panel
// @Tags auth
// @Accept json
// @Param request body LoginRequest true "API key as password"
// @Success 200 {object} SuccessResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	name, ok := h.keys.Validate(req.Password)
	if !ok {
		h.logger.Warn("Failed admin login", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid_password", Message: "Неверный пароль"})
		return
	}

	h.logger.Info("Admin login", zap.String("key", name), zap.String("ip", c.ClientIP()))
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AuthCookieName, req.Password, authCookieMaxAge, "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AuthCookieName, "", -1, "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}
