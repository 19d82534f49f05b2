package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/SergeiKhy/shortlinks/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Заголовок с secret_token, заданным при setWebhook
const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// BotHandler принимает webhook Telegram. Токен бота в пути - секрет webhook,
// при заданном secret дополнительно проверяется заголовок Telegram.
type BotHandler struct {
	bot    service.BotService
	token  string
	secret string
	logger *zap.Logger
}

func NewBotHandler(bot service.BotService, token, secret string, logger *zap.Logger) *BotHandler {
	return &BotHandler{bot: bot, token: token, secret: secret, logger: logger}
}

// Webhook всегда отвечает 200 на корректный запрос, иначе Telegram
// будет бесконечно повторять доставку того же обновления
func (h *BotHandler) Webhook(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("token")), []byte(h.token)) != 1 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Not found"})
		return
	}
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(telegramSecretHeader)), []byte(h.secret)) != 1 {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid_secret", Message: "Invalid webhook secret"})
		return
	}

	var update models.TelegramUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Warn("Invalid telegram update", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if err := h.bot.HandleUpdate(c.Request.Context(), &update); err != nil {
		h.logger.Error("Failed to handle telegram update",
			zap.Int64("update_id", update.UpdateID),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Verify ответ на GET-проверку webhook
func (h *BotHandler) Verify(c *gin.Context) {
	if challenge := c.Query("hub.challenge"); challenge != "" {
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusOK, "OK")
}
