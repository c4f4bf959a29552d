package handler

import (
	"crypto/subtle"
	"net/http"

	"histai-go/internal/service"
	"histai-go/pkg/log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
)

// webhookSecretHeader Telegram 在 setWebhook 配置 secret_token 后携带的请求头
const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// TelegramHandler 接收 Telegram webhook。
type TelegramHandler struct {
	botService service.BotService
	secret     string
}

// NewTelegramHandler 创建一个新的 TelegramHandler 实例，secret 为空时不校验请求头。
func NewTelegramHandler(botService service.BotService, secret string) *TelegramHandler {
	return &TelegramHandler{botService: botService, secret: secret}
}

// Webhook 处理一条 Update。
func (h *TelegramHandler) Webhook(c *gin.Context) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(webhookSecretHeader)), []byte(h.secret)) != 1 {
		log.Warnf("[TelegramHandler] webhook secret 不匹配, ip: %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid secret token"})
		return
	}
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid update"})
		return
	}
	if err := h.botService.HandleUpdate(c.Request.Context(), &update); err != nil {
		log.Errorf("[TelegramHandler] 处理 update %d 失败: %v", update.UpdateID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Info 用于确认 webhook 地址可达。
func (h *TelegramHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Telegram webhook endpoint",
		"method":  "POST",
	})
}
