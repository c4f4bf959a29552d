package handler

import (
	"errors"
	"net/http"

	"histai-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SubscriptionHandler 负责频道订阅检查。
type SubscriptionHandler struct {
	subscriptionService service.SubscriptionService
}

// NewSubscriptionHandler 创建一个新的 SubscriptionHandler 实例。
func NewSubscriptionHandler(subscriptionService service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService}
}

// Check 实时查询 Telegram 并更新订阅状态。
func (h *SubscriptionHandler) Check(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.subscriptionService.Check(c.Request.Context(), user)
	if err != nil {
		h.respond(c, err)
		return
	}
	respondOK(c, "success", status)
}

// Status 返回最近一次检查结果。
func (h *SubscriptionHandler) Status(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.subscriptionService.Status(user)
	if err != nil {
		h.respond(c, err)
		return
	}
	respondOK(c, "success", status)
}

// Channel 返回频道链接。
func (h *SubscriptionHandler) Channel(c *gin.Context) {
	link, err := h.subscriptionService.ChannelLink()
	if err != nil {
		h.respond(c, err)
		return
	}
	respondOK(c, "success", gin.H{"channelLink": link})
}

func (h *SubscriptionHandler) respond(c *gin.Context, err error) {
	if errors.Is(err, service.ErrChannelNotConfigured) {
		respondError(c, http.StatusInternalServerError, "Channel ID not configured")
		return
	}
	respondServiceError(c, err)
}
