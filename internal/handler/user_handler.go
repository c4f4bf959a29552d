package handler

import (
	"histai-go/internal/service"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责当前用户资料与配额。
type UserHandler struct {
	quotaService service.QuotaService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(quotaService service.QuotaService) *UserHandler {
	return &UserHandler{quotaService: quotaService}
}

// GetProfile 返回当前用户及今日配额。
// 用户信息已经由 AuthMiddleware 注入到上下文中。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.quotaService.DailyStatus(user.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, "success", gin.H{
		"user":       user,
		"dailyLimit": status,
	})
}

// GetLimit 返回今日配额。
func (h *UserHandler) GetLimit(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.quotaService.DailyStatus(user.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, "success", status)
}
