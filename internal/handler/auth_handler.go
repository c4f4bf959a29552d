package handler

import (
	"net/http"

	"histai-go/internal/service"
	"histai-go/pkg/log"
	"histai-go/pkg/telegram"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责 Telegram 登录与 token 刷新。
type AuthHandler struct {
	userService service.UserService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(userService service.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// TelegramLogin 校验 Login Widget 回传的数据并签发 token。
func (h *AuthHandler) TelegramLogin(c *gin.Context) {
	var req telegram.LoginData
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("TelegramLogin: Invalid request payload, error: %v", err)
		respondError(c, http.StatusBadRequest, "无效的请求负载：id、auth_date、hash 不能为空")
		return
	}

	res, err := h.userService.LoginWithTelegram(req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	log.Infof("User %d logged in via Telegram", res.User.TelegramID)
	respondOK(c, "Login successful", gin.H{
		"token":        res.AccessToken,
		"refreshToken": res.RefreshToken,
		"user":         res.User,
	})
}

// RefreshTokenRequest 定义了刷新 token API 的请求体结构。
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshToken 处理刷新 token 的请求。
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("RefreshToken: Invalid request payload, error: %v", err)
		respondError(c, http.StatusBadRequest, "无效的请求负载：refreshToken 不能为空")
		return
	}

	newAccessToken, newRefreshToken, err := h.userService.RefreshToken(req.RefreshToken)
	if err != nil {
		log.Warnf("RefreshToken: Failed to refresh token, error: %v", err)
		respondServiceError(c, err)
		return
	}

	respondOK(c, "Token refreshed successfully", gin.H{
		"token":        newAccessToken,
		"refreshToken": newRefreshToken,
	})
}
