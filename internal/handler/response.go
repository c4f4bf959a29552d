// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"histai-go/internal/model"
	"histai-go/internal/personinfo"
	"histai-go/internal/service"
	"histai-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 机器可读的错误码
const (
	ErrorCodeSubscriptionRequired = "SUBSCRIPTION_REQUIRED"
	ErrorCodeDailyLimitReached    = "DAILY_LIMIT_REACHED"
	ErrorCodeIPLimitReached       = "IP_LIMIT_REACHED"
)

// personNotFoundHint 找不到人物时给用户的提示
const personNotFoundHint = "Попробуйте указать полное имя исторической личности"

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    nil,
	})
}

// currentUser 取出 AuthMiddleware 注入的用户
func currentUser(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get("user")
	if !exists {
		respondError(c, http.StatusInternalServerError, "无法获取用户信息")
		return nil, false
	}
	user, ok := v.(*model.User)
	if !ok {
		respondError(c, http.StatusInternalServerError, "用户数据类型错误")
		return nil, false
	}
	return user, true
}

// clientIP 优先使用代理头中的地址
func clientIP(c *gin.Context) string {
	ip := personinfo.ClientIP(c.GetHeader("X-Forwarded-For"), c.GetHeader("X-Real-IP"))
	if ip == "unknown" {
		if direct := c.ClientIP(); direct != "" {
			return direct
		}
	}
	return ip
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// maxSearchLimit 检索与联想接口单次返回的上限
const maxSearchLimit = 50

// clampLimit 把 limit 限制在 [1, max]
func clampLimit(v, max int) int {
	if v < 1 {
		return 1
	}
	if v > max {
		return max
	}
	return v
}

// errorBody 把业务错误映射为状态码与响应体
func errorBody(err error) (int, gin.H) {
	var limitErr *service.LimitError
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &limitErr):
		code := ErrorCodeDailyLimitReached
		if errors.Is(err, service.ErrIPLimitReached) {
			code = ErrorCodeIPLimitReached
		}
		return http.StatusTooManyRequests, gin.H{
			"code":      http.StatusTooManyRequests,
			"message":   limitErr.Kind.Error(),
			"errorCode": code,
			"data": gin.H{
				"limit":      limitErr.Limit,
				"used":       limitErr.Used,
				"remaining":  limitErr.Remaining,
				"retryAfter": retryAfterSeconds(limitErr),
			},
		}
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": validationErr.Message, "data": nil}
	case errors.Is(err, service.ErrSubscriptionRequired):
		return http.StatusForbidden, gin.H{
			"code":      http.StatusForbidden,
			"message":   "Subscription required",
			"errorCode": ErrorCodeSubscriptionRequired,
			"data":      nil,
		}
	case errors.Is(err, service.ErrPersonNotFound):
		return http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": err.Error(),
			"data":    gin.H{"hint": personNotFoundHint},
		}
	case errors.Is(err, service.ErrGenerationNotFound), errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": err.Error(), "data": nil}
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrInvalidAdminSecret), errors.Is(err, service.ErrAdminSetupDisabled):
		return http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": err.Error(), "data": nil}
	case errors.Is(err, service.ErrInvalidTelegramAuth), errors.Is(err, service.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": err.Error(), "data": nil}
	case errors.Is(err, service.ErrImageGenerationFailed):
		return http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to generate image",
			"data":    gin.H{"details": err.Error()},
		}
	}
	return http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "Internal server error", "data": nil}
}

func retryAfterSeconds(e *service.LimitError) int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// respondServiceError 写出业务错误，限额错误附带 Retry-After 与 X-RateLimit-Remaining
func respondServiceError(c *gin.Context, err error) {
	status, body := errorBody(err)
	var limitErr *service.LimitError
	if errors.As(err, &limitErr) {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(limitErr)))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limitErr.Remaining))
	}
	if status >= http.StatusInternalServerError {
		log.Errorf("[Handler] %s %s 失败: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, body)
}
