// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"fmt"
	"time"
)

// 业务错误，由 handler 映射为 HTTP 状态码
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrSubscriptionRequired  = errors.New("channel subscription required")
	ErrDailyLimitReached     = errors.New("daily generation limit reached")
	ErrIPLimitReached        = errors.New("too many generations from this ip")
	ErrPersonNotFound        = errors.New("historical person not found")
	ErrGenerationNotFound    = errors.New("generation not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidTelegramAuth   = errors.New("invalid telegram authorization")
	ErrInvalidAdminSecret    = errors.New("invalid admin secret")
	ErrAdminSetupDisabled    = errors.New("admin setup is disabled")
	ErrChannelNotConfigured  = errors.New("telegram channel is not configured")
	ErrInvalidRefreshToken   = errors.New("invalid refresh token")
	ErrImageGenerationFailed = errors.New("image generation failed")
)

// LimitError 携带限额信息，Unwrap 为 ErrDailyLimitReached 或 ErrIPLimitReached。
type LimitError struct {
	Kind       error
	Limit      int
	Used       int
	Remaining  int
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%v: used %d of %d", e.Kind, e.Used, e.Limit)
}

func (e *LimitError) Unwrap() error {
	return e.Kind
}

// NotFoundError 携带人物查找失败的原因
type NotFoundError struct {
	Name  string
	Cause error
}

func (e *NotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("historical person %q not found: %v", e.Name, e.Cause)
	}
	return fmt.Sprintf("historical person %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrPersonNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Cause
}
