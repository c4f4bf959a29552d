package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"histai-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 日志中请求体与响应体的最大长度
const maxLoggedBody = 2048

// RequestIDHeader 请求 ID 的响应头
const RequestIDHeader = "X-Request-ID"

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 将响应写入 gin.ResponseWriter 和内部 buffer，超出上限的部分不再缓存
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// textual 判断内容类型是否适合写入日志
func textual(contentType string) bool {
	return contentType == "" || strings.Contains(contentType, "json") || strings.HasPrefix(contentType, "text/")
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "...(truncated)"
	}
	return string(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// 图像、表格等二进制响应只记录长度。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("requestId", requestID)
		c.Header(RequestIDHeader, requestID)

		var requestBody []byte
		if c.Request.Body != nil && textual(c.ContentType()) {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		responseBody := blw.body.String()
		if !textual(c.Writer.Header().Get("Content-Type")) {
			responseBody = "<binary>"
		}
		reqLog := log.With("requestId", requestID)
		fields := []interface{}{
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", truncate(requestBody),
			"responseBody", responseBody,
			"responseSize", c.Writer.Size(),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			reqLog.Errorw("HTTP Request Log", fields...)
		case status >= 400:
			reqLog.Warnw("HTTP Request Log", fields...)
		default:
			reqLog.Infow("HTTP Request Log", fields...)
		}
	}
}
