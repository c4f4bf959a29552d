package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServiceName 出现在健康检查响应中
const ServiceName = "histai-go"

// Health 返回服务存活状态。
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   ServiceName,
	})
}
