package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"histai-go/internal/service"
	"histai-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 导出文件的 MIME 类型
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminHandler 负责处理所有与管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// Stats 返回全局与窗口内统计。
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminService.Stats(queryInt(c, "days", 30))
	if err != nil {
		log.Error("Stats: Failed to build stats", err)
		respondError(c, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}
	respondOK(c, "success", stats)
}

func userListQuery(c *gin.Context) service.UserListQuery {
	q := service.UserListQuery{
		Page:      queryInt(c, "page", 1),
		Limit:     queryInt(c, "limit", 50),
		Search:    c.Query("search"),
		SortBy:    c.DefaultQuery("sortBy", "createdAt"),
		SortOrder: c.DefaultQuery("sortOrder", "desc"),
	}
	if v := c.Query("subscribed"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			q.Subscribed = &b
		}
	}
	return q
}

// ListUsers 分页返回用户及其生成统计。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	res, err := h.adminService.ListUsers(userListQuery(c))
	if err != nil {
		log.Error("ListUsers: Failed to list users", err)
		respondError(c, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	respondOK(c, "success", res)
}

// ExportUsers 以 xlsx 下载用户列表。
func (h *AdminHandler) ExportUsers(c *gin.Context) {
	data, err := h.adminService.ExportUsers(userListQuery(c))
	if err != nil {
		log.Error("ExportUsers: Failed to export users", err)
		respondError(c, http.StatusInternalServerError, "Failed to export users")
		return
	}
	filename := fmt.Sprintf("users-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// Activity 返回按小时或天汇总的生成活动。
func (h *AdminHandler) Activity(c *gin.Context) {
	report, err := h.adminService.Activity(queryInt(c, "days", 7), c.DefaultQuery("groupBy", "hour"))
	if err != nil {
		log.Error("Activity: Failed to build activity", err)
		respondError(c, http.StatusInternalServerError, "Failed to fetch activity")
		return
	}
	respondOK(c, "success", report)
}

// ActivityChart 返回每日生成数量的 PNG 图表。
func (h *AdminHandler) ActivityChart(c *gin.Context) {
	png, err := h.adminService.ActivityChart(queryInt(c, "days", 30))
	if err != nil {
		log.Error("ActivityChart: Failed to render chart", err)
		respondError(c, http.StatusInternalServerError, "Failed to render chart")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// IssueAccessToken 为当前管理员签发后台访问链接。
func (h *AdminHandler) IssueAccessToken(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tok, err := h.adminService.IssueAccessToken(c.Request.Context(), user.ID)
	if err != nil {
		log.Error("IssueAccessToken: Failed to store token", err)
		respondError(c, http.StatusInternalServerError, "Failed to generate access token")
		return
	}
	respondOK(c, "success", tok)
}

// VerifyAccessToken 校验后台访问 token。
func (h *AdminHandler) VerifyAccessToken(c *gin.Context) {
	valid, err := h.adminService.VerifyAccessToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		log.Error("VerifyAccessToken: Failed to verify token", err)
		respondError(c, http.StatusInternalServerError, "Failed to verify access token")
		return
	}
	respondOK(c, "success", gin.H{"valid": valid})
}

// MakeMeAdminRequest 定义了初始化管理员 API 的请求体结构。
type MakeMeAdminRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// MakeMeAdmin 校验初始化密钥后把当前用户设为管理员。
func (h *AdminHandler) MakeMeAdmin(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req MakeMeAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "无效的请求负载：secret 不能为空")
		return
	}
	if err := h.adminService.MakeMeAdmin(user, req.Secret); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, "You are now an admin", gin.H{"user": user})
}

// Providers 返回各 AI 服务是否已配置。
func (h *AdminHandler) Providers(c *gin.Context) {
	respondOK(c, "success", gin.H{"providers": h.adminService.Providers()})
}
