package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"histai-go/internal/model"
	"histai-go/internal/service"
	"histai-go/pkg/log"
	"histai-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// GenerationHandler 负责画像生成及生成记录。
type GenerationHandler struct {
	generationService service.GenerationService
	userService       service.UserService
	jwtManager        *token.JWTManager
}

// NewGenerationHandler 创建一个新的 GenerationHandler 实例。
func NewGenerationHandler(generationService service.GenerationService, userService service.UserService, jwtManager *token.JWTManager) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		userService:       userService,
		jwtManager:        jwtManager,
	}
}

// generationSummary 是生成成功后返回给客户端的字段
func generationSummary(g *model.Generation) gin.H {
	return gin.H{
		"id":         g.ID,
		"imageUrl":   g.ImageURL,
		"personName": g.PersonName,
		"createdAt":  g.CreatedAt,
	}
}

// Generate 同步执行一次生成。
func (h *GenerationHandler) Generate(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Generate: Invalid request payload, error: %v", err)
		respondError(c, http.StatusBadRequest, "Invalid input data")
		return
	}

	gen, err := h.generationService.Generate(c.Request.Context(), user, req, clientIP(c), nil)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, "success", gin.H{
		"success":    true,
		"generation": generationSummary(gen),
	})
}

// wsMessage 是 websocket 上推送的事件
type wsMessage struct {
	Type       string      `json:"type"`
	Stage      string      `json:"stage,omitempty"`
	Generation interface{} `json:"generation,omitempty"`
	Status     int         `json:"status,omitempty"`
	Message    string      `json:"message,omitempty"`
	ErrorCode  string      `json:"errorCode,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Timestamp  int64       `json:"timestamp"`
}

func writeWS(conn *websocket.Conn, msg wsMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

// Stream 通过 websocket 执行生成并推送进度。
// 客户端每发送一条与 POST /generate 相同的 JSON，服务端依次推送 progress 与 completion 或 error。
func (h *GenerationHandler) Stream(c *gin.Context) {
	claims, err := h.jwtManager.VerifyAccessToken(c.Param("token"))
	if err != nil {
		respondError(c, http.StatusUnauthorized, "无效的 token")
		return
	}
	user, err := h.userService.GetProfile(claims.UserID)
	if err != nil {
		respondError(c, http.StatusNotFound, "User not found")
		return
	}
	ip := clientIP(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立, userID: %d", user.ID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Infof("WebSocket 连接关闭, userID: %d: %v", user.ID, err)
			return
		}

		var req service.GenerateRequest
		if err := json.Unmarshal(message, &req); err != nil {
			_ = writeWS(conn, wsMessage{Type: "error", Status: http.StatusBadRequest, Message: "Invalid input data"})
			continue
		}

		progress := func(stage string) {
			if err := writeWS(conn, wsMessage{Type: "progress", Stage: stage}); err != nil {
				log.Warnf("推送生成进度失败: %v", err)
			}
		}
		// 连接期间订阅或管理员状态可能变化，每次生成前重新加载用户
		current, err := h.userService.GetProfile(user.ID)
		if err != nil {
			if err := writeWS(conn, wsMessage{Type: "error", Status: http.StatusNotFound, Message: "User not found"}); err != nil {
				return
			}
			continue
		}
		gen, err := h.generationService.Generate(c.Request.Context(), current, req, ip, progress)
		if err != nil {
			status, body := errorBody(err)
			msg := wsMessage{Type: "error", Status: status, Data: body["data"]}
			msg.Message, _ = body["message"].(string)
			msg.ErrorCode, _ = body["errorCode"].(string)
			if err := writeWS(conn, msg); err != nil {
				return
			}
			continue
		}
		if err := writeWS(conn, wsMessage{Type: "completion", Generation: generationSummary(gen)}); err != nil {
			return
		}
	}
}

// generationView 是生成记录列表中的一行
type generationView struct {
	model.Generation
	HistoricalPerson *personView `json:"historicalPerson"`
}

type personView struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Era  string `json:"era"`
}

// List 返回当前用户成功的生成记录。
func (h *GenerationHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)
	gens, total, err := h.generationService.ListMine(user.ID, limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	views := make([]generationView, 0, len(gens))
	for _, g := range gens {
		v := generationView{Generation: g}
		if g.HistoricalPerson != nil {
			v.HistoricalPerson = &personView{ID: g.HistoricalPerson.ID, Name: g.HistoricalPerson.Name, Era: g.HistoricalPerson.Era}
		}
		views = append(views, v)
	}
	respondOK(c, "success", gin.H{
		"generations": views,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

// Public 返回最新的公开画像，无需登录。
func (h *GenerationHandler) Public(c *gin.Context) {
	gens, err := h.generationService.ListPublic(queryInt(c, "limit", 12))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	items := make([]gin.H, 0, len(gens))
	for _, g := range gens {
		items = append(items, gin.H{
			"id":         g.ID,
			"url":        g.ImageURL,
			"alt":        g.PersonName,
			"personName": g.PersonName,
		})
	}
	respondOK(c, "success", gin.H{"generations": items})
}

// Delete 删除当前用户的一条生成记录。
func (h *GenerationHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.generationService.Delete(user, c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, "Generation deleted", gin.H{"success": true})
}
