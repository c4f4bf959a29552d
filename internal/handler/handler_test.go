package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"histai-go/internal/config"
	"histai-go/internal/model"
	"histai-go/internal/personinfo"
	"histai-go/internal/repository"
	"histai-go/internal/service"
	"histai-go/pkg/database/sqlitetest"
	"histai-go/pkg/imagegen"
	"histai-go/pkg/llm"
	"histai-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memCounter struct{ counts map[string]int64 }

func (m *memCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.counts[key]++
	return m.counts[key], window, nil
}

func (m *memCounter) Peek(ctx context.Context, key string) (int64, error) { return m.counts[key], nil }

type memTokens struct{ data map[string]uint }

func (m *memTokens) Save(ctx context.Context, tok string, userID uint, ttl time.Duration) error {
	m.data[tok] = userID
	return nil
}

func (m *memTokens) Lookup(ctx context.Context, tok string) (uint, bool, error) {
	id, ok := m.data[tok]
	return id, ok, nil
}

type notFoundLLM struct{}

func (notFoundLLM) Configured() bool { return true }
func (notFoundLLM) ChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	return "This person is not found.", nil
}

type fixedWriter struct{}

func (fixedWriter) Name() string     { return "gemini" }
func (fixedWriter) Configured() bool { return true }
func (fixedWriter) WritePrompt(ctx context.Context, system, user string) (string, error) {
	return "portrait in oil", nil
}

type fixedImages struct{}

func (fixedImages) Generate(ctx context.Context, prompt string) (*imagegen.Image, error) {
	return &imagegen.Image{Data: []byte("\x89PNG\r\n\x1a\n"), MIMEType: "image/png", Provider: "gemini"}, nil
}

type yesChecker struct{}

func (yesChecker) IsSubscribed(channelID string, userID int64) (bool, error) { return true, nil }

type recordMessenger struct{ sent map[int64][]string }

func (m *recordMessenger) SendMessage(chatID int64, text string) error {
	m.sent[chatID] = append(m.sent[chatID], text)
	return nil
}

type env struct {
	router    *gin.Engine
	jwt       *token.JWTManager
	userRepo  repository.UserRepository
	messenger *recordMessenger
}

func newEnv(t *testing.T, dailyLimit int) *env {
	t.Helper()
	db, err := sqlitetest.Open()
	if err != nil {
		t.Fatal(err)
	}
	userRepo := repository.NewUserRepository(db)
	genRepo := repository.NewGenerationRepository(db)
	personRepo := repository.NewPersonRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	if err := personRepo.Create(&model.HistoricalPerson{Name: "Napoleon", Era: "19th Century", Description: "French emperor"}); err != nil {
		t.Fatal(err)
	}

	jwtManager := token.NewJWTManager("secret", 1, 1)
	userService := service.NewUserService(userRepo, jwtManager, config.TelegramConfig{SkipAuthVerification: true})
	quota := service.NewQuotaService(genRepo, &memCounter{counts: map[string]int64{}}, dailyLimit, 100)
	persons := service.NewPersonService(personRepo, notFoundLLM{}, nil, nil, nil)
	prompts := service.NewPromptService(fixedWriter{})
	generations := service.NewGenerationService(genRepo, persons, quota, prompts, fixedImages{}, nil, time.Minute)
	admin := service.NewAdminService(userRepo, genRepo, &memTokens{data: map[string]uint{}}, "", time.Hour, "https://app.example", map[string]bool{"gemini": true})
	messenger := &recordMessenger{sent: map[int64][]string{}}

	r := gin.New()
	RegisterRoutes(r, jwtManager, Services{
		User:         userService,
		Quota:        quota,
		Subscription: service.NewSubscriptionService(yesChecker{}, subRepo, userRepo, "@history"),
		Person:       persons,
		Generation:   generations,
		Admin:        admin,
		Bot:          service.NewBotService(messenger, admin, 100, "@history"),
	}, RouterOptions{WebhookSecret: "hook"})
	return &env{router: r, jwt: jwtManager, userRepo: userRepo, messenger: messenger}
}

func (e *env) request(method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// login 通过 Telegram 登录接口创建用户并返回 access token
func (e *env) login(t *testing.T, telegramID int64) (string, *model.User) {
	t.Helper()
	w := e.request(http.MethodPost, "/api/v1/auth/telegram", "", gin.H{"id": telegramID, "first_name": "Ada", "auth_date": time.Now().Unix(), "hash": "x"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Token string     `json:"token"`
			User  model.User `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Data.Token, &resp.Data.User
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorCode"`
	Data      json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

func TestHealth(t *testing.T) {
	e := newEnv(t, 15)
	w := e.request(http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"healthy"`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestLoginAndProfile(t *testing.T) {
	e := newEnv(t, 15)
	tok, user := e.login(t, 42)
	if user.TelegramID != 42 || user.IsSubscribed {
		t.Fatalf("user = %+v", user)
	}

	w := e.request(http.MethodGet, "/api/v1/users/me", tok, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"remaining":15`) {
		t.Fatalf("me = %d %s", w.Code, w.Body.String())
	}
	if w := e.request(http.MethodGet, "/api/v1/users/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("me without token = %d", w.Code)
	}
	if w := e.request(http.MethodPost, "/api/v1/auth/telegram", "", gin.H{"first_name": "x"}); w.Code != http.StatusBadRequest {
		t.Fatalf("login without id = %d", w.Code)
	}
	if w := e.request(http.MethodPost, "/api/v1/auth/refreshToken", "", gin.H{"refreshToken": tok}); w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh with access token = %d", w.Code)
	}
}

func TestGenerateFlow(t *testing.T) {
	e := newEnv(t, 1)
	tok, _ := e.login(t, 7)

	w := e.request(http.MethodPost, "/api/v1/generate", tok, gin.H{"personName": "Napoleon"})
	if w.Code != http.StatusForbidden || decode(t, w).ErrorCode != ErrorCodeSubscriptionRequired {
		t.Fatalf("unsubscribed = %d %s", w.Code, w.Body.String())
	}

	w = e.request(http.MethodPost, "/api/v1/subscription/check", tok, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"isSubscribed":true`) {
		t.Fatalf("subscription check = %d %s", w.Code, w.Body.String())
	}

	w = e.request(http.MethodPost, "/api/v1/generate", tok, gin.H{"personName": "Napoleon", "style": "cubism"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad style = %d", w.Code)
	}
	w = e.request(http.MethodPost, "/api/v1/generate", tok, gin.H{"personName": "Nobody Special"})
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "hint") {
		t.Fatalf("unknown person = %d %s", w.Code, w.Body.String())
	}

	w = e.request(http.MethodPost, "/api/v1/generate", tok, gin.H{"personName": "Napoleon"})
	if w.Code != http.StatusOK {
		t.Fatalf("generate = %d %s", w.Code, w.Body.String())
	}
	var ok struct {
		Data struct {
			Success    bool `json:"success"`
			Generation struct {
				ID       string `json:"id"`
				ImageURL string `json:"imageUrl"`
			} `json:"generation"`
		} `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &ok)
	if !ok.Data.Success || !strings.HasPrefix(ok.Data.Generation.ImageURL, "data:image/png;base64,") {
		t.Fatalf("generation = %+v", ok.Data)
	}

	w = e.request(http.MethodPost, "/api/v1/generate", tok, gin.H{"personName": "Napoleon"})
	if w.Code != http.StatusTooManyRequests || decode(t, w).ErrorCode != ErrorCodeDailyLimitReached {
		t.Fatalf("limit = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("limit headers = %v", w.Header())
	}

	w = e.request(http.MethodGet, "/api/v1/generations", tok, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total":1`) || !strings.Contains(w.Body.String(), `"era":"19th Century"`) {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}
	w = e.request(http.MethodGet, "/api/v1/generations/public", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"alt":"Napoleon"`) {
		t.Fatalf("public = %d %s", w.Code, w.Body.String())
	}
	w = e.request(http.MethodGet, "/api/v1/generations/limit", tok, nil)
	if !strings.Contains(w.Body.String(), `"isLimitReached":true`) {
		t.Fatalf("limit status = %s", w.Body.String())
	}

	other, _ := e.login(t, 8)
	if w := e.request(http.MethodDelete, "/api/v1/generations/"+ok.Data.Generation.ID, other, nil); w.Code != http.StatusForbidden {
		t.Fatalf("delete by other = %d", w.Code)
	}
	if w := e.request(http.MethodDelete, "/api/v1/generations/"+ok.Data.Generation.ID, tok, nil); w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := e.request(http.MethodDelete, "/api/v1/generations/"+ok.Data.Generation.ID, tok, nil); w.Code != http.StatusNotFound {
		t.Fatalf("delete twice = %d", w.Code)
	}
}

func TestGenerateWebSocket(t *testing.T) {
	e := newEnv(t, 15)
	tok, user := e.login(t, 9)
	if err := e.userRepo.SetSubscribed(user.ID, true); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(e.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/generate/ws/" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(gin.H{"personName": "Napoleon"}); err != nil {
		t.Fatal(err)
	}
	var stages []string
	for {
		var msg wsMessage
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "progress" {
			stages = append(stages, msg.Stage)
			continue
		}
		if msg.Type != "completion" || len(stages) != 5 {
			t.Fatalf("final message = %+v after %v", msg, stages)
		}
		break
	}

	if err := conn.WriteJSON(gin.H{"personName": "<bad>"}); err != nil {
		t.Fatal(err)
	}
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "progress" {
			continue
		}
		if msg.Type != "error" || msg.Status != http.StatusBadRequest {
			t.Fatalf("error message = %+v", msg)
		}
		break
	}

	if _, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/generate/ws/bogus", nil); err == nil {
		t.Fatal("expected handshake failure for bad token")
	}
}

// readFinal 读取到第一条非 progress 消息为止
func readFinal(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	for {
		var msg wsMessage
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != "progress" {
			return msg
		}
	}
}

func TestGenerateWebSocketSeesSubscriptionChange(t *testing.T) {
	e := newEnv(t, 15)
	tok, user := e.login(t, 10)

	srv := httptest.NewServer(e.router)
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/generate/ws/"+tok, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(gin.H{"personName": "Napoleon"}); err != nil {
		t.Fatal(err)
	}
	if msg := readFinal(t, conn); msg.Type != "error" || msg.ErrorCode != ErrorCodeSubscriptionRequired {
		t.Fatalf("before subscribe = %+v", msg)
	}

	// 连接保持期间完成订阅
	if err := e.userRepo.SetSubscribed(user.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(gin.H{"personName": "Napoleon"}); err != nil {
		t.Fatal(err)
	}
	if msg := readFinal(t, conn); msg.Type != "completion" {
		t.Fatalf("after subscribe = %+v", msg)
	}
}

func TestPersonsEndpoints(t *testing.T) {
	e := newEnv(t, 15)
	w := e.request(http.MethodGet, "/api/v1/persons?era=19th%20Century", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total":1`) {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}
	if w := e.request(http.MethodGet, "/api/v1/persons/search?q=x", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("short search = %d", w.Code)
	}
	w = e.request(http.MethodGet, "/api/v1/persons/search?q=Napo&useInternet=false", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"name":"Napoleon"`) {
		t.Fatalf("search = %d %s", w.Code, w.Body.String())
	}
	w = e.request(http.MethodGet, "/api/v1/persons/autocomplete?q=Nap", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"source":"database"`) {
		t.Fatalf("autocomplete = %d %s", w.Code, w.Body.String())
	}
	w = e.request(http.MethodGet, "/api/v1/subscription/channel", "", nil)
	if !strings.Contains(w.Body.String(), "https://t.me/history") {
		t.Fatalf("channel = %s", w.Body.String())
	}
}

// limitRecorder 记录传入 PersonService 的 limit
type limitRecorder struct {
	service.PersonService
	limits []int
}

func (r *limitRecorder) Search(ctx context.Context, query string, useInternet bool, limit int) ([]model.HistoricalPerson, error) {
	r.limits = append(r.limits, limit)
	return nil, nil
}

func (r *limitRecorder) Autocomplete(ctx context.Context, query string, limit int) ([]personinfo.Suggestion, error) {
	r.limits = append(r.limits, limit)
	return nil, nil
}

func TestPersonSearchLimitIsClamped(t *testing.T) {
	rec := &limitRecorder{}
	h := NewPersonHandler(rec)
	r := gin.New()
	r.GET("/search", h.Search)
	r.GET("/autocomplete", h.Autocomplete)

	paths := []string{
		"/search?q=Napoleon&limit=100000",
		"/search?q=Napoleon&limit=-3",
		"/search?q=Napoleon",
		"/autocomplete?q=Nap&limit=0",
		"/autocomplete?q=Nap&limit=999",
		"/autocomplete?q=Nap",
	}
	for _, p := range paths {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s = %d %s", p, w.Code, w.Body.String())
		}
	}
	want := []int{50, 1, 20, 1, 50, 5}
	if len(rec.limits) != len(want) {
		t.Fatalf("limits = %v", rec.limits)
	}
	for i := range want {
		if rec.limits[i] != want[i] {
			t.Fatalf("limits = %v, want %v", rec.limits, want)
		}
	}
}

func TestAdminEndpoints(t *testing.T) {
	e := newEnv(t, 15)
	tok, user := e.login(t, 11)
	if w := e.request(http.MethodGet, "/api/v1/admin/stats", tok, nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin stats = %d", w.Code)
	}
	if w := e.request(http.MethodPost, "/api/v1/admin/make-me-admin", tok, gin.H{"secret": "x"}); w.Code != http.StatusForbidden {
		t.Fatalf("make-me-admin disabled = %d", w.Code)
	}
	if err := e.userRepo.SetAdmin(user.ID, true); err != nil {
		t.Fatal(err)
	}

	w := e.request(http.MethodGet, "/api/v1/admin/stats?days=7", tok, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"totalUsers":1`) {
		t.Fatalf("stats = %d %s", w.Code, w.Body.String())
	}
	w = e.request(http.MethodGet, "/api/v1/admin/users?search=ada", tok, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"telegramId":11`) {
		t.Fatalf("users = %d %s", w.Code, w.Body.String())
	}
	w = e.request(http.MethodGet, "/api/v1/admin/users/export", tok, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("export = %d %v", w.Code, w.Header())
	}
	w = e.request(http.MethodGet, "/api/v1/admin/activity/chart.png?days=7", tok, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("chart = %d %v", w.Code, w.Header())
	}
	w = e.request(http.MethodGet, "/api/v1/admin/activity?groupBy=day", tok, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"groupBy":"day"`) {
		t.Fatalf("activity = %d %s", w.Code, w.Body.String())
	}

	w = e.request(http.MethodPost, "/api/v1/admin/access-token", tok, nil)
	var issued struct {
		Data service.AccessToken `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &issued)
	if w.Code != http.StatusOK || issued.Data.Token == "" {
		t.Fatalf("access-token = %d %s", w.Code, w.Body.String())
	}
	w = e.request(http.MethodGet, "/api/v1/admin/access-token/verify?token="+issued.Data.Token, tok, nil)
	if !strings.Contains(w.Body.String(), `"valid":true`) {
		t.Fatalf("verify = %s", w.Body.String())
	}
	w = e.request(http.MethodGet, "/api/v1/admin/providers", tok, nil)
	if !strings.Contains(w.Body.String(), `"gemini":true`) {
		t.Fatalf("providers = %s", w.Body.String())
	}
}

func TestTelegramWebhook(t *testing.T) {
	e := newEnv(t, 15)
	update := gin.H{"update_id": 1, "message": gin.H{
		"message_id": 1,
		"date":       time.Now().Unix(),
		"text":       "/start",
		"chat":       gin.H{"id": 555, "type": "private"},
		"from":       gin.H{"id": 555, "is_bot": false, "first_name": "A"},
		"entities":   []gin.H{{"type": "bot_command", "offset": 0, "length": 6}},
	}}

	if w := e.request(http.MethodPost, "/api/v1/telegram/webhook", "", update); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret = %d", w.Code)
	}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(update)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telegram/webhook", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhookSecretHeader, "hook")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("webhook = %d %s", w.Code, w.Body.String())
	}
	if len(e.messenger.sent[555]) != 1 {
		t.Fatalf("sent = %v", e.messenger.sent)
	}

	if w := e.request(http.MethodGet, "/api/v1/telegram/webhook", "", nil); w.Code != http.StatusOK {
		t.Fatalf("info = %d", w.Code)
	}
}
