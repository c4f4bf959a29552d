// Package llm provides a client for OpenAI-compatible chat completion APIs (Perplexity).
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"histai-go/internal/config"
	"histai-go/pkg/metrics"

	goopenai "github.com/sashabaranov/go-openai"
)

// ErrNotConfigured 表示未配置 API Key
var ErrNotConfigured = errors.New("llm: api key is not set")

// ErrInvalidKey 表示 API Key 无效或已过期（401/403）
var ErrInvalidKey = errors.New("llm: api key is invalid or expired")

// Client defines the interface for an LLM client.
type Client interface {
	// ChatMessages 以 role-based 消息与可选生成参数调用聊天接口，返回完整回答。
	ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// Configured 返回客户端是否具备调用条件。
	Configured() bool
}

// chatAPI 是 go-openai 客户端中用到的部分
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, request goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

type perplexityClient struct {
	cfg config.PerplexityConfig
	api chatAPI
}

// NewClient 创建一个新的 Perplexity 客户端，走其 OpenAI 兼容的 chat/completions 接口。
func NewClient(cfg config.PerplexityConfig) Client {
	c := &perplexityClient{cfg: cfg}
	if cfg.APIKey == "" {
		return c
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	c.api = goopenai.NewClientWithConfig(oc)
	return c
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// APIError 携带上游返回的 HTTP 状态码
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api returned status %d: %s", e.StatusCode, e.Body)
}

func (c *perplexityClient) Configured() bool {
	return c.api != nil
}

func (c *perplexityClient) ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	req := goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: float32(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
	}
	// 传参优先，其次使用配置
	if gen != nil {
		if gen.Model != "" {
			req.Model = gen.Model
		}
		if gen.Temperature != nil {
			req.Temperature = float32(*gen.Temperature)
		}
		if gen.MaxTokens != nil {
			req.MaxTokens = *gen.MaxTokens
		}
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		status := statusCode(err)
		label := "error"
		if status != 0 {
			label = metrics.StatusLabel(status)
		}
		metrics.ObserveProviderCall("perplexity", "chat", label, time.Since(start))
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return "", ErrInvalidKey
		}
		if status != 0 {
			return "", &APIError{StatusCode: status, Body: err.Error()}
		}
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	metrics.ObserveProviderCall("perplexity", "chat", metrics.StatusLabel(http.StatusOK), time.Since(start))

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// statusCode 取出 go-openai 错误中的 HTTP 状态码，网络错误返回 0
func statusCode(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Float64 与 Int 便于构造 GenerationParams
func Float64(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
