// Package openai 封装 OpenAI 的提示词生成（chat）与 DALL-E 图像生成。
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"histai-go/internal/config"
	"histai-go/pkg/imagegen"
	"histai-go/pkg/metrics"

	goopenai "github.com/sashabaranov/go-openai"
)

// ProviderName 用于日志、指标与生成记录
const ProviderName = "openai"

// ErrNotConfigured 表示未配置 OPENAI API Key
var ErrNotConfigured = errors.New("openai: api key is not set")

// api 是 go-openai 客户端的最小子集
type api interface {
	CreateChatCompletion(ctx context.Context, request goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
	CreateImage(ctx context.Context, request goopenai.ImageRequest) (goopenai.ImageResponse, error)
}

// Client 调用 OpenAI 生成提示词和图像
type Client struct {
	cfg config.OpenAIConfig
	api api
}

// NewClient 创建 OpenAI 客户端；未配置 API Key 时返回不可用的客户端。
func NewClient(cfg config.OpenAIConfig) *Client {
	c := &Client{cfg: cfg}
	if cfg.APIKey == "" {
		return c
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	c.api = goopenai.NewClientWithConfig(oc)
	return c
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Configured() bool { return c.api != nil }

// WritePrompt 使用 chat 模型生成图像提示词。
func (c *Client) WritePrompt(ctx context.Context, system, user string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	metrics.ObserveProviderCall(ProviderName, "prompt", callStatus(err), time.Since(start))
	if err != nil {
		return "", fmt.Errorf("openai prompt: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errors.New("openai prompt: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Generate 使用 DALL-E 生成 1024x1024 图像，返回服务方托管的 URL。
func (c *Client) Generate(ctx context.Context, prompt string) (*imagegen.Image, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	start := time.Now()
	resp, err := c.api.CreateImage(ctx, goopenai.ImageRequest{
		Prompt:         prompt,
		Model:          c.cfg.ImageModel,
		N:              1,
		Size:           goopenai.CreateImageSize1024x1024,
		Quality:        goopenai.CreateImageQualityHD,
		ResponseFormat: goopenai.CreateImageResponseFormatURL,
	})
	metrics.ObserveProviderCall(ProviderName, "image", callStatus(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("openai image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, errors.New("openai image: no image url in response")
	}
	return &imagegen.Image{URL: resp.Data[0].URL, Provider: ProviderName, Model: c.cfg.ImageModel}, nil
}

func callStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return metrics.StatusLabel(apiErr.HTTPStatusCode)
	}
	return "error"
}
