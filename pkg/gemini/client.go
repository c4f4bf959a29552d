// Package gemini 封装 Google Gemini 的文本与图像生成调用。
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"histai-go/internal/config"
	"histai-go/pkg/imagegen"
	"histai-go/pkg/log"
	"histai-go/pkg/metrics"

	"google.golang.org/genai"
)

// ProviderName 用于日志、指标与生成记录
const ProviderName = "gemini"

// ErrNotConfigured 表示未配置 GEMINI API Key
var ErrNotConfigured = errors.New("gemini: api key is not set")

// ErrNoImage 表示响应中没有内联图像
var ErrNoImage = errors.New("gemini: no image in response")

// contentGenerator 是 genai.Models 的最小子集，便于测试替换
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client 调用 Gemini 生成提示词和图像
type Client struct {
	cfg    config.GeminiConfig
	models contentGenerator
}

// NewClient 创建 Gemini 客户端；未配置 API Key 时返回不可用的客户端而不是错误。
func NewClient(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	c := &Client{cfg: cfg}
	if cfg.APIKey == "" {
		return c, nil
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.models = gc.Models
	return c, nil
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Configured() bool { return c.models != nil }

// WritePrompt 使用文本模型生成图像提示词。
func (c *Client) WritePrompt(ctx context.Context, system, user string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.cfg.TextModel, genai.Text(system+"\n\n"+user), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.8),
	})
	if err != nil {
		metrics.ObserveProviderCall(ProviderName, "prompt", "error", time.Since(start))
		return "", fmt.Errorf("gemini prompt: %w", err)
	}
	metrics.ObserveProviderCall(ProviderName, "prompt", "ok", time.Since(start))

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini prompt: no text in response")
	}
	return text, nil
}

// Generate 依次尝试配置中的图像模型，返回第一张内联图像。
func (c *Client) Generate(ctx context.Context, prompt string) (*imagegen.Image, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	var lastErr error
	for _, model := range c.cfg.ImageModels {
		img, err := c.generateWithModel(ctx, model, prompt)
		if err == nil {
			return img, nil
		}
		log.Warnf("[Gemini] 模型 %s 生成图像失败: %v", model, err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("gemini: no image models configured")
	}
	return nil, lastErr
}

func (c *Client) generateWithModel(ctx context.Context, model, prompt string) (*imagegen.Image, error) {
	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		metrics.ObserveProviderCall(ProviderName, "image", "error", time.Since(start))
		return nil, fmt.Errorf("%s: %w", model, err)
	}
	metrics.ObserveProviderCall(ProviderName, "image", "ok", time.Since(start))

	if resp == nil {
		return nil, ErrNoImage
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return &imagegen.Image{
					Data:     part.InlineData.Data,
					MIMEType: mime,
					Provider: ProviderName,
					Model:    model,
				}, nil
			}
		}
	}
	return nil, ErrNoImage
}
