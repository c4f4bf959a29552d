// Package replicate 调用 Replicate predictions API 生成图像。
package replicate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"histai-go/internal/config"
	"histai-go/pkg/imagegen"
	"histai-go/pkg/metrics"

	r8 "github.com/replicate/replicate-go"
)

// ProviderName 用于日志、指标与生成记录
const ProviderName = "replicate"

var ErrNotConfigured = errors.New("replicate: api token is not set")

// api 是 replicate-go 客户端中用到的部分
type api interface {
	CreatePredictionWithModel(ctx context.Context, modelOwner, modelName string, input r8.PredictionInput, webhook *r8.Webhook, stream bool) (*r8.Prediction, error)
	Wait(ctx context.Context, prediction *r8.Prediction, opts ...r8.WaitOption) error
}

// Client 通过官方 SDK 创建预测并等待结果
type Client struct {
	cfg config.ReplicateConfig
	api api
	err error
}

// NewClient 创建 Replicate 客户端；未配置 token 时返回不可用的客户端。
func NewClient(cfg config.ReplicateConfig) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	c := &Client{cfg: cfg}
	if cfg.APIToken == "" {
		return c
	}
	opts := []r8.ClientOption{
		r8.WithToken(cfg.APIToken),
		r8.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, r8.WithBaseURL(cfg.BaseURL))
	}
	client, err := r8.NewClient(opts...)
	if err != nil {
		c.err = fmt.Errorf("create replicate client: %w", err)
		return c
	}
	c.api = client
	return c
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Configured() bool { return c.api != nil }

// Generate 创建预测任务并轮询直到结束或 ctx 超时。
func (c *Client) Generate(ctx context.Context, prompt string) (*imagegen.Image, error) {
	if !c.Configured() {
		if c.err != nil {
			return nil, c.err
		}
		return nil, ErrNotConfigured
	}
	owner, name, ok := strings.Cut(c.cfg.Model, "/")
	if !ok {
		return nil, fmt.Errorf("replicate: model %q must be owner/name", c.cfg.Model)
	}

	start := time.Now()
	p, err := c.api.CreatePredictionWithModel(ctx, owner, name, r8.PredictionInput{
		"prompt":        prompt,
		"aspect_ratio":  "1:1",
		"output_format": "png",
	}, nil, false)
	if err != nil {
		metrics.ObserveProviderCall(ProviderName, "image", "error", time.Since(start))
		return nil, fmt.Errorf("replicate create prediction: %w", err)
	}

	if err := c.api.Wait(ctx, p, r8.WithPollingInterval(c.cfg.PollInterval)); err != nil {
		status := "error"
		if ctx.Err() != nil {
			status = "timeout"
		}
		metrics.ObserveProviderCall(ProviderName, "image", status, time.Since(start))
		return nil, fmt.Errorf("replicate prediction %s failed: %w", p.ID, err)
	}
	metrics.ObserveProviderCall(ProviderName, "image", string(p.Status), time.Since(start))

	if p.Status != r8.Succeeded {
		return nil, fmt.Errorf("replicate prediction %s: %s (%v)", p.ID, p.Status, p.Error)
	}
	url, err := outputURL(p.Output)
	if err != nil {
		return nil, err
	}
	return &imagegen.Image{URL: url, Provider: ProviderName, Model: c.cfg.Model}, nil
}

// outputURL 兼容 output 为字符串或字符串数组两种形式
func outputURL(output interface{}) (string, error) {
	switch v := output.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok && s != "" {
				return s, nil
			}
		}
	case []string:
		if len(v) > 0 && v[0] != "" {
			return v[0], nil
		}
	}
	return "", errors.New("replicate: no output url")
}
