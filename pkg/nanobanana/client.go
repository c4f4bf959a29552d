// Package nanobanana 调用 Nano Banana 自定义端点或 Banana.dev 任务接口生成图像。
package nanobanana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"histai-go/internal/config"
	"histai-go/pkg/imagegen"
	"histai-go/pkg/log"
	"histai-go/pkg/metrics"
)

// ProviderName 用于日志、指标与生成记录
const ProviderName = "nano_banana"

var (
	ErrNotConfigured = errors.New("nano banana: api key is not set")
	ErrInvalidKey    = errors.New("nano banana: api key is invalid or expired")
	ErrNoImage       = errors.New("nano banana: no image in response")
	ErrTimeout       = errors.New("nano banana: task timeout")
)

// Client 是 Nano Banana 的 HTTP 客户端
type Client struct {
	cfg    config.NanoBananaConfig
	client *http.Client
}

// NewClient 创建 Nano Banana 客户端
func NewClient(cfg config.NanoBananaConfig) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 60
	}
	if cfg.ModelKey == "" {
		cfg.ModelKey = "flux"
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: 120 * time.Second}}
}

func (c *Client) Name() string { return ProviderName }

// Configured 要求 key 至少 10 个字符
func (c *Client) Configured() bool { return len(strings.TrimSpace(c.cfg.APIKey)) >= 10 }

// Generate 优先调用自定义端点，失败或未配置时使用 Banana.dev 的 start/check 任务接口。
func (c *Client) Generate(ctx context.Context, prompt string) (*imagegen.Image, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	start := time.Now()
	img, err := c.generate(ctx, prompt)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveProviderCall(ProviderName, "image", status, time.Since(start))
	return img, err
}

func (c *Client) generate(ctx context.Context, prompt string) (*imagegen.Image, error) {
	if c.cfg.CustomURL != "" {
		data, err := c.post(ctx, c.cfg.CustomURL, map[string]interface{}{
			"prompt":         prompt,
			"num_images":     1,
			"width":          1024,
			"height":         1024,
			"steps":          30,
			"guidance_scale": 7.5,
		}, true)
		if err == nil {
			return extractImage(data)
		}
		if errors.Is(err, ErrInvalidKey) {
			return nil, err
		}
		log.Warnf("[NanoBanana] 自定义端点失败，改用 Banana.dev 格式: %v", err)
	}
	return c.bananaDev(ctx, prompt)
}

func (c *Client) bananaDev(ctx context.Context, prompt string) (*imagegen.Image, error) {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	data, err := c.post(ctx, base+"/start/v1", map[string]interface{}{
		"modelKey": c.cfg.ModelKey,
		"modelInputs": map[string]interface{}{
			"prompt":       prompt,
			"num_outputs":  1,
			"aspect_ratio": "1:1",
		},
	}, false)
	if err != nil {
		return nil, err
	}
	if id, ok := data["id"].(string); ok && id != "" {
		return c.poll(ctx, base+"/check/v1", id)
	}
	return extractImage(data)
}

func (c *Client) poll(ctx context.Context, checkURL, id string) (*imagegen.Image, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		data, err := c.post(ctx, checkURL, map[string]interface{}{"id": id}, false)
		if err != nil {
			lastErr = err
			continue
		}
		if outputs, ok := data["modelOutputs"].([]interface{}); ok && len(outputs) > 0 {
			if first, ok := outputs[0].(map[string]interface{}); ok {
				return extractImage(first)
			}
		}
		if msg, _ := data["message"].(string); strings.Contains(msg, "error") {
			return nil, fmt.Errorf("banana task failed: %s", msg)
		}
		if e, ok := data["error"].(string); ok && e != "" {
			return nil, fmt.Errorf("banana task failed: %s", e)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, lastErr)
	}
	return nil, ErrTimeout
}

func (c *Client) post(ctx context.Context, url string, payload map[string]interface{}, bearer bool) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.APIKey))
	} else {
		req.Header.Set("X-Banana-API-Key", strings.TrimSpace(c.cfg.APIKey))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidKey
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("nano banana rate limit exceeded, retry after %s", resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("nano banana returned status %d: %s", resp.StatusCode, string(b))
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode nano banana response: %w", err)
	}
	return out, nil
}

// extractImage 兼容多种响应结构：image_url / url / data[0].url / output[0] / image_base64
func extractImage(data map[string]interface{}) (*imagegen.Image, error) {
	for _, key := range []string{"image_url", "url"} {
		if s, ok := data[key].(string); ok && s != "" {
			return &imagegen.Image{URL: s, Provider: ProviderName}, nil
		}
	}
	for _, key := range []string{"data", "output", "modelOutputs"} {
		list, ok := data[key].([]interface{})
		if !ok || len(list) == 0 {
			continue
		}
		switch v := list[0].(type) {
		case string:
			return &imagegen.Image{URL: v, Provider: ProviderName}, nil
		case map[string]interface{}:
			return extractImage(v)
		}
	}
	if b64, ok := data["image_base64"].(string); ok && b64 != "" {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("decode image_base64: %w", err)
		}
		return &imagegen.Image{Data: raw, MIMEType: http.DetectContentType(raw), Provider: ProviderName}, nil
	}
	return nil, ErrNoImage
}
