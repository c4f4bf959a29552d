// Package imagegen 定义图像生成服务的统一接口，以及按顺序回退的生成链。
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"histai-go/pkg/log"
)

// ErrNoProvider 表示没有任何已配置的图像服务
var ErrNoProvider = errors.New("imagegen: no image provider configured")

// Image 是一次生成的结果：Data 为内联图像，URL 为服务方托管地址，两者至少其一。
type Image struct {
	Data     []byte
	MIMEType string
	URL      string
	Provider string
	Model    string
}

// Provider 是一个图像生成服务。
type Provider interface {
	Name() string
	Configured() bool
	Generate(ctx context.Context, prompt string) (*Image, error)
}

// Chain 依次尝试各服务，返回第一个成功的结果。
type Chain struct {
	providers []Provider
}

// NewChain 按 order 中的名称排列服务，order 为空时保持传入顺序；未配置的服务被跳过。
func NewChain(order []string, providers ...Provider) *Chain {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	var ordered []Provider
	if len(order) == 0 {
		ordered = providers
	} else {
		for _, name := range order {
			if p, ok := byName[strings.TrimSpace(name)]; ok {
				ordered = append(ordered, p)
			}
		}
	}
	c := &Chain{}
	for _, p := range ordered {
		if p.Configured() {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

// Names 返回参与回退的服务名称
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Generate 依次调用服务，全部失败时返回带最后一个错误的汇总错误。
func (c *Chain) Generate(ctx context.Context, prompt string) (*Image, error) {
	if len(c.providers) == 0 {
		return nil, ErrNoProvider
	}
	var lastErr error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := p.Generate(ctx, prompt)
		if err == nil && img != nil && (len(img.Data) > 0 || img.URL != "") {
			if img.Provider == "" {
				img.Provider = p.Name()
			}
			return img, nil
		}
		if err == nil {
			err = errors.New("empty image")
		}
		log.Warnf("[ImageChain] %s 生成失败，尝试下一个: %v", p.Name(), err)
		lastErr = fmt.Errorf("%s: %w", p.Name(), err)
	}
	return nil, fmt.Errorf("all image providers failed: %w", lastErr)
}

// Download 下载服务方托管的图像
func Download(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download image: status %d", resp.StatusCode)
	}
	data, err := readAllLimited(resp.Body, 20<<20)
	if err != nil {
		return nil, "", err
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

// ExtFor 根据 MIME 类型返回文件扩展名
func ExtFor(mime string) string {
	switch {
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return "jpg"
	case strings.Contains(mime, "webp"):
		return "webp"
	case strings.Contains(mime, "gif"):
		return "gif"
	}
	return "png"
}
