// Package storage 提供了与对象存储服务（MinIO）交互的功能，用于保存生成的画像。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"histai-go/internal/config"
	"histai-go/pkg/imagegen"
	"histai-go/pkg/log"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}
	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，如果不存在则创建
	ctx := context.Background()
	exists, err := MinioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err = MinioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}
}

// ImageStore 把生成的图像写入存储桶并返回可访问的地址。
type ImageStore struct {
	client *minio.Client
	cfg    config.MinIOConfig
	now    func() time.Time
}

// NewImageStore 使用已初始化的客户端创建 ImageStore
func NewImageStore(client *minio.Client, cfg config.MinIOConfig) *ImageStore {
	return &ImageStore{client: client, cfg: cfg, now: time.Now}
}

// ObjectKey 生成 generations/<yyyy>/<mm>/<uuid>.<ext> 形式的对象名
func ObjectKey(t time.Time, mime string) string {
	return fmt.Sprintf("generations/%04d/%02d/%s.%s", t.Year(), int(t.Month()), uuid.NewString(), imagegen.ExtFor(mime))
}

// Save 上传图像数据，返回公开地址（配置了 public_base_url）或预签名地址。
func (s *ImageStore) Save(ctx context.Context, data []byte, mime string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("storage: minio is not initialised")
	}
	if mime == "" {
		mime = "image/png"
	}
	key := ObjectKey(s.now().UTC(), mime)
	_, err := s.client.PutObject(ctx, s.cfg.BucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mime,
	})
	if err != nil {
		return "", fmt.Errorf("upload image to minio: %w", err)
	}
	return s.URL(ctx, key)
}

// URL 返回对象的访问地址
func (s *ImageStore) URL(ctx context.Context, key string) (string, error) {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key, nil
	}
	expiry := s.cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	u, err := s.client.PresignedGetObject(ctx, s.cfg.BucketName, key, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return u.String(), nil
}
