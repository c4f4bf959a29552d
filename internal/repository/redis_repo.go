package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// LimitCounter 以固定窗口计数请求次数。
type LimitCounter interface {
	// Hit 增加计数并返回窗口内的次数与剩余过期时间
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Peek 返回当前计数，不增加
	Peek(ctx context.Context, key string) (int64, error)
}

// Cache 是 JSON 值的键值缓存。
type Cache interface {
	// Get 读取并解码缓存，未命中时返回 false
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// AccessTokenStore 保存一次性管理后台访问 token。
type AccessTokenStore interface {
	Save(ctx context.Context, token string, userID uint, ttl time.Duration) error
	// Lookup 返回 token 对应的签发用户，不存在或已过期时返回 false
	Lookup(ctx context.Context, token string) (uint, bool, error)
}

type redisLimitCounter struct {
	redisClient *redis.Client
}

// NewLimitCounter 创建基于 Redis 的固定窗口计数器。
func NewLimitCounter(redisClient *redis.Client) LimitCounter {
	return &redisLimitCounter{redisClient: redisClient}
}

func (r *redisLimitCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := r.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to hit rate limit counter: %w", err)
	}
	// 窗口内首次请求时设置过期时间
	if count == 1 {
		if err := r.redisClient.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		return count, window, nil
	}
	ttl, err := r.redisClient.TTL(ctx, key).Result()
	if err != nil {
		return count, window, nil
	}
	if ttl < 0 {
		// 过期时间丢失时补上，避免计数永久存在
		_ = r.redisClient.Expire(ctx, key, window).Err()
		ttl = window
	}
	return count, ttl, nil
}

func (r *redisLimitCounter) Peek(ctx context.Context, key string) (int64, error) {
	n, err := r.redisClient.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return n, nil
}

type redisCache struct {
	redisClient *redis.Client
}

// NewCache 创建基于 Redis 的 JSON 缓存。
func NewCache(redisClient *redis.Client) Cache {
	return &redisCache{redisClient: redisClient}
}

func (r *redisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := r.redisClient.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache %s: %w", key, err)
	}
	return true, nil
}

func (r *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache %s: %w", key, err)
	}
	return r.redisClient.Set(ctx, key, data, ttl).Err()
}

type redisAccessTokenStore struct {
	redisClient *redis.Client
}

// NewAccessTokenStore 创建基于 Redis 的管理后台 token 存储。
func NewAccessTokenStore(redisClient *redis.Client) AccessTokenStore {
	return &redisAccessTokenStore{redisClient: redisClient}
}

func accessTokenKey(token string) string {
	return "admin:access_token:" + token
}

func (r *redisAccessTokenStore) Save(ctx context.Context, token string, userID uint, ttl time.Duration) error {
	return r.redisClient.Set(ctx, accessTokenKey(token), userID, ttl).Err()
}

func (r *redisAccessTokenStore) Lookup(ctx context.Context, token string) (uint, bool, error) {
	val, err := r.redisClient.Get(ctx, accessTokenKey(token)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get access token: %w", err)
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt access token value: %w", err)
	}
	return uint(id), true, nil
}
