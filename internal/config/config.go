// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Telegram      TelegramConfig      `mapstructure:"telegram"`
	Perplexity    PerplexityConfig    `mapstructure:"perplexity"`
	Gemini        GeminiConfig        `mapstructure:"gemini"`
	OpenAI        OpenAIConfig        `mapstructure:"openai"`
	Replicate     ReplicateConfig     `mapstructure:"replicate"`
	NanoBanana    NanoBananaConfig    `mapstructure:"nano_banana"`
	Generation    GenerationConfig    `mapstructure:"generation"`
	Admin         AdminConfig         `mapstructure:"admin"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port      string `mapstructure:"port"`
	Mode      string `mapstructure:"mode"`
	PublicURL string `mapstructure:"public_url"` // 对外访问地址，用于拼接管理后台链接
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	// PublicBaseURL 非空时直接拼接公开地址，否则返回预签名链接
	PublicBaseURL string        `mapstructure:"public_base_url"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// TelegramConfig 存储 Telegram Bot 与频道订阅相关的配置。
type TelegramConfig struct {
	BotToken             string        `mapstructure:"bot_token"`
	APIEndpoint          string        `mapstructure:"api_endpoint"`
	ChannelID            string        `mapstructure:"channel_id"`
	AdminChatID          int64         `mapstructure:"admin_chat_id"`
	WebhookSecret        string        `mapstructure:"webhook_secret"`
	AuthMaxAge           time.Duration `mapstructure:"auth_max_age"`
	SkipAuthVerification bool          `mapstructure:"skip_auth_verification"`
}

// PerplexityConfig 存储历史人物检索服务的配置。
type PerplexityConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// GeminiConfig 存储 Gemini 文本与图像模型的配置。
type GeminiConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	TextModel   string   `mapstructure:"text_model"`
	ImageModels []string `mapstructure:"image_models"`
}

// OpenAIConfig 存储 OpenAI 的配置。
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	ChatModel   string  `mapstructure:"chat_model"`
	ImageModel  string  `mapstructure:"image_model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ReplicateConfig 存储 Replicate 的配置。
type ReplicateConfig struct {
	APIToken     string        `mapstructure:"api_token"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// NanoBananaConfig 存储 Nano Banana 的配置。CustomURL 与 ModelKey 二选一。
type NanoBananaConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	CustomURL    string        `mapstructure:"custom_url"`
	ModelKey     string        `mapstructure:"model_key"`
	BaseURL      string        `mapstructure:"base_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// GenerationConfig 存储生成流程相关的配置。
type GenerationConfig struct {
	DailyLimit     int           `mapstructure:"daily_limit"`
	IPDailyLimit   int           `mapstructure:"ip_daily_limit"`
	ImageProviders []string      `mapstructure:"image_providers"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// AdminConfig 存储管理后台相关的配置。
type AdminConfig struct {
	SetupSecretHash string        `mapstructure:"setup_secret_hash"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
}

// SchedulerConfig 存储定时任务的配置。
type SchedulerConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Timezone            string `mapstructure:"timezone"`
	SubscriptionRecheck string `mapstructure:"subscription_recheck"`
	FailedCleanup       string `mapstructure:"failed_cleanup"`
	FailedRetentionDays int    `mapstructure:"failed_retention_days"`
}

// MetricsConfig 存储 Prometheus 指标相关的配置。
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// setDefaults 为未在配置文件中出现的键设置默认值。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("jwt.refresh_token_expire_days", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "person-index")
	v.SetDefault("kafka.group_id", "histai-go-consumer")
	v.SetDefault("elasticsearch.index_name", "historical_persons")
	v.SetDefault("minio.bucket_name", "portraits")
	v.SetDefault("minio.presign_expiry", 7*24*time.Hour)
	v.SetDefault("telegram.api_endpoint", "https://api.telegram.org/bot%s/%s")
	v.SetDefault("telegram.auth_max_age", 24*time.Hour)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "llama-3.1-sonar-large-128k-online")
	v.SetDefault("perplexity.temperature", 0.7)
	v.SetDefault("perplexity.max_tokens", 1000)
	v.SetDefault("perplexity.timeout", 30*time.Second)
	v.SetDefault("gemini.text_model", "gemini-2.5-flash")
	v.SetDefault("gemini.image_models", []string{
		"gemini-2.5-flash-image-preview",
		"gemini-3-pro-image-preview",
		"gemini-2.0-flash-exp-image-generation",
	})
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.image_model", "dall-e-3")
	v.SetDefault("openai.temperature", 0.8)
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("replicate.base_url", "https://api.replicate.com/v1")
	v.SetDefault("replicate.model", "black-forest-labs/flux-1.1-pro")
	v.SetDefault("replicate.poll_interval", time.Second)
	v.SetDefault("nano_banana.base_url", "https://api.banana.dev")
	v.SetDefault("nano_banana.poll_interval", 2*time.Second)
	v.SetDefault("nano_banana.max_attempts", 60)
	v.SetDefault("generation.daily_limit", 15)
	v.SetDefault("generation.ip_daily_limit", 20)
	v.SetDefault("generation.image_providers", []string{"gemini", "openai", "replicate", "nano_banana"})
	v.SetDefault("generation.timeout", 3*time.Minute)
	v.SetDefault("admin.access_token_ttl", time.Hour)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.subscription_recheck", "0 0 * * * *")
	v.SetDefault("scheduler.failed_cleanup", "0 30 3 * * *")
	v.SetDefault("scheduler.failed_retention_days", 30)
	v.SetDefault("metrics.path", "/metrics")

	// 仅出现在环境变量中的密钥也需要注册，否则 AutomaticEnv 不会参与 Unmarshal
	for _, key := range []string{
		"database.mysql.dsn", "database.redis.addr", "database.redis.password", "jwt.secret",
		"telegram.bot_token", "telegram.channel_id", "telegram.admin_chat_id", "telegram.webhook_secret",
		"perplexity.api_key", "gemini.api_key", "openai.api_key", "openai.base_url",
		"replicate.api_token", "nano_banana.api_key", "nano_banana.custom_url", "nano_banana.model_key",
		"minio.access_key_id", "minio.secret_access_key", "admin.setup_secret_hash",
	} {
		_ = v.BindEnv(key)
	}
}

// Init 初始化配置加载：先加载 .env，再读取 YAML 文件，环境变量可覆盖任意键。
func Init(configPath string) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}

// Load 读取配置文件并返回解析后的配置，供 Init 与测试使用。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}
