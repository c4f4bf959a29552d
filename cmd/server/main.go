// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"histai-go/internal/config"
	"histai-go/internal/handler"
	"histai-go/internal/middleware"
	"histai-go/internal/pipeline"
	"histai-go/internal/repository"
	"histai-go/internal/scheduler"
	"histai-go/internal/service"
	"histai-go/pkg/database"
	"histai-go/pkg/es"
	"histai-go/pkg/gemini"
	"histai-go/pkg/imagegen"
	"histai-go/pkg/kafka"
	"histai-go/pkg/llm"
	"histai-go/pkg/log"
	"histai-go/pkg/metrics"
	"histai-go/pkg/nanobanana"
	"histai-go/pkg/openai"
	"histai-go/pkg/replicate"
	"histai-go/pkg/storage"
	"histai-go/pkg/telegram"
	"histai-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// 公开检索接口的突发限速
const (
	publicRatePerSecond = 5
	publicRateBurst     = 20
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与可选的基础设施
	database.InitMySQL(cfg.Database.MySQL)
	database.InitRedis(cfg.Database.Redis)

	var imageStore service.ImageStore
	if cfg.MinIO.Enabled {
		storage.InitMinIO(cfg.MinIO)
		imageStore = storage.NewImageStore(storage.MinioClient, cfg.MinIO)
	} else {
		log.Warnf("MinIO 未启用, 生成的图像将以 data URL 返回")
	}

	var personIndex *es.PersonIndex
	if cfg.Elasticsearch.Enabled {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Errorf("es 初始化失败, 人物检索回退到数据库: %v", err)
		} else {
			personIndex = es.NewPersonIndex(es.ESClient, cfg.Elasticsearch.IndexName)
		}
	}

	if cfg.Metrics.Enabled {
		metrics.MustRegister(prometheus.DefaultRegisterer)
	}

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	personRepo := repository.NewPersonRepository(database.DB)
	subscriptionRepo := repository.NewSubscriptionRepository(database.DB)
	generationRepo := repository.NewGenerationRepository(database.DB)
	limitCounter := repository.NewLimitCounter(database.RDB)
	cache := repository.NewCache(database.RDB)
	accessTokens := repository.NewAccessTokenStore(database.RDB)

	// 5. 初始化外部服务客户端
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	bot := telegram.NewBot(cfg.Telegram)
	if !bot.Configured() {
		log.Warnf("Telegram Bot 未配置, 订阅校验与 webhook 不可用")
	}
	perplexity := llm.NewClient(cfg.Perplexity)
	geminiClient, err := gemini.NewClient(context.Background(), cfg.Gemini)
	if err != nil {
		log.Fatalf("Gemini 客户端初始化失败: %v", err)
	}
	openaiClient := openai.NewClient(cfg.OpenAI)
	replicateClient := replicate.NewClient(cfg.Replicate)
	nanoBananaClient := nanobanana.NewClient(cfg.NanoBanana)

	providers := []imagegen.Provider{geminiClient, openaiClient, replicateClient, nanoBananaClient}
	imageChain := imagegen.NewChain(cfg.Generation.ImageProviders, providers...)
	log.Infof("图像生成服务顺序: %v", imageChain.Names())
	providerStatus := make(map[string]bool, len(providers)+1)
	for _, p := range providers {
		providerStatus[p.Name()] = p.Configured()
	}
	providerStatus["perplexity"] = perplexity.Configured()

	// 6. 初始化人物索引管道：Kafka 启用时异步投递，否则在 ES 可用时同步写入
	var searchIndex service.PersonSearchIndex
	var publisher service.TaskPublisher
	var producer *kafka.Producer
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()
	if personIndex != nil {
		searchIndex = personIndex
		processor := pipeline.NewProcessor(personRepo, personIndex)
		if cfg.Kafka.Enabled {
			producer = kafka.NewProducer(cfg.Kafka)
			publisher = producer
			// 7. 启动后台 Kafka 消费者
			go kafka.StartConsumer(consumerCtx, cfg.Kafka, processor, kafka.NewRedisAttempts(database.RDB))
		} else {
			publisher = pipeline.NewDirectPublisher(processor)
		}
	}

	// 8. 初始化 Service (依赖注入)
	userService := service.NewUserService(userRepo, jwtManager, cfg.Telegram)
	quotaService := service.NewQuotaService(generationRepo, limitCounter, cfg.Generation.DailyLimit, cfg.Generation.IPDailyLimit)
	subscriptionService := service.NewSubscriptionService(bot, subscriptionRepo, userRepo, cfg.Telegram.ChannelID)
	personService := service.NewPersonService(personRepo, perplexity, searchIndex, publisher, cache)
	promptService := service.NewPromptService(geminiClient, openaiClient)
	generationService := service.NewGenerationService(generationRepo, personService, quotaService, promptService, imageChain, imageStore, cfg.Generation.Timeout)
	adminService := service.NewAdminService(userRepo, generationRepo, accessTokens,
		cfg.Admin.SetupSecretHash, cfg.Admin.AccessTokenTTL, cfg.Server.PublicURL, providerStatus)
	botService := service.NewBotService(bot, adminService, cfg.Telegram.AdminChatID, cfg.Telegram.ChannelID)

	publicLimiter := middleware.NewIPRateLimiter(publicRatePerSecond, publicRateBurst)

	// 9. 启动定时任务
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(cfg.Scheduler, subscriptionService, generationRepo, publicLimiter)
		if err != nil {
			log.Fatalf("定时任务初始化失败: %v", err)
		}
		sched.Start(consumerCtx)
	}

	// 10. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	if cfg.Metrics.Enabled {
		r.Use(metrics.Middleware())
		r.GET(cfg.Metrics.Path, metrics.Handler())
	}
	handler.RegisterRoutes(r, jwtManager, handler.Services{
		User:         userService,
		Quota:        quotaService,
		Subscription: subscriptionService,
		Person:       personService,
		Generation:   generationService,
		Admin:        adminService,
		Bot:          botService,
	}, handler.RouterOptions{
		WebhookSecret: cfg.Telegram.WebhookSecret,
		PublicLimiter: publicLimiter,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	cancelConsumer()
	if sched != nil {
		sched.Stop()
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warnf("Kafka 生产者关闭失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
