package handler

import (
	"histai-go/internal/middleware"
	"histai-go/internal/service"
	"histai-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Services 汇集注册路由所需的业务服务。
type Services struct {
	User         service.UserService
	Quota        service.QuotaService
	Subscription service.SubscriptionService
	Person       service.PersonService
	Generation   service.GenerationService
	Admin        service.AdminService
	Bot          service.BotService
}

// RouterOptions 是路由的可选配置
type RouterOptions struct {
	WebhookSecret string
	// PublicLimiter 作用于公开检索与补全接口，可为 nil
	PublicLimiter *middleware.IPRateLimiter
}

// RegisterRoutes 在 r 上注册全部 API 路由。
func RegisterRoutes(r *gin.Engine, jwtManager *token.JWTManager, s Services, opts RouterOptions) {
	authMW := middleware.AuthMiddleware(jwtManager, s.User)
	throttle := func(c *gin.Context) { c.Next() }
	if opts.PublicLimiter != nil {
		throttle = opts.PublicLimiter.Middleware()
	}

	authHandler := NewAuthHandler(s.User)
	userHandler := NewUserHandler(s.Quota)
	subscriptionHandler := NewSubscriptionHandler(s.Subscription)
	personHandler := NewPersonHandler(s.Person)
	generationHandler := NewGenerationHandler(s.Generation, s.User, jwtManager)
	adminHandler := NewAdminHandler(s.Admin)
	telegramHandler := NewTelegramHandler(s.Bot, opts.WebhookSecret)

	r.GET("/api/health", Health)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/telegram", authHandler.TelegramLogin)
			auth.POST("/refreshToken", authHandler.RefreshToken)
		}

		users := apiV1.Group("/users", authMW)
		{
			users.GET("/me", userHandler.GetProfile)
		}

		subscription := apiV1.Group("/subscription")
		{
			subscription.GET("/channel", subscriptionHandler.Channel)
			subscription.POST("/check", authMW, subscriptionHandler.Check)
			subscription.GET("/check", authMW, subscriptionHandler.Status)
		}

		persons := apiV1.Group("/persons", throttle)
		{
			persons.GET("", personHandler.List)
			persons.GET("/search", personHandler.Search)
			persons.GET("/autocomplete", personHandler.Autocomplete)
		}

		apiV1.POST("/generate", authMW, generationHandler.Generate)
		// WebSocket 无法携带自定义请求头，token 放在路径中
		apiV1.GET("/generate/ws/:token", generationHandler.Stream)

		generations := apiV1.Group("/generations")
		{
			generations.GET("/public", throttle, generationHandler.Public)
			generations.GET("", authMW, generationHandler.List)
			generations.GET("/limit", authMW, userHandler.GetLimit)
			generations.DELETE("/:id", authMW, generationHandler.Delete)
		}

		// 仅需登录即可调用，凭初始化密钥获得管理员权限
		apiV1.POST("/admin/make-me-admin", authMW, adminHandler.MakeMeAdmin)

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin", authMW, middleware.AdminAuthMiddleware())
		{
			admin.GET("/stats", adminHandler.Stats)
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/users/export", adminHandler.ExportUsers)
			admin.GET("/activity", adminHandler.Activity)
			admin.GET("/activity/chart.png", adminHandler.ActivityChart)
			admin.POST("/access-token", adminHandler.IssueAccessToken)
			admin.GET("/access-token/verify", adminHandler.VerifyAccessToken)
			admin.GET("/providers", adminHandler.Providers)
		}

		telegram := apiV1.Group("/telegram")
		{
			telegram.POST("/webhook", telegramHandler.Webhook)
			telegram.GET("/webhook", telegramHandler.Info)
		}
	}
}
