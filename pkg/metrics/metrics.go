// Package metrics 定义了服务的 Prometheus 指标。
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "histai_http_requests_total",
		Help: "HTTP 请求总数。",
	}, []string{"method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "histai_http_request_duration_seconds",
		Help:    "HTTP 请求耗时。",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	providerCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "histai_provider_call_duration_seconds",
		Help:    "外部 AI / Telegram 接口调用耗时。",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider", "operation", "status"})

	generationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "histai_generations_total",
		Help: "画像生成结果计数。",
	}, []string{"status", "provider"})

	subscriptionChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "histai_subscription_checks_total",
		Help: "频道订阅检查结果计数。",
	}, []string{"subscribed"})

	limitRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "histai_limit_rejections_total",
		Help: "因配额或限流被拒绝的请求数。",
	}, []string{"kind"})
)

// MustRegister 在传入的 registerer 上注册本包全部指标，重复调用无副作用。
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			providerCallDuration,
			generationsTotal,
			subscriptionChecksTotal,
			limitRejectionsTotal,
		)
	})
}

// Handler 返回 /metrics 的 gin 处理函数
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveHTTPRequest 记录一次 HTTP 请求
func ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	if path == "" {
		path = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// ObserveProviderCall 记录一次外部接口调用
func ObserveProviderCall(provider, operation, status string, d time.Duration) {
	providerCallDuration.WithLabelValues(provider, operation, status).Observe(d.Seconds())
}

// IncGeneration 记录一次生成结果
func IncGeneration(status, provider string) {
	generationsTotal.WithLabelValues(status, provider).Inc()
}

// IncSubscriptionCheck 记录一次订阅检查
func IncSubscriptionCheck(subscribed bool) {
	subscriptionChecksTotal.WithLabelValues(strconv.FormatBool(subscribed)).Inc()
}

// IncLimitRejection 记录一次配额拒绝，kind 取 daily / ip / throttle
func IncLimitRejection(kind string) {
	limitRejectionsTotal.WithLabelValues(kind).Inc()
}

// StatusLabel 把 HTTP 状态码折叠为 2xx/4xx/5xx
func StatusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 200 && code < 300:
		return "2xx"
	}
	return strconv.Itoa(code)
}

// Middleware 统计每个请求的次数和耗时，path 使用路由模板避免标签爆炸
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ObserveHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
