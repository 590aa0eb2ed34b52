package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dhoini/Billing-microservice/internal/api/rest/handlers"
	"github.com/Dhoini/Billing-microservice/internal/api/rest/middleware"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// RouterConfig зависимости HTTP-маршрутов
type RouterConfig struct {
	Payments      *handlers.PaymentHandler
	Subscriptions *handlers.SubscriptionHandler
	Webhooks      *handlers.WebhookHandler
	Health        *handlers.HealthHandler
	HTTPMetrics   *metrics.HTTPMetrics
	JWTSecret     string
	Log           *logger.Logger
}

// NewRouter собирает маршруты сервиса
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(cfg.Log))
	router.Use(cfg.HTTPMetrics.Middleware())

	router.GET("/health", cfg.Health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// Webhook аутентифицируется подписью, не JWT
	v1.POST("/webhooks/toss", cfg.Webhooks.Handle)

	authorized := v1.Group("")
	authorized.Use(middleware.AuthMiddleware(cfg.JWTSecret, cfg.Log))
	{
		payments := authorized.Group("/payments")
		payments.POST("/checkout", cfg.Payments.Checkout)
		payments.POST("/confirm", cfg.Payments.ConfirmPayment)
		payments.POST("/billing/confirm", cfg.Payments.ConfirmBilling)
		payments.GET("/history", cfg.Payments.History)

		subscriptions := authorized.Group("/subscriptions")
		subscriptions.GET("/me", cfg.Subscriptions.Me)
		subscriptions.POST("/cancel", cfg.Subscriptions.Cancel)
	}

	// Тарифы публичны
	v1.GET("/subscriptions/plans", cfg.Subscriptions.Plans)

	return router
}
