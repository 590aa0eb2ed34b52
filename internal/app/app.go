package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Dhoini/Billing-microservice/config"
	"github.com/Dhoini/Billing-microservice/internal/api/rest"
	"github.com/Dhoini/Billing-microservice/internal/api/rest/handlers"
	"github.com/Dhoini/Billing-microservice/internal/integration/toss"
	"github.com/Dhoini/Billing-microservice/internal/kafka"
	kafkaproducer "github.com/Dhoini/Billing-microservice/internal/kafka/producer"
	"github.com/Dhoini/Billing-microservice/internal/lock"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/internal/repository/postgres"
	"github.com/Dhoini/Billing-microservice/internal/service"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// App контейнер зависимостей сервиса
type App struct {
	Server        *rest.Server
	RenewalWorker *service.RenewalWorker

	pool     *pgxpool.Pool
	redis    *redis.Client
	producer *kafkaproducer.NotificationProducer
	log      *logger.Logger
}

// New собирает сервис из конфигурации
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	gin.SetMode(cfg.App.GinMode)

	pool, err := postgres.Connect(ctx, cfg.Database.DSN, log)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	producer, err := kafkaproducer.NewNotificationProducer(kafka.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	}, log)
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}

	tossClient := toss.NewClient(toss.Config{
		BaseURL:       cfg.Toss.BaseURL,
		SecretKey:     cfg.Toss.SecretKey,
		WebhookSecret: cfg.Toss.WebhookSecret,
		Timeout:       cfg.Toss.Timeout,
	}, log)

	billingMetrics := metrics.NewBillingMetrics()
	httpMetrics := metrics.NewHTTPMetrics()

	paymentRepo := repository.NewPostgresPaymentRepository(pool, log)
	subRepo := repository.NewCachedSubscriptionRepository(
		repository.NewPostgresSubscriptionRepository(pool, log),
		redisClient, cfg.Redis.CacheTTL, log)

	subService := service.NewSubscriptionService(subRepo, paymentRepo, tossClient, producer, billingMetrics, log)
	paymentService := service.NewPaymentService(paymentRepo, subService, tossClient, producer, billingMetrics, log)
	webhookService := service.NewWebhookService(paymentRepo, subService, tossClient, producer, billingMetrics, log)

	renewalWorker := service.NewRenewalWorker(
		subService,
		lock.NewRedisLock(redisClient, log),
		service.RenewalWorkerConfig{
			CheckInterval: cfg.Renewal.CheckInterval,
			RenewBefore:   cfg.Renewal.RenewBefore,
			LockTTL:       cfg.Renewal.LockTTL,
		}, log)

	router := rest.NewRouter(rest.RouterConfig{
		Payments:      handlers.NewPaymentHandler(paymentService, log),
		Subscriptions: handlers.NewSubscriptionHandler(subService, log),
		Webhooks:      handlers.NewWebhookHandler(webhookService, tossClient, log),
		Health:        handlers.NewHealthHandler(),
		HTTPMetrics:   httpMetrics,
		JWTSecret:     cfg.Auth.JWTSecret,
		Log:           log,
	})

	return &App{
		Server:        rest.NewServer(cfg.App.Addr, router, log),
		RenewalWorker: renewalWorker,
		pool:          pool,
		redis:         redisClient,
		producer:      producer,
		log:           log,
	}, nil
}

// Close освобождает ресурсы приложения
func (a *App) Close() {
	if err := a.producer.Close(); err != nil {
		a.log.Warnw("Failed to close kafka producer", "error", err)
	}
	if err := a.redis.Close(); err != nil {
		a.log.Warnw("Failed to close redis client", "error", err)
	}
	a.pool.Close()
}
