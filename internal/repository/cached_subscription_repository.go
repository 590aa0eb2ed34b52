package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// CachedSubscriptionRepository декоратор репозитория подписок с кэшем в Redis.
// Кэшируется только горячий путь GetActiveByUserID, мутации инвалидируют ключ.
type CachedSubscriptionRepository struct {
	inner  SubscriptionRepository
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewCachedSubscriptionRepository создает новый кэширующий репозиторий подписок
func NewCachedSubscriptionRepository(inner SubscriptionRepository, client *redis.Client, ttl time.Duration, log *logger.Logger) *CachedSubscriptionRepository {
	return &CachedSubscriptionRepository{inner: inner, client: client, ttl: ttl, log: log}
}

func activeSubKey(userID uuid.UUID) string {
	return fmt.Sprintf("subscription:active:%s", userID)
}

// Create создает новую подписку
func (r *CachedSubscriptionRepository) Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	created, err := r.inner.Create(ctx, sub)
	if err != nil {
		return domain.Subscription{}, err
	}
	r.invalidate(ctx, created.UserID)
	return created, nil
}

// Update обновляет подписку
func (r *CachedSubscriptionRepository) Update(ctx context.Context, sub domain.Subscription) error {
	if err := r.inner.Update(ctx, sub); err != nil {
		return err
	}
	r.invalidate(ctx, sub.UserID)
	return nil
}

// GetByID возвращает подписку по идентификатору
func (r *CachedSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	return r.inner.GetByID(ctx, id)
}

// GetByUserID возвращает последнюю подписку пользователя
func (r *CachedSubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	return r.inner.GetByUserID(ctx, userID)
}

// GetActiveByUserID возвращает активную подписку пользователя
func (r *CachedSubscriptionRepository) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	key := activeSubKey(userID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached domain.Subscription
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
		r.log.Warnw("Failed to decode cached subscription, dropping key", "key", key)
		r.client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		r.log.Warnw("Redis get failed, falling back to database", "key", key, "error", err)
	}

	sub, err := r.inner.GetActiveByUserID(ctx, userID)
	if err != nil {
		return domain.Subscription{}, err
	}

	if data, err := json.Marshal(sub); err == nil {
		if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
			r.log.Warnw("Redis set failed", "key", key, "error", err)
		}
	}
	return sub, nil
}

// ExistsActiveByUserID проверяет наличие активной подписки
func (r *CachedSubscriptionRepository) ExistsActiveByUserID(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, err := r.GetActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetByBillingKey возвращает подписку по биллинговому ключу
func (r *CachedSubscriptionRepository) GetByBillingKey(ctx context.Context, billingKey string) (domain.Subscription, error) {
	return r.inner.GetByBillingKey(ctx, billingKey)
}

// FindRenewable возвращает активные автопродляемые подписки
func (r *CachedSubscriptionRepository) FindRenewable(ctx context.Context, threshold time.Time) ([]domain.Subscription, error) {
	return r.inner.FindRenewable(ctx, threshold)
}

// FindExpired возвращает активные подписки с истекшим сроком
func (r *CachedSubscriptionRepository) FindExpired(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	return r.inner.FindExpired(ctx, now)
}

// FindExpiringBetween возвращает активные подписки, истекающие в интервале
func (r *CachedSubscriptionRepository) FindExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Subscription, error) {
	return r.inner.FindExpiringBetween(ctx, from, to)
}

func (r *CachedSubscriptionRepository) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := r.client.Del(ctx, activeSubKey(userID)).Err(); err != nil {
		r.log.Warnw("Failed to invalidate subscription cache", "userId", userID, "error", err)
	}
}
