package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// SubscriptionRepository репозиторий для работы с подписками
type SubscriptionRepository interface {
	// Create создает новую подписку. Возвращает
	// domain.ErrSubscriptionAlreadyExists, если у пользователя уже есть
	// активная подписка.
	Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)

	// Update обновляет подписку
	Update(ctx context.Context, sub domain.Subscription) error

	// GetByID возвращает подписку по идентификатору
	GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error)

	// GetByUserID возвращает последнюю подписку пользователя
	GetByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error)

	// GetActiveByUserID возвращает активную подписку пользователя
	GetActiveByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error)

	// ExistsActiveByUserID проверяет наличие активной подписки
	ExistsActiveByUserID(ctx context.Context, userID uuid.UUID) (bool, error)

	// GetByBillingKey возвращает подписку по биллинговому ключу
	GetByBillingKey(ctx context.Context, billingKey string) (domain.Subscription, error)

	// FindRenewable возвращает активные автопродляемые подписки,
	// истекающие не позже threshold
	FindRenewable(ctx context.Context, threshold time.Time) ([]domain.Subscription, error)

	// FindExpired возвращает активные подписки с истекшим сроком
	FindExpired(ctx context.Context, now time.Time) ([]domain.Subscription, error)

	// FindExpiringBetween возвращает активные подписки, истекающие
	// в интервале [from, to)
	FindExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Subscription, error)
}

// InMemorySubscriptionRepository реализация репозитория подписок в памяти
type InMemorySubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]domain.Subscription
	log  *logger.Logger
}

// NewInMemorySubscriptionRepository создает новый репозиторий подписок в памяти
func NewInMemorySubscriptionRepository(log *logger.Logger) *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subs: make(map[uuid.UUID]domain.Subscription),
		log:  log,
	}
}

// Create создает новую подписку
func (r *InMemorySubscriptionRepository) Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Аналог частичного уникального индекса (user_id WHERE status = 'active')
	for _, s := range r.subs {
		if s.UserID == sub.UserID && s.Status == domain.SubscriptionStatusActive {
			return domain.Subscription{}, domain.ErrSubscriptionAlreadyExists
		}
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	r.subs[sub.ID] = sub
	return sub, nil
}

// Update обновляет подписку
func (r *InMemorySubscriptionRepository) Update(ctx context.Context, sub domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[sub.ID]; !ok {
		return ErrNotFound
	}

	sub.UpdatedAt = time.Now()
	r.subs[sub.ID] = sub
	return nil
}

// GetByID возвращает подписку по идентификатору
func (r *InMemorySubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subs[id]
	if !ok {
		return domain.Subscription{}, ErrNotFound
	}
	return s, nil
}

// GetByUserID возвращает последнюю подписку пользователя
func (r *InMemorySubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found bool
	var latest domain.Subscription
	for _, s := range r.subs {
		if s.UserID != userID {
			continue
		}
		if !found || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
			found = true
		}
	}
	if !found {
		return domain.Subscription{}, ErrNotFound
	}
	return latest, nil
}

// GetActiveByUserID возвращает активную подписку пользователя
func (r *InMemorySubscriptionRepository) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.subs {
		if s.UserID == userID && s.Status == domain.SubscriptionStatusActive {
			return s, nil
		}
	}
	return domain.Subscription{}, ErrNotFound
}

// ExistsActiveByUserID проверяет наличие активной подписки
func (r *InMemorySubscriptionRepository) ExistsActiveByUserID(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, err := r.GetActiveByUserID(ctx, userID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetByBillingKey возвращает подписку по биллинговому ключу
func (r *InMemorySubscriptionRepository) GetByBillingKey(ctx context.Context, billingKey string) (domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if billingKey == "" {
		return domain.Subscription{}, ErrInvalidData
	}
	for _, s := range r.subs {
		if s.BillingKey == billingKey {
			return s, nil
		}
	}
	return domain.Subscription{}, ErrNotFound
}

// FindRenewable возвращает активные автопродляемые подписки
func (r *InMemorySubscriptionRepository) FindRenewable(ctx context.Context, threshold time.Time) ([]domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Subscription
	for _, s := range r.subs {
		if s.Status == domain.SubscriptionStatusActive && s.AutoRenewal &&
			s.BillingKey != "" && !s.EndDate.After(threshold) {
			result = append(result, s)
		}
	}
	return result, nil
}

// FindExpired возвращает активные подписки с истекшим сроком
func (r *InMemorySubscriptionRepository) FindExpired(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Subscription
	for _, s := range r.subs {
		if s.Status == domain.SubscriptionStatusActive && s.EndDate.Before(now) {
			result = append(result, s)
		}
	}
	return result, nil
}

// FindExpiringBetween возвращает активные подписки, истекающие в интервале
func (r *InMemorySubscriptionRepository) FindExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Subscription
	for _, s := range r.subs {
		if s.Status == domain.SubscriptionStatusActive &&
			!s.EndDate.Before(from) && s.EndDate.Before(to) {
			result = append(result, s)
		}
	}
	return result, nil
}
