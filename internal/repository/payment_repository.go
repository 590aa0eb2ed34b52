package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// PaymentRepository репозиторий для работы с платежами
type PaymentRepository interface {
	// Create создает новый платеж
	Create(ctx context.Context, payment domain.Payment) (domain.Payment, error)

	// GetByOrderID возвращает платеж по идентификатору заказа
	GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error)

	// GetByPaymentKey возвращает платеж по ключу платежа шлюза
	GetByPaymentKey(ctx context.Context, paymentKey string) (domain.Payment, error)

	// WithOrderLock выполняет fn, удерживая блокировку строки платежа.
	// fn получает репозиторий, привязанный к той же транзакции, и снимок
	// платежа, прочитанный под блокировкой.
	WithOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context, repo PaymentRepository, payment domain.Payment) error) error

	// TryComplete атомарно переводит платеж PENDING -> COMPLETED.
	// Возвращает true, если именно этот вызов выполнил переход.
	TryComplete(ctx context.Context, orderID, paymentKey, method string, paidAt time.Time) (bool, error)

	// Cancel переводит платеж COMPLETED -> CANCELED
	Cancel(ctx context.Context, orderID, reason string, canceledAt time.Time) error

	// Fail переводит платеж PENDING -> FAILED
	Fail(ctx context.Context, orderID, reason string) error

	// LinkSubscription привязывает платеж к подписке
	LinkSubscription(ctx context.Context, orderID string, subscriptionID uuid.UUID) error

	// FindCompletedByUserID возвращает завершенные платежи пользователя,
	// новые первыми
	FindCompletedByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Payment, error)
}

// InMemoryPaymentRepository реализация репозитория платежей в памяти
type InMemoryPaymentRepository struct {
	mu           sync.RWMutex
	payments     map[string]domain.Payment // order_id -> payment
	byPaymentKey map[string]string         // payment_key -> order_id

	lockMu     sync.Mutex
	orderLocks map[string]*sync.Mutex

	log *logger.Logger
}

// NewInMemoryPaymentRepository создает новый репозиторий платежей в памяти
func NewInMemoryPaymentRepository(log *logger.Logger) *InMemoryPaymentRepository {
	return &InMemoryPaymentRepository{
		payments:     make(map[string]domain.Payment),
		byPaymentKey: make(map[string]string),
		orderLocks:   make(map[string]*sync.Mutex),
		log:          log,
	}
}

func (r *InMemoryPaymentRepository) orderLock(orderID string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	l, ok := r.orderLocks[orderID]
	if !ok {
		l = &sync.Mutex{}
		r.orderLocks[orderID] = l
	}
	return l
}

// Create создает новый платеж
func (r *InMemoryPaymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if payment.OrderID == "" {
		return domain.Payment{}, ErrInvalidData
	}
	if _, exists := r.payments[payment.OrderID]; exists {
		return domain.Payment{}, ErrDuplicate
	}

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	r.payments[payment.OrderID] = payment
	if payment.PaymentKey != "" {
		r.byPaymentKey[payment.PaymentKey] = payment.OrderID
	}

	return payment, nil
}

// GetByOrderID возвращает платеж по идентификатору заказа
func (r *InMemoryPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[orderID]
	if !ok {
		return domain.Payment{}, ErrNotFound
	}
	return p, nil
}

// GetByPaymentKey возвращает платеж по ключу платежа шлюза
func (r *InMemoryPaymentRepository) GetByPaymentKey(ctx context.Context, paymentKey string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orderID, ok := r.byPaymentKey[paymentKey]
	if !ok {
		return domain.Payment{}, ErrNotFound
	}
	p, ok := r.payments[orderID]
	if !ok {
		return domain.Payment{}, ErrNotFound
	}
	return p, nil
}

// WithOrderLock выполняет fn под блокировкой заказа
func (r *InMemoryPaymentRepository) WithOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context, repo PaymentRepository, payment domain.Payment) error) error {
	l := r.orderLock(orderID)
	l.Lock()
	defer l.Unlock()

	p, err := r.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}

	// Вложенный репозиторий не берет блокировку заказа повторно
	return fn(ctx, &lockedPaymentRepository{parent: r}, p)
}

// TryComplete атомарно переводит платеж PENDING -> COMPLETED
func (r *InMemoryPaymentRepository) TryComplete(ctx context.Context, orderID, paymentKey, method string, paidAt time.Time) (bool, error) {
	l := r.orderLock(orderID)
	l.Lock()
	defer l.Unlock()

	return r.tryComplete(orderID, paymentKey, method, paidAt)
}

func (r *InMemoryPaymentRepository) tryComplete(orderID, paymentKey, method string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if p.Status != domain.PaymentStatusPending {
		return false, nil
	}

	p.Complete(paymentKey, method, paidAt)
	r.payments[orderID] = p
	if paymentKey != "" {
		r.byPaymentKey[paymentKey] = orderID
	}
	return true, nil
}

// Cancel переводит платеж COMPLETED -> CANCELED
func (r *InMemoryPaymentRepository) Cancel(ctx context.Context, orderID, reason string, canceledAt time.Time) error {
	l := r.orderLock(orderID)
	l.Lock()
	defer l.Unlock()

	return r.cancel(orderID, reason, canceledAt)
}

func (r *InMemoryPaymentRepository) cancel(orderID, reason string, canceledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[orderID]
	if !ok {
		return ErrNotFound
	}
	if p.Status != domain.PaymentStatusCompleted {
		return nil
	}

	p.Status = domain.PaymentStatusCanceled
	p.CancelReason = reason
	p.CanceledAt = &canceledAt
	p.UpdatedAt = time.Now()
	r.payments[orderID] = p
	return nil
}

// Fail переводит платеж PENDING -> FAILED
func (r *InMemoryPaymentRepository) Fail(ctx context.Context, orderID, reason string) error {
	l := r.orderLock(orderID)
	l.Lock()
	defer l.Unlock()

	return r.fail(orderID, reason)
}

func (r *InMemoryPaymentRepository) fail(orderID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[orderID]
	if !ok {
		return ErrNotFound
	}
	if p.Status != domain.PaymentStatusPending {
		return nil
	}

	p.Status = domain.PaymentStatusFailed
	p.FailReason = reason
	p.UpdatedAt = time.Now()
	r.payments[orderID] = p
	return nil
}

// LinkSubscription привязывает платеж к подписке
func (r *InMemoryPaymentRepository) LinkSubscription(ctx context.Context, orderID string, subscriptionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[orderID]
	if !ok {
		return ErrNotFound
	}

	p.SubscriptionID = &subscriptionID
	p.UpdatedAt = time.Now()
	r.payments[orderID] = p
	return nil
}

// FindCompletedByUserID возвращает завершенные платежи пользователя
func (r *InMemoryPaymentRepository) FindCompletedByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Payment
	for _, p := range r.payments {
		if p.UserID == userID && p.Status == domain.PaymentStatusCompleted {
			result = append(result, p)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].CreatedAt, result[j].CreatedAt
		if result[i].PaidAt != nil {
			ti = *result[i].PaidAt
		}
		if result[j].PaidAt != nil {
			tj = *result[j].PaidAt
		}
		return ti.After(tj)
	})

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// lockedPaymentRepository вариант репозитория внутри WithOrderLock:
// мутации не берут блокировку заказа, она уже удерживается вызывающим
type lockedPaymentRepository struct {
	parent *InMemoryPaymentRepository
}

func (r *lockedPaymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	return r.parent.Create(ctx, payment)
}

func (r *lockedPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.parent.GetByOrderID(ctx, orderID)
}

func (r *lockedPaymentRepository) GetByPaymentKey(ctx context.Context, paymentKey string) (domain.Payment, error) {
	return r.parent.GetByPaymentKey(ctx, paymentKey)
}

func (r *lockedPaymentRepository) WithOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context, repo PaymentRepository, payment domain.Payment) error) error {
	return ErrInvalidOperation
}

func (r *lockedPaymentRepository) TryComplete(ctx context.Context, orderID, paymentKey, method string, paidAt time.Time) (bool, error) {
	return r.parent.tryComplete(orderID, paymentKey, method, paidAt)
}

func (r *lockedPaymentRepository) Cancel(ctx context.Context, orderID, reason string, canceledAt time.Time) error {
	return r.parent.cancel(orderID, reason, canceledAt)
}

func (r *lockedPaymentRepository) Fail(ctx context.Context, orderID, reason string) error {
	return r.parent.fail(orderID, reason)
}

func (r *lockedPaymentRepository) LinkSubscription(ctx context.Context, orderID string, subscriptionID uuid.UUID) error {
	return r.parent.LinkSubscription(ctx, orderID, subscriptionID)
}

func (r *lockedPaymentRepository) FindCompletedByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Payment, error) {
	return r.parent.FindCompletedByUserID(ctx, userID, limit, offset)
}
