package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// PaymentService управляет платежным циклом: создание сессии оплаты,
// подтверждение платежа и активация подписки
type PaymentService struct {
	payments repository.PaymentRepository
	subs     *SubscriptionService
	gateway  PaymentGateway
	notifier NotificationSink
	metrics  *metrics.BillingMetrics
	log      *logger.Logger
}

// NewPaymentService создает новый сервис платежей
func NewPaymentService(
	payments repository.PaymentRepository,
	subs *SubscriptionService,
	gateway PaymentGateway,
	notifier NotificationSink,
	m *metrics.BillingMetrics,
	log *logger.Logger,
) *PaymentService {
	return &PaymentService{
		payments: payments,
		subs:     subs,
		gateway:  gateway,
		notifier: notifier,
		metrics:  m,
		log:      log,
	}
}

// Checkout создает сессию оплаты: платеж в статусе PENDING с суммой,
// рассчитанной на сервере по тарифу и циклу
func (s *PaymentService) Checkout(ctx context.Context, userID uuid.UUID, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	plan, err := domain.ParseSubscriptionPlan(req.Plan)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	cycle, err := domain.ParseBillingCycle(req.BillingCycle)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if !plan.Purchasable() {
		return domain.CheckoutResponse{}, domain.ErrFreePlanNotPurchasable
	}

	hasActive, err := s.subs.HasActive(ctx, userID)
	if err != nil {
		return domain.CheckoutResponse{}, fmt.Errorf("check active subscription: %w", err)
	}
	if hasActive {
		return domain.CheckoutResponse{}, domain.ErrSubscriptionAlreadyExists
	}

	// Ключ клиента переиспользуется между подписками одного пользователя
	customerKey := domain.NewCustomerKey()
	if prev, err := s.subs.subs.GetByUserID(ctx, userID); err == nil && prev.CustomerKey != "" {
		customerKey = prev.CustomerKey
	}

	payment := domain.Payment{
		UserID:       userID,
		OrderID:      domain.NewOrderID(),
		Amount:       plan.Price(cycle),
		Plan:         plan,
		BillingCycle: cycle,
		CustomerKey:  customerKey,
		Status:       domain.PaymentStatusPending,
		Type:         domain.PaymentTypeInitial,
	}

	created, err := s.payments.Create(ctx, payment)
	if err != nil {
		return domain.CheckoutResponse{}, fmt.Errorf("create payment: %w", err)
	}

	s.metrics.IncCheckout(string(plan), string(cycle))
	s.log.Infow("Checkout created",
		"userId", userID, "orderId", created.OrderID,
		"plan", plan, "cycle", cycle, "amount", created.Amount)

	return domain.CheckoutResponse{
		OrderID:     created.OrderID,
		CustomerKey: created.CustomerKey,
		Amount:      created.Amount,
		OrderName:   domain.OrderName(plan, cycle),
	}, nil
}

// ConfirmPayment подтверждает разовый платеж (годовой цикл) и возвращает
// активированную подписку. Повторный вызов для уже завершенного платежа
// возвращает действующую подписку без обращения к шлюзу.
func (s *PaymentService) ConfirmPayment(ctx context.Context, userID uuid.UUID, req domain.ConfirmPaymentRequest) (domain.Subscription, error) {
	var result domain.Subscription
	var completedNow bool

	err := s.payments.WithOrderLock(ctx, req.OrderID, func(ctx context.Context, repo repository.PaymentRepository, p domain.Payment) error {
		if p.UserID != userID {
			return domain.ErrPaymentNotFound
		}
		if p.BillingCycle != domain.BillingCycleYearly {
			return domain.ErrPaymentNotSupportedForCycle
		}
		if p.IsCompleted() {
			var err error
			result, err = s.resolveConfirmedSubscription(ctx, userID)
			return err
		}
		if !p.IsPending() {
			return domain.ErrPaymentAlreadyProcessed
		}
		if req.Amount != p.Amount {
			return domain.ErrPaymentAmountMismatch
		}

		resp, err := s.gateway.ConfirmPayment(ctx, req.PaymentKey, p.OrderID, p.Amount)
		if err != nil || !resp.IsDone() {
			if err == nil {
				err = domain.ErrPaymentConfirmationFailed
			}
			// Платеж остается PENDING: пользователь может повторить
			// подтверждение, а DONE-webhook еще может его завершить
			s.metrics.IncPaymentFailed("confirm")
			s.log.Warnw("Payment confirmation failed, payment stays pending",
				"orderId", p.OrderID, "userId", p.UserID,
				"paymentKey", req.PaymentKey, "error", err)
			return err
		}

		now := time.Now()
		completed, err := repo.TryComplete(ctx, p.OrderID, resp.PaymentKey, resp.Method, now)
		if err != nil {
			return err
		}
		if !completed {
			// Платеж завершил конкурентный путь
			result, err = s.resolveConfirmedSubscription(ctx, userID)
			return err
		}

		p.Complete(resp.PaymentKey, resp.Method, now)
		sub, err := s.subs.ActivateFromPayment(ctx, repo, p, "")
		if err != nil && !errors.Is(err, domain.ErrSubscriptionAlreadyExists) {
			return err
		}

		s.metrics.IncPaymentCompleted("confirm")
		result = sub
		completedNow = true
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Subscription{}, domain.ErrPaymentNotFound
		}
		return domain.Subscription{}, err
	}

	if completedNow {
		s.log.Infow("Payment confirmed", "orderId", req.OrderID, "userId", userID)
		notify(ctx, s.notifier, s.log, userID, NotificationPaymentCompleted, map[string]string{
			"orderId": req.OrderID,
			"plan":    string(result.Plan),
		})
	}
	return result, nil
}

// ConfirmBilling подтверждает платеж месячного цикла: выпускает
// биллинговый ключ по authKey, списывает первый платеж и возвращает
// активированную подписку. Повторный вызов для уже завершенного платежа
// возвращает действующую подписку без обращения к шлюзу.
func (s *PaymentService) ConfirmBilling(ctx context.Context, userID uuid.UUID, req domain.ConfirmBillingRequest) (domain.Subscription, error) {
	var result domain.Subscription
	var completedNow bool

	err := s.payments.WithOrderLock(ctx, req.OrderID, func(ctx context.Context, repo repository.PaymentRepository, p domain.Payment) error {
		if p.UserID != userID {
			return domain.ErrPaymentNotFound
		}
		if p.BillingCycle != domain.BillingCycleMonthly {
			return domain.ErrBillingNotSupportedForCycle
		}
		if req.CustomerKey != p.CustomerKey {
			return domain.ErrPaymentCustomerKeyMismatch
		}
		if p.IsCompleted() {
			var err error
			result, err = s.resolveConfirmedSubscription(ctx, userID)
			return err
		}
		if !p.IsPending() {
			return domain.ErrPaymentAlreadyProcessed
		}

		key, err := s.gateway.IssueBillingKey(ctx, req.AuthKey, p.CustomerKey)
		if err != nil {
			// Платеж остается PENDING, пользователь может повторить попытку
			s.metrics.IncPaymentFailed("billing")
			s.log.Warnw("Billing key issue failed, payment stays pending",
				"orderId", p.OrderID, "userId", p.UserID,
				"customerKey", p.CustomerKey, "error", err)
			return err
		}

		orderName := domain.OrderName(p.Plan, p.BillingCycle)
		resp, err := s.gateway.ChargeBillingKey(ctx, key.BillingKey, p.CustomerKey, p.OrderID, orderName, p.Amount)
		if err != nil || !resp.IsDone() {
			if err == nil {
				err = domain.ErrBillingChargeFailed
			}
			// Ответ шлюза мог потеряться после успешного списания:
			// PENDING оставляет шанс DONE-webhook завершить платеж
			s.metrics.IncPaymentFailed("billing")
			s.log.Warnw("Billing charge failed, payment stays pending",
				"orderId", p.OrderID, "userId", p.UserID,
				"customerKey", p.CustomerKey, "error", err)
			return err
		}

		now := time.Now()
		completed, err := repo.TryComplete(ctx, p.OrderID, resp.PaymentKey, resp.Method, now)
		if err != nil {
			return err
		}
		if !completed {
			result, err = s.resolveConfirmedSubscription(ctx, userID)
			return err
		}

		p.Complete(resp.PaymentKey, resp.Method, now)
		sub, err := s.subs.ActivateFromPayment(ctx, repo, p, key.BillingKey)
		if err != nil && !errors.Is(err, domain.ErrSubscriptionAlreadyExists) {
			return err
		}

		s.metrics.IncPaymentCompleted("billing")
		result = sub
		completedNow = true
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Subscription{}, domain.ErrPaymentNotFound
		}
		return domain.Subscription{}, err
	}

	if completedNow {
		s.log.Infow("Billing payment confirmed", "orderId", req.OrderID, "userId", userID)
		notify(ctx, s.notifier, s.log, userID, NotificationPaymentCompleted, map[string]string{
			"orderId": req.OrderID,
			"plan":    string(result.Plan),
		})
	}
	return result, nil
}

// GetPaymentHistory возвращает завершенные платежи пользователя
func (s *PaymentService) GetPaymentHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Payment, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.payments.FindCompletedByUserID(ctx, userID, limit, offset)
}

// resolveConfirmedSubscription возвращает действующую подписку для уже
// завершенного платежа. Ее отсутствие означает, что платеж завершил
// webhook, а создание подписки еще идет или не удалось.
func (s *PaymentService) resolveConfirmedSubscription(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	sub, err := s.subs.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return domain.Subscription{}, domain.ErrPaymentAlreadyProcessed
		}
		return domain.Subscription{}, fmt.Errorf("get active subscription: %w", err)
	}
	return sub, nil
}
