package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// SubscriptionService управляет жизненным циклом подписок
type SubscriptionService struct {
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	gateway  PaymentGateway
	notifier NotificationSink
	metrics  *metrics.BillingMetrics
	log      *logger.Logger
}

// NewSubscriptionService создает новый сервис подписок
func NewSubscriptionService(
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	gateway PaymentGateway,
	notifier NotificationSink,
	m *metrics.BillingMetrics,
	log *logger.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subs:     subs,
		payments: payments,
		gateway:  gateway,
		notifier: notifier,
		metrics:  m,
		log:      log,
	}
}

// ActivateFromPayment активирует подписку по завершенному платежу и
// привязывает платеж к ней. payments должен быть репозиторием вызывающего:
// внутри блокировки заказа это транзакционный репозиторий.
// Если у пользователя уже есть активная подписка, возвращает ее вместе с
// domain.ErrSubscriptionAlreadyExists.
func (s *SubscriptionService) ActivateFromPayment(ctx context.Context, payments repository.PaymentRepository, payment domain.Payment, billingKey string) (domain.Subscription, error) {
	now := time.Now()

	existing, err := s.subs.GetByUserID(ctx, payment.UserID)
	switch {
	case err == nil && existing.IsActive():
		return existing, domain.ErrSubscriptionAlreadyExists

	case err == nil:
		// Реактивация последней подписки вместо создания новой строки
		existing.Plan = payment.Plan
		existing.Status = domain.SubscriptionStatusActive
		existing.BillingCycle = payment.BillingCycle
		existing.StartDate = now
		existing.EndDate = domain.SubscriptionEndDate(now, payment.BillingCycle)
		existing.CustomerKey = payment.CustomerKey
		existing.BillingKey = billingKey
		existing.AutoRenewal = billingKey != ""
		existing.CancelReason = ""

		if err := s.subs.Update(ctx, existing); err != nil {
			return domain.Subscription{}, fmt.Errorf("reactivate subscription: %w", err)
		}
		if err := payments.LinkSubscription(ctx, payment.OrderID, existing.ID); err != nil {
			return domain.Subscription{}, fmt.Errorf("link payment: %w", err)
		}

		s.log.Infow("Subscription reactivated",
			"subscriptionId", existing.ID, "userId", payment.UserID, "plan", payment.Plan)
		return existing, nil

	case errors.Is(err, repository.ErrNotFound):
		sub := domain.Subscription{
			UserID:       payment.UserID,
			Plan:         payment.Plan,
			Status:       domain.SubscriptionStatusActive,
			BillingCycle: payment.BillingCycle,
			StartDate:    now,
			EndDate:      domain.SubscriptionEndDate(now, payment.BillingCycle),
			CustomerKey:  payment.CustomerKey,
			BillingKey:   billingKey,
			AutoRenewal:  billingKey != "",
		}

		created, err := s.subs.Create(ctx, sub)
		if err != nil {
			return domain.Subscription{}, err
		}
		if err := payments.LinkSubscription(ctx, payment.OrderID, created.ID); err != nil {
			return domain.Subscription{}, fmt.Errorf("link payment: %w", err)
		}

		s.log.Infow("Subscription activated",
			"subscriptionId", created.ID, "userId", payment.UserID,
			"plan", payment.Plan, "cycle", payment.BillingCycle)
		return created, nil

	default:
		return domain.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
}

// GetByID возвращает подписку по идентификатору
func (s *SubscriptionService) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Subscription{}, domain.ErrSubscriptionNotFound
		}
		return domain.Subscription{}, err
	}
	return sub, nil
}

// GetActiveByUser возвращает активную подписку пользователя
func (s *SubscriptionService) GetActiveByUser(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	sub, err := s.subs.GetActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Subscription{}, domain.ErrSubscriptionNotFound
		}
		return domain.Subscription{}, err
	}
	return sub, nil
}

// HasActive проверяет наличие активной подписки у пользователя
func (s *SubscriptionService) HasActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.subs.ExistsActiveByUserID(ctx, userID)
}

// CancelByUser отключает автопродление по просьбе пользователя.
// Подписка остается активной до конца оплаченного периода.
func (s *SubscriptionService) CancelByUser(ctx context.Context, userID uuid.UUID, reason string) (domain.Subscription, error) {
	sub, err := s.GetActiveByUser(ctx, userID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if !sub.AutoRenewal && sub.CancelReason != "" {
		return domain.Subscription{}, domain.ErrSubscriptionAlreadyCanceled
	}

	sub.AutoRenewal = false
	sub.CancelReason = reason
	if err := s.subs.Update(ctx, sub); err != nil {
		return domain.Subscription{}, err
	}

	s.log.Infow("Subscription cancellation scheduled",
		"subscriptionId", sub.ID, "userId", userID, "endDate", sub.EndDate)
	notify(ctx, s.notifier, s.log, userID, NotificationSubscriptionCanceled, map[string]string{
		"subscriptionId": sub.ID.String(),
		"endDate":        sub.EndDate.Format(time.RFC3339),
	})
	return sub, nil
}

// Cancel немедленно переводит подписку в CANCELED.
// Используется каскадом отмены платежа, уведомление шлет вызывающий.
func (s *SubscriptionService) Cancel(ctx context.Context, subscriptionID uuid.UUID, reason string) error {
	sub, err := s.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrSubscriptionNotFound
		}
		return err
	}
	if sub.Status == domain.SubscriptionStatusCanceled {
		return nil
	}

	sub.Status = domain.SubscriptionStatusCanceled
	sub.AutoRenewal = false
	sub.CancelReason = reason
	if err := s.subs.Update(ctx, sub); err != nil {
		return err
	}

	s.log.Infow("Subscription canceled", "subscriptionId", sub.ID, "reason", reason)
	return nil
}

// ClearBillingKey снимает биллинговый ключ с подписки. Для месячного
// цикла ключом оплачивается продление, поэтому дополнительно отключается
// автопродление и уведомляется пользователь. Подписка в любом случае
// остается активной до конца периода.
func (s *SubscriptionService) ClearBillingKey(ctx context.Context, billingKey string) error {
	sub, err := s.subs.GetByBillingKey(ctx, billingKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrSubscriptionNotFound
		}
		return err
	}

	sub.BillingKey = ""
	monthly := sub.BillingCycle == domain.BillingCycleMonthly
	if monthly {
		sub.AutoRenewal = false
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return err
	}

	s.log.Infow("Billing key removed",
		"subscriptionId", sub.ID, "cycle", sub.BillingCycle, "autoRenewal", sub.AutoRenewal)
	if monthly {
		notify(ctx, s.notifier, s.log, sub.UserID, NotificationAutoRenewalDisabled, map[string]string{
			"subscriptionId": sub.ID.String(),
			"endDate":        sub.EndDate.Format(time.RFC3339),
		})
	}
	return nil
}

// Plans возвращает список доступных тарифов
func (s *SubscriptionService) Plans() []domain.PlanInfo {
	return domain.Plans()
}

// RenewDueSubscriptions продлевает подписки, истекающие не позже
// now + before
func (s *SubscriptionService) RenewDueSubscriptions(ctx context.Context, before time.Duration) {
	subs, err := s.subs.FindRenewable(ctx, time.Now().Add(before))
	if err != nil {
		s.log.Errorw("Failed to find renewable subscriptions", "error", err)
		return
	}

	for _, sub := range subs {
		if err := s.renew(ctx, sub); err != nil {
			s.log.Errorw("Subscription renewal failed",
				"subscriptionId", sub.ID, "userId", sub.UserID, "error", err)
		}
	}
}

func (s *SubscriptionService) renew(ctx context.Context, sub domain.Subscription) error {
	amount := sub.Plan.Price(sub.BillingCycle)
	orderID := domain.NewOrderID()
	orderName := domain.OrderName(sub.Plan, sub.BillingCycle)

	payment := domain.Payment{
		UserID:         sub.UserID,
		SubscriptionID: &sub.ID,
		OrderID:        orderID,
		Amount:         amount,
		Plan:           sub.Plan,
		BillingCycle:   sub.BillingCycle,
		CustomerKey:    sub.CustomerKey,
		Status:         domain.PaymentStatusPending,
		Type:           domain.PaymentTypeRenewal,
	}
	if _, err := s.payments.Create(ctx, payment); err != nil {
		return fmt.Errorf("create renewal payment: %w", err)
	}

	resp, err := s.gateway.ChargeBillingKey(ctx, sub.BillingKey, sub.CustomerKey, orderID, orderName, amount)
	if err != nil {
		s.metrics.IncRenewal("failed")
		if failErr := s.payments.Fail(ctx, orderID, err.Error()); failErr != nil {
			s.log.Errorw("Failed to mark renewal payment failed", "orderId", orderID, "error", failErr)
		}
		notify(ctx, s.notifier, s.log, sub.UserID, NotificationRenewalFailed, map[string]string{
			"subscriptionId": sub.ID.String(),
			"endDate":        sub.EndDate.Format(time.RFC3339),
		})
		return err
	}

	completed, err := s.payments.TryComplete(ctx, orderID, resp.PaymentKey, resp.Method, time.Now())
	if err != nil {
		return fmt.Errorf("complete renewal payment: %w", err)
	}
	if !completed {
		return nil
	}

	// Продление отсчитывается от конца оплаченного периода
	sub.EndDate = domain.SubscriptionEndDate(sub.EndDate, sub.BillingCycle)
	if err := s.subs.Update(ctx, sub); err != nil {
		return fmt.Errorf("extend subscription: %w", err)
	}

	s.metrics.IncRenewal("success")
	s.metrics.IncPaymentCompleted("renewal")
	s.log.Infow("Subscription renewed",
		"subscriptionId", sub.ID, "userId", sub.UserID, "newEndDate", sub.EndDate)
	notify(ctx, s.notifier, s.log, sub.UserID, NotificationSubscriptionRenewed, map[string]string{
		"subscriptionId": sub.ID.String(),
		"endDate":        sub.EndDate.Format(time.RFC3339),
	})
	return nil
}

// ExpireOverdueSubscriptions переводит просроченные подписки в EXPIRED
func (s *SubscriptionService) ExpireOverdueSubscriptions(ctx context.Context) {
	subs, err := s.subs.FindExpired(ctx, time.Now())
	if err != nil {
		s.log.Errorw("Failed to find expired subscriptions", "error", err)
		return
	}

	for _, sub := range subs {
		sub.Status = domain.SubscriptionStatusExpired
		if err := s.subs.Update(ctx, sub); err != nil {
			s.log.Errorw("Failed to expire subscription", "subscriptionId", sub.ID, "error", err)
			continue
		}

		s.log.Infow("Subscription expired", "subscriptionId", sub.ID, "userId", sub.UserID)
		notify(ctx, s.notifier, s.log, sub.UserID, NotificationSubscriptionExpired, map[string]string{
			"subscriptionId": sub.ID.String(),
		})
	}
}

// NotifyExpiringSubscriptions предупреждает о скором окончании подписок
// без автопродления за daysBefore дней
func (s *SubscriptionService) NotifyExpiringSubscriptions(ctx context.Context, daysBefore ...int) {
	now := time.Now()
	for _, days := range daysBefore {
		from := now.AddDate(0, 0, days).Truncate(24 * time.Hour)
		to := from.Add(24 * time.Hour)

		subs, err := s.subs.FindExpiringBetween(ctx, from, to)
		if err != nil {
			s.log.Errorw("Failed to find expiring subscriptions", "days", days, "error", err)
			continue
		}

		for _, sub := range subs {
			if sub.AutoRenewal {
				continue
			}
			notify(ctx, s.notifier, s.log, sub.UserID, NotificationSubscriptionExpiring, map[string]string{
				"subscriptionId": sub.ID.String(),
				"daysLeft":       strconv.Itoa(days),
				"endDate":        sub.EndDate.Format(time.RFC3339),
			})
		}
	}
}
