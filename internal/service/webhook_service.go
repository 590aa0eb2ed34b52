package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// WebhookService сверяет webhook-события Toss с локальным состоянием.
// Payload не является источником истины: статусы, влияющие на деньги,
// подтверждаются повторным запросом к шлюзу.
type WebhookService struct {
	payments repository.PaymentRepository
	subs     *SubscriptionService
	gateway  PaymentGateway
	notifier NotificationSink
	metrics  *metrics.BillingMetrics
	log      *logger.Logger
}

// NewWebhookService создает новый сервис обработки webhook-событий
func NewWebhookService(
	payments repository.PaymentRepository,
	subs *SubscriptionService,
	gateway PaymentGateway,
	notifier NotificationSink,
	m *metrics.BillingMetrics,
	log *logger.Logger,
) *WebhookService {
	return &WebhookService{
		payments: payments,
		subs:     subs,
		gateway:  gateway,
		notifier: notifier,
		metrics:  m,
		log:      log,
	}
}

// ProcessWebhook обрабатывает webhook-событие. Неизвестные события и
// заказы игнорируются без ошибки: шлюзу всегда отвечают 200.
func (s *WebhookService) ProcessWebhook(ctx context.Context, payload domain.WebhookPayload) error {
	eventType := domain.ParseWebhookEventType(payload.EventType)

	switch eventType {
	case domain.WebhookEventPaymentStatusChanged:
		if payload.Data == nil {
			s.metrics.IncWebhookEvent(payload.EventType, "ignored")
			return nil
		}
		return s.handlePaymentStatusChanged(ctx, payload.Data)

	case domain.WebhookEventBillingKeyDeleted:
		if payload.Data == nil || payload.Data.BillingKey == "" {
			s.metrics.IncWebhookEvent(payload.EventType, "ignored")
			return nil
		}
		return s.handleBillingKeyDeleted(ctx, payload.Data)

	default:
		s.log.Debugw("Ignoring unknown webhook event", "eventType", payload.EventType)
		s.metrics.IncWebhookEvent(payload.EventType, "ignored")
		return nil
	}
}

func (s *WebhookService) handlePaymentStatusChanged(ctx context.Context, data *domain.WebhookData) error {
	eventType := string(domain.WebhookEventPaymentStatusChanged)

	switch domain.ParseWebhookPaymentStatus(data.Status) {
	case domain.WebhookPaymentStatusDone:
		return s.handleDone(ctx, data)

	case domain.WebhookPaymentStatusCanceled:
		return s.handleCanceled(ctx, data)

	case domain.WebhookPaymentStatusAborted, domain.WebhookPaymentStatusExpired:
		return s.handleFailed(ctx, data)

	default:
		s.log.Debugw("Ignoring unknown payment status", "orderId", data.OrderID, "status", data.Status)
		s.metrics.IncWebhookEvent(eventType, "ignored")
		return nil
	}
}

// handleDone завершает платеж по событию DONE. Перед завершением статус,
// заказ и сумма сверяются с каноническим платежом, полученным от шлюза.
func (s *WebhookService) handleDone(ctx context.Context, data *domain.WebhookData) error {
	eventType := string(domain.WebhookEventPaymentStatusChanged)

	payment, err := s.payments.GetByOrderID(ctx, data.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Webhook for unknown order, ignoring", "orderId", data.OrderID)
			s.metrics.IncWebhookEvent(eventType, "ignored")
			return nil
		}
		s.metrics.IncWebhookEvent(eventType, "error")
		return fmt.Errorf("load payment: %w", err)
	}
	if payment.IsCompleted() {
		s.metrics.IncWebhookEvent(eventType, "ignored")
		return nil
	}

	canonical, err := s.gateway.GetPayment(ctx, data.PaymentKey)
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		return fmt.Errorf("fetch canonical payment: %w", err)
	}
	if !canonical.IsDone() || canonical.OrderID != payment.OrderID || canonical.TotalAmount != payment.Amount {
		s.log.Warnw("Webhook payload does not match gateway state, ignoring",
			"orderId", payment.OrderID,
			"gatewayStatus", canonical.Status,
			"gatewayOrderId", canonical.OrderID,
			"gatewayAmount", canonical.TotalAmount,
			"expectedAmount", payment.Amount)
		s.metrics.IncWebhookEvent(eventType, "mismatch")
		return nil
	}

	completed, err := s.payments.TryComplete(ctx, payment.OrderID, canonical.PaymentKey, canonical.Method, time.Now())
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		return fmt.Errorf("complete payment: %w", err)
	}
	if !completed {
		// Платеж завершил конкурентный путь подтверждения
		s.metrics.IncWebhookEvent(eventType, "ignored")
		return nil
	}

	payment.Complete(canonical.PaymentKey, canonical.Method, time.Now())
	// Биллинговый ключ берется из канонического платежа: для месячного
	// цикла без него подписка активируется без автопродления
	if _, err := s.subs.ActivateFromPayment(ctx, s.payments, payment, canonical.BillingKey); err != nil &&
		!errors.Is(err, domain.ErrSubscriptionAlreadyExists) {
		s.metrics.IncWebhookEvent(eventType, "error")
		return err
	}

	s.metrics.IncPaymentCompleted("webhook")
	s.metrics.IncWebhookEvent(eventType, "processed")
	s.log.Infow("Payment completed via webhook", "orderId", payment.OrderID, "userId", payment.UserID)
	notify(ctx, s.notifier, s.log, payment.UserID, NotificationPaymentCompleted, map[string]string{
		"orderId": payment.OrderID,
		"plan":    string(payment.Plan),
	})
	return nil
}

// handleCanceled отменяет завершенный платеж и каскадом отменяет
// привязанную подписку. Отмена подтверждается у шлюза.
// Поиск идет по paymentKey: webhook отмены может прийти без контекста заказа.
func (s *WebhookService) handleCanceled(ctx context.Context, data *domain.WebhookData) error {
	eventType := string(domain.WebhookEventPaymentStatusChanged)

	payment, err := s.payments.GetByPaymentKey(ctx, data.PaymentKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Cancel webhook for unknown payment key, ignoring")
			s.metrics.IncWebhookEvent(eventType, "ignored")
			return nil
		}
		s.metrics.IncWebhookEvent(eventType, "error")
		return fmt.Errorf("load payment: %w", err)
	}
	if !payment.IsCompleted() {
		s.metrics.IncWebhookEvent(eventType, "ignored")
		return nil
	}

	canonical, err := s.gateway.GetPayment(ctx, data.PaymentKey)
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		return fmt.Errorf("fetch canonical payment: %w", err)
	}
	if !canonical.IsCanceled() || canonical.OrderID != payment.OrderID {
		s.log.Warnw("Cancel webhook does not match gateway state, ignoring",
			"orderId", payment.OrderID, "gatewayStatus", canonical.Status)
		s.metrics.IncWebhookEvent(eventType, "mismatch")
		return nil
	}

	reason := data.CancelReason
	if reason == "" {
		reason = "canceled by gateway"
	}
	if err := s.payments.Cancel(ctx, payment.OrderID, reason, time.Now()); err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		return fmt.Errorf("cancel payment: %w", err)
	}

	if payment.SubscriptionID != nil {
		if err := s.subs.Cancel(ctx, *payment.SubscriptionID, reason); err != nil &&
			!errors.Is(err, domain.ErrSubscriptionNotFound) {
			s.metrics.IncWebhookEvent(eventType, "error")
			return err
		}
	}

	s.metrics.IncPaymentCanceled()
	s.metrics.IncWebhookEvent(eventType, "processed")
	s.log.Infow("Payment canceled via webhook",
		"orderId", payment.OrderID, "userId", payment.UserID, "reason", reason)

	// Ровно одно уведомление на каскад отмены
	notify(ctx, s.notifier, s.log, payment.UserID, NotificationSubscriptionCanceled, map[string]string{
		"orderId": payment.OrderID,
		"reason":  reason,
	})
	return nil
}

// handleFailed переводит незавершенный платеж в FAILED (ABORTED / EXPIRED)
func (s *WebhookService) handleFailed(ctx context.Context, data *domain.WebhookData) error {
	eventType := string(domain.WebhookEventPaymentStatusChanged)

	payment, err := s.payments.GetByOrderID(ctx, data.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.IncWebhookEvent(eventType, "ignored")
			return nil
		}
		s.metrics.IncWebhookEvent(eventType, "error")
		return fmt.Errorf("load payment: %w", err)
	}
	if !payment.IsPending() {
		s.metrics.IncWebhookEvent(eventType, "ignored")
		return nil
	}

	if err := s.payments.Fail(ctx, payment.OrderID, "payment "+data.Status); err != nil {
		s.metrics.IncWebhookEvent(eventType, "error")
		return fmt.Errorf("fail payment: %w", err)
	}

	s.metrics.IncPaymentFailed("webhook")
	s.metrics.IncWebhookEvent(eventType, "processed")
	s.log.Infow("Payment failed via webhook",
		"orderId", payment.OrderID, "status", data.Status)
	notify(ctx, s.notifier, s.log, payment.UserID, NotificationPaymentFailed, map[string]string{
		"orderId": payment.OrderID,
	})
	return nil
}

// handleBillingKeyDeleted отключает автопродление подписки с удаленным
// биллинговым ключом. Подписка остается активной до конца периода.
func (s *WebhookService) handleBillingKeyDeleted(ctx context.Context, data *domain.WebhookData) error {
	eventType := string(domain.WebhookEventBillingKeyDeleted)

	err := s.subs.ClearBillingKey(ctx, data.BillingKey)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			s.log.Warnw("Billing key deletion for unknown key, ignoring")
			s.metrics.IncWebhookEvent(eventType, "ignored")
			return nil
		}
		s.metrics.IncWebhookEvent(eventType, "error")
		return err
	}

	s.metrics.IncWebhookEvent(eventType, "processed")
	return nil
}
