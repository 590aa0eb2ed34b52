package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// Типы уведомлений, публикуемых в топик уведомлений
const (
	NotificationPaymentCompleted     = "PAYMENT_COMPLETED"
	NotificationPaymentFailed        = "PAYMENT_FAILED"
	NotificationSubscriptionCanceled = "SUBSCRIPTION_CANCELED"
	NotificationSubscriptionRenewed  = "SUBSCRIPTION_RENEWED"
	NotificationRenewalFailed        = "SUBSCRIPTION_RENEWAL_FAILED"
	NotificationSubscriptionExpiring = "SUBSCRIPTION_EXPIRING"
	NotificationSubscriptionExpired  = "SUBSCRIPTION_EXPIRED"
	NotificationAutoRenewalDisabled  = "AUTO_RENEWAL_DISABLED"
)

// NotificationSink приемник уведомлений пользователю
type NotificationSink interface {
	Send(ctx context.Context, userID uuid.UUID, notificationType string, payload map[string]string) error
}

// notify отправляет уведомление best-effort: ошибка доставки логируется,
// но не прерывает платежный цикл
func notify(ctx context.Context, sink NotificationSink, log *logger.Logger, userID uuid.UUID, notificationType string, payload map[string]string) {
	if sink == nil {
		return
	}
	if err := sink.Send(ctx, userID, notificationType, payload); err != nil {
		log.Warnw("Failed to deliver notification",
			"userId", userID, "type", notificationType, "error", err)
	}
}
