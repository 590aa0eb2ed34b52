package service

import (
	"context"

	"github.com/Dhoini/Billing-microservice/internal/integration/toss"
)

// PaymentGateway операции платежного шлюза, используемые сервисами
type PaymentGateway interface {
	// ConfirmPayment подтверждает разовый платеж
	ConfirmPayment(ctx context.Context, paymentKey, orderID string, amount int64) (*toss.PaymentResponse, error)

	// IssueBillingKey обменивает authKey на биллинговый ключ
	IssueBillingKey(ctx context.Context, authKey, customerKey string) (*toss.BillingKeyResponse, error)

	// ChargeBillingKey списывает средства по биллинговому ключу
	ChargeBillingKey(ctx context.Context, billingKey, customerKey, orderID, orderName string, amount int64) (*toss.PaymentResponse, error)

	// GetPayment возвращает каноническое состояние платежа у шлюза
	GetPayment(ctx context.Context, paymentKey string) (*toss.PaymentResponse, error)

	// CancelPayment отменяет подтвержденный платеж
	CancelPayment(ctx context.Context, paymentKey, reason string) (*toss.PaymentResponse, error)
}
