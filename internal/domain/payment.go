package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus статус платежа
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCanceled  PaymentStatus = "canceled"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentType тип платежа
type PaymentType string

const (
	PaymentTypeInitial PaymentType = "initial"
	PaymentTypeRenewal PaymentType = "renewal"
)

// Payment представляет собой одну попытку оплаты заказа.
// Статус меняется строго по схеме pending -> completed -> canceled
// либо pending -> failed; любые другие переходы отбрасываются.
type Payment struct {
	ID             uuid.UUID        `json:"id"`
	UserID         uuid.UUID        `json:"user_id"`
	SubscriptionID *uuid.UUID       `json:"subscription_id,omitempty"`
	OrderID        string           `json:"order_id"`
	PaymentKey     string           `json:"payment_key,omitempty"`
	Amount         int64            `json:"amount"`
	Plan           SubscriptionPlan `json:"plan"`
	BillingCycle   BillingCycle     `json:"billing_cycle"`
	CustomerKey    string           `json:"customer_key"`
	Method         string           `json:"method,omitempty"`
	Status         PaymentStatus    `json:"status"`
	Type           PaymentType      `json:"type"`
	PaidAt         *time.Time       `json:"paid_at,omitempty"`
	CanceledAt     *time.Time       `json:"canceled_at,omitempty"`
	CancelReason   string           `json:"cancel_reason,omitempty"`
	FailReason     string           `json:"fail_reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IsPending проверяет, что платеж еще не обработан
func (p Payment) IsPending() bool {
	return p.Status == PaymentStatusPending
}

// IsCompleted проверяет, что платеж завершен успешно
func (p Payment) IsCompleted() bool {
	return p.Status == PaymentStatusCompleted
}

// Complete переводит платеж в состояние completed
func (p *Payment) Complete(paymentKey, method string, paidAt time.Time) {
	p.PaymentKey = paymentKey
	p.Method = method
	p.PaidAt = &paidAt
	p.Status = PaymentStatusCompleted
}

// NewOrderID генерирует новый идентификатор заказа
func NewOrderID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORDER_" + strings.ToUpper(raw[:16])
}

// NewCustomerKey генерирует новый ключ клиента для платежного шлюза
func NewCustomerKey() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CK_" + strings.ToUpper(raw[:20])
}

// CheckoutRequest запрос на открытие заказа
type CheckoutRequest struct {
	Plan         string `json:"plan" binding:"required"`
	BillingCycle string `json:"billingCycle" binding:"required"`
}

// CheckoutResponse описание открытого заказа
type CheckoutResponse struct {
	OrderID     string `json:"orderId"`
	CustomerKey string `json:"customerKey"`
	Amount      int64  `json:"amount"`
	OrderName   string `json:"orderName"`
}

// ConfirmPaymentRequest запрос на подтверждение разового (годового) платежа
type ConfirmPaymentRequest struct {
	OrderID    string `json:"orderId" binding:"required"`
	PaymentKey string `json:"paymentKey" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,gt=0"`
}

// ConfirmBillingRequest запрос на подтверждение рекуррентного (месячного) платежа
type ConfirmBillingRequest struct {
	OrderID     string `json:"orderId" binding:"required"`
	AuthKey     string `json:"authKey" binding:"required"`
	CustomerKey string `json:"customerKey" binding:"required"`
}
