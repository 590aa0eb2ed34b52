package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// Subscription представляет собой модель подписки.
// На одного пользователя приходится не более одной активной подписки.
type Subscription struct {
	ID           uuid.UUID          `json:"id"`
	UserID       uuid.UUID          `json:"user_id"`
	Plan         SubscriptionPlan   `json:"plan"`
	Status       SubscriptionStatus `json:"status"`
	BillingCycle BillingCycle       `json:"billing_cycle"`
	StartDate    time.Time          `json:"start_date"`
	EndDate      time.Time          `json:"end_date"`
	CustomerKey  string             `json:"customer_key"`
	BillingKey   string             `json:"billing_key,omitempty"`
	AutoRenewal  bool               `json:"auto_renewal"`
	CancelReason string             `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// IsActive проверяет, что подписка активна и не истекла
func (s Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive && s.EndDate.After(time.Now())
}

// IsExpired проверяет, что срок подписки истек
func (s Subscription) IsExpired(now time.Time) bool {
	return s.EndDate.Before(now)
}

// SubscriptionEndDate вычисляет дату окончания подписки для периода оплаты
func SubscriptionEndDate(start time.Time, cycle BillingCycle) time.Time {
	return start.AddDate(0, cycle.Months(), 0)
}

// CancelSubscriptionRequest запрос на отмену подписки пользователем
type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}
