package domain

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewOrderID(t *testing.T) {
	pattern := regexp.MustCompile(`^ORDER_[0-9A-F]{16}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewOrderID()
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id], "order id must be unique: %s", id)
		seen[id] = true
	}
}

func TestNewCustomerKey(t *testing.T) {
	pattern := regexp.MustCompile(`^CK_[0-9A-F]{20}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := NewCustomerKey()
		assert.Regexp(t, pattern, key)
		assert.False(t, seen[key], "customer key must be unique: %s", key)
		seen[key] = true
	}
}

func TestPaymentComplete(t *testing.T) {
	p := Payment{Status: PaymentStatusPending}
	paidAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p.Complete("pk_123", "CARD", paidAt)

	assert.Equal(t, PaymentStatusCompleted, p.Status)
	assert.Equal(t, "pk_123", p.PaymentKey)
	assert.Equal(t, "CARD", p.Method)
	assert.NotNil(t, p.PaidAt)
	assert.Equal(t, paidAt, *p.PaidAt)
	assert.True(t, p.IsCompleted())
	assert.False(t, p.IsPending())
}

func TestSubscriptionIsActive(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)

	tests := []struct {
		name   string
		sub    Subscription
		active bool
	}{
		{name: "active not expired", sub: Subscription{Status: SubscriptionStatusActive, EndDate: future}, active: true},
		{name: "active but past end date", sub: Subscription{Status: SubscriptionStatusActive, EndDate: past}, active: false},
		{name: "canceled", sub: Subscription{Status: SubscriptionStatusCanceled, EndDate: future}, active: false},
		{name: "expired", sub: Subscription{Status: SubscriptionStatusExpired, EndDate: past}, active: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, tt.sub.IsActive())
		})
	}
}
