package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionPlanPrice(t *testing.T) {
	tests := []struct {
		name     string
		plan     SubscriptionPlan
		cycle    BillingCycle
		expected int64
	}{
		{name: "pro monthly", plan: PlanPro, cycle: BillingCycleMonthly, expected: 9900},
		{name: "pro yearly", plan: PlanPro, cycle: BillingCycleYearly, expected: 99000},
		{name: "free monthly", plan: PlanFree, cycle: BillingCycleMonthly, expected: 0},
		{name: "free yearly", plan: PlanFree, cycle: BillingCycleYearly, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.plan.Price(tt.cycle))
		})
	}
}

func TestParseSubscriptionPlan(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    SubscriptionPlan
		wantErr error
	}{
		{name: "pro", input: "PRO", want: PlanPro},
		{name: "pro lowercase", input: "pro", want: PlanPro},
		{name: "free", input: "FREE", want: PlanFree},
		{name: "unknown", input: "ENTERPRISE", wantErr: ErrInvalidPlan},
		{name: "empty", input: "", wantErr: ErrInvalidPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubscriptionPlan(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBillingCycle(t *testing.T) {
	got, err := ParseBillingCycle("monthly")
	require.NoError(t, err)
	assert.Equal(t, BillingCycleMonthly, got)

	got, err = ParseBillingCycle("YEARLY")
	require.NoError(t, err)
	assert.Equal(t, BillingCycleYearly, got)

	_, err = ParseBillingCycle("weekly")
	assert.ErrorIs(t, err, ErrInvalidBillingCycle)
}

func TestPurchasable(t *testing.T) {
	assert.True(t, PlanPro.Purchasable())
	assert.False(t, PlanFree.Purchasable())
}

func TestOrderName(t *testing.T) {
	assert.Equal(t, "Pro monthly subscription", OrderName(PlanPro, BillingCycleMonthly))
	assert.Equal(t, "Pro yearly subscription", OrderName(PlanPro, BillingCycleYearly))
}

func TestSubscriptionEndDate(t *testing.T) {
	start := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC),
		SubscriptionEndDate(start, BillingCycleMonthly))
	assert.Equal(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
		SubscriptionEndDate(start, BillingCycleYearly))
}
