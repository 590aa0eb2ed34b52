package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/integration/toss"
)

func TestCheckout(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "MONTHLY",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(9900), resp.Amount, "server computes the amount from the plan")
	assert.True(t, strings.HasPrefix(resp.OrderID, "ORDER_"))
	assert.True(t, strings.HasPrefix(resp.CustomerKey, "CK_"))
	assert.Equal(t, "Pro monthly subscription", resp.OrderName)

	payment, err := env.payments.GetByOrderID(ctx, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	assert.Equal(t, domain.PaymentTypeInitial, payment.Type)
}

func TestCheckoutYearlyPrice(t *testing.T) {
	env := newTestEnv()

	resp, err := env.paymentSvc.Checkout(context.Background(), uuid.New(), domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "YEARLY",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99000), resp.Amount)
}

func TestCheckoutRejections(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	tests := []struct {
		name    string
		req     domain.CheckoutRequest
		wantErr error
	}{
		{name: "free plan", req: domain.CheckoutRequest{Plan: "FREE", BillingCycle: "MONTHLY"}, wantErr: domain.ErrFreePlanNotPurchasable},
		{name: "unknown plan", req: domain.CheckoutRequest{Plan: "ULTRA", BillingCycle: "MONTHLY"}, wantErr: domain.ErrInvalidPlan},
		{name: "unknown cycle", req: domain.CheckoutRequest{Plan: "PRO", BillingCycle: "WEEKLY"}, wantErr: domain.ErrInvalidBillingCycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.paymentSvc.Checkout(ctx, uuid.New(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckoutRejectedWithActiveSubscription(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	_, err := env.subs.Create(ctx, domain.Subscription{
		UserID:       userID,
		Plan:         domain.PlanPro,
		Status:       domain.SubscriptionStatusActive,
		BillingCycle: domain.BillingCycleMonthly,
		EndDate:      futureDate(),
		CustomerKey:  domain.NewCustomerKey(),
	})
	require.NoError(t, err)

	_, err = env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "MONTHLY",
	})
	assert.ErrorIs(t, err, domain.ErrSubscriptionAlreadyExists)
}

func TestConfirmPaymentSuccess(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "YEARLY",
	})
	require.NoError(t, err)

	env.gateway.On("ConfirmPayment", mock.Anything, "pk_yearly", resp.OrderID, int64(99000)).
		Return(&toss.PaymentResponse{
			PaymentKey: "pk_yearly", OrderID: resp.OrderID,
			Status: "DONE", TotalAmount: 99000, Method: "CARD",
		}, nil)

	sub, err := env.paymentSvc.ConfirmPayment(ctx, userID, domain.ConfirmPaymentRequest{
		OrderID: resp.OrderID, PaymentKey: "pk_yearly", Amount: 99000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, domain.PlanPro, sub.Plan)
	assert.Equal(t, domain.BillingCycleYearly, sub.BillingCycle)
	assert.False(t, sub.AutoRenewal, "direct confirmation issues no billing key")

	stored, err := env.payments.GetByOrderID(ctx, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.SubscriptionID)
	assert.Equal(t, sub.ID, *stored.SubscriptionID)

	assert.Len(t, env.notifier.byType(NotificationPaymentCompleted), 1)
	env.gateway.AssertExpectations(t)
}

func TestConfirmPaymentAmountMismatchBeforeGateway(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "YEARLY",
	})
	require.NoError(t, err)

	_, err = env.paymentSvc.ConfirmPayment(ctx, userID, domain.ConfirmPaymentRequest{
		OrderID: resp.OrderID, PaymentKey: "pk_yearly", Amount: 1000,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentAmountMismatch)

	// Шлюз не вызывался, платеж остался PENDING
	env.gateway.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	payment, _ := env.payments.GetByOrderID(ctx, resp.OrderID)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
}

func TestConfirmPaymentChecks(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := uuid.New()

	yearly, err := env.paymentSvc.Checkout(ctx, owner, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "YEARLY",
	})
	require.NoError(t, err)

	// Чужой заказ выглядит несуществующим
	_, err = env.paymentSvc.ConfirmPayment(ctx, uuid.New(), domain.ConfirmPaymentRequest{
		OrderID: yearly.OrderID, PaymentKey: "pk", Amount: 99000,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	// Неизвестный заказ
	_, err = env.paymentSvc.ConfirmPayment(ctx, owner, domain.ConfirmPaymentRequest{
		OrderID: "ORDER_0000000000000000", PaymentKey: "pk", Amount: 99000,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	// Месячный цикл не подтверждается разовым платежом
	monthlyOwner := uuid.New()
	monthly, err := env.paymentSvc.Checkout(ctx, monthlyOwner, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "MONTHLY",
	})
	require.NoError(t, err)

	_, err = env.paymentSvc.ConfirmPayment(ctx, monthlyOwner, domain.ConfirmPaymentRequest{
		OrderID: monthly.OrderID, PaymentKey: "pk", Amount: 9900,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentNotSupportedForCycle)

	env.gateway.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmPaymentIdempotentRepeat(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "YEARLY",
	})
	require.NoError(t, err)

	env.gateway.On("ConfirmPayment", mock.Anything, "pk_once", resp.OrderID, int64(99000)).
		Return(&toss.PaymentResponse{
			PaymentKey: "pk_once", OrderID: resp.OrderID,
			Status: "DONE", TotalAmount: 99000, Method: "CARD",
		}, nil).Once()

	first, err := env.paymentSvc.ConfirmPayment(ctx, userID, domain.ConfirmPaymentRequest{
		OrderID: resp.OrderID, PaymentKey: "pk_once", Amount: 99000,
	})
	require.NoError(t, err)

	// Повтор возвращает действующую подписку без обращения к шлюзу
	repeat, err := env.paymentSvc.ConfirmPayment(ctx, userID, domain.ConfirmPaymentRequest{
		OrderID: resp.OrderID, PaymentKey: "pk_once", Amount: 99000,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, repeat.ID)
	assert.Equal(t, domain.SubscriptionStatusActive, repeat.Status)

	env.gateway.AssertNumberOfCalls(t, "ConfirmPayment", 1)
	assert.Len(t, env.notifier.byType(NotificationPaymentCompleted), 1, "no duplicate notification on repeat")
}

func TestConfirmPaymentGatewayFailureStaysPending(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "YEARLY",
	})
	require.NoError(t, err)

	env.gateway.On("ConfirmPayment", mock.Anything, "pk_flaky", resp.OrderID, int64(99000)).
		Return(nil, domain.ErrPaymentConfirmationFailed).Once()

	_, err = env.paymentSvc.ConfirmPayment(ctx, userID, domain.ConfirmPaymentRequest{
		OrderID: resp.OrderID, PaymentKey: "pk_flaky", Amount: 99000,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentConfirmationFailed)

	// Ошибка шлюза не терминальна: платеж остается PENDING
	payment, _ := env.payments.GetByOrderID(ctx, resp.OrderID)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	assert.Zero(t, env.notifier.count())

	_, err = env.subSvc.GetActiveByUser(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)

	// Повторное подтверждение проходит тот же идемпотентный путь
	env.gateway.On("ConfirmPayment", mock.Anything, "pk_flaky", resp.OrderID, int64(99000)).
		Return(&toss.PaymentResponse{
			PaymentKey: "pk_flaky", OrderID: resp.OrderID,
			Status: "DONE", TotalAmount: 99000, Method: "CARD",
		}, nil).Once()

	sub, err := env.paymentSvc.ConfirmPayment(ctx, userID, domain.ConfirmPaymentRequest{
		OrderID: resp.OrderID, PaymentKey: "pk_flaky", Amount: 99000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)

	payment, _ = env.payments.GetByOrderID(ctx, resp.OrderID)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)
}

func TestConfirmPaymentCompletedWithoutSubscription(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "YEARLY",
	})
	require.NoError(t, err)

	// Платеж завершен webhook-путем, но подписки еще нет
	completed, err := env.payments.TryComplete(ctx, resp.OrderID, "pk_hook", "CARD", time.Now())
	require.NoError(t, err)
	require.True(t, completed)

	_, err = env.paymentSvc.ConfirmPayment(ctx, userID, domain.ConfirmPaymentRequest{
		OrderID: resp.OrderID, PaymentKey: "pk_hook", Amount: 99000,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentAlreadyProcessed)
}

func TestConfirmBillingSuccess(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "MONTHLY",
	})
	require.NoError(t, err)

	env.gateway.On("IssueBillingKey", mock.Anything, "auth_key", resp.CustomerKey).
		Return(&toss.BillingKeyResponse{BillingKey: "bk_new", CustomerKey: resp.CustomerKey}, nil)
	env.gateway.On("ChargeBillingKey", mock.Anything, "bk_new", resp.CustomerKey, resp.OrderID, "Pro monthly subscription", int64(9900)).
		Return(&toss.PaymentResponse{
			PaymentKey: "pk_monthly", OrderID: resp.OrderID,
			Status: "DONE", TotalAmount: 9900, Method: "BILLING",
		}, nil)

	sub, err := env.paymentSvc.ConfirmBilling(ctx, userID, domain.ConfirmBillingRequest{
		OrderID: resp.OrderID, AuthKey: "auth_key", CustomerKey: resp.CustomerKey,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "bk_new", sub.BillingKey)
	assert.True(t, sub.AutoRenewal, "billing confirmation enables auto renewal")
	assert.Equal(t, domain.BillingCycleMonthly, sub.BillingCycle)

	payment, err := env.payments.GetByOrderID(ctx, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)

	env.gateway.AssertExpectations(t)
}

func TestConfirmBillingCustomerKeyMismatch(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "MONTHLY",
	})
	require.NoError(t, err)

	_, err = env.paymentSvc.ConfirmBilling(ctx, userID, domain.ConfirmBillingRequest{
		OrderID: resp.OrderID, AuthKey: "auth_key", CustomerKey: "CK_SOMEONEELSE0000000",
	})
	assert.ErrorIs(t, err, domain.ErrPaymentCustomerKeyMismatch)

	env.gateway.AssertNotCalled(t, "IssueBillingKey", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmBillingWrongCycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "YEARLY",
	})
	require.NoError(t, err)

	_, err = env.paymentSvc.ConfirmBilling(ctx, userID, domain.ConfirmBillingRequest{
		OrderID: resp.OrderID, AuthKey: "auth_key", CustomerKey: resp.CustomerKey,
	})
	assert.ErrorIs(t, err, domain.ErrBillingNotSupportedForCycle)
}

func TestConfirmBillingIdempotentRepeat(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "MONTHLY",
	})
	require.NoError(t, err)

	env.gateway.On("IssueBillingKey", mock.Anything, "auth_key", resp.CustomerKey).
		Return(&toss.BillingKeyResponse{BillingKey: "bk_1", CustomerKey: resp.CustomerKey}, nil).Once()
	env.gateway.On("ChargeBillingKey", mock.Anything, "bk_1", resp.CustomerKey, resp.OrderID, "Pro monthly subscription", int64(9900)).
		Return(&toss.PaymentResponse{
			PaymentKey: "pk_1", OrderID: resp.OrderID,
			Status: "DONE", TotalAmount: 9900, Method: "BILLING",
		}, nil).Once()

	_, err = env.paymentSvc.ConfirmBilling(ctx, userID, domain.ConfirmBillingRequest{
		OrderID: resp.OrderID, AuthKey: "auth_key", CustomerKey: resp.CustomerKey,
	})
	require.NoError(t, err)

	// Повторное подтверждение не списывает деньги второй раз
	sub, err := env.paymentSvc.ConfirmBilling(ctx, userID, domain.ConfirmBillingRequest{
		OrderID: resp.OrderID, AuthKey: "auth_key", CustomerKey: resp.CustomerKey,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "bk_1", sub.BillingKey)

	env.gateway.AssertNumberOfCalls(t, "IssueBillingKey", 1)
	env.gateway.AssertNumberOfCalls(t, "ChargeBillingKey", 1)
}

func TestConfirmBillingChargeFailureStaysPending(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "MONTHLY",
	})
	require.NoError(t, err)

	env.gateway.On("IssueBillingKey", mock.Anything, "auth_key", resp.CustomerKey).
		Return(&toss.BillingKeyResponse{BillingKey: "bk_1", CustomerKey: resp.CustomerKey}, nil)
	env.gateway.On("ChargeBillingKey", mock.Anything, "bk_1", resp.CustomerKey, resp.OrderID, "Pro monthly subscription", int64(9900)).
		Return(nil, domain.ErrBillingChargeFailed)

	_, err = env.paymentSvc.ConfirmBilling(ctx, userID, domain.ConfirmBillingRequest{
		OrderID: resp.OrderID, AuthKey: "auth_key", CustomerKey: resp.CustomerKey,
	})
	assert.ErrorIs(t, err, domain.ErrBillingChargeFailed)

	payment, _ := env.payments.GetByOrderID(ctx, resp.OrderID)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	assert.Empty(t, env.notifier.byType(NotificationPaymentFailed))
}

func TestConfirmBillingLostResponseRecoveredByWebhook(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := env.paymentSvc.Checkout(ctx, userID, domain.CheckoutRequest{
		Plan: "PRO", BillingCycle: "MONTHLY",
	})
	require.NoError(t, err)

	// Списание прошло на стороне шлюза, но ответ до сервиса не дошел
	env.gateway.On("IssueBillingKey", mock.Anything, "auth_key", resp.CustomerKey).
		Return(&toss.BillingKeyResponse{BillingKey: "bk_lost", CustomerKey: resp.CustomerKey}, nil)
	env.gateway.On("ChargeBillingKey", mock.Anything, "bk_lost", resp.CustomerKey, resp.OrderID, "Pro monthly subscription", int64(9900)).
		Return(nil, domain.ErrBillingChargeFailed)

	_, err = env.paymentSvc.ConfirmBilling(ctx, userID, domain.ConfirmBillingRequest{
		OrderID: resp.OrderID, AuthKey: "auth_key", CustomerKey: resp.CustomerKey,
	})
	require.ErrorIs(t, err, domain.ErrBillingChargeFailed)

	payment, _ := env.payments.GetByOrderID(ctx, resp.OrderID)
	require.Equal(t, domain.PaymentStatusPending, payment.Status)

	// DONE-webhook о фактически успешном списании завершает платеж
	env.gateway.On("GetPayment", mock.Anything, "pk_lost").
		Return(&toss.PaymentResponse{
			PaymentKey: "pk_lost", OrderID: resp.OrderID,
			Status: "DONE", TotalAmount: 9900, Method: "BILLING",
		}, nil)

	err = env.webhookSvc.ProcessWebhook(ctx, statusChangedPayload(resp.OrderID, "pk_lost", "DONE"))
	require.NoError(t, err)

	payment, _ = env.payments.GetByOrderID(ctx, resp.OrderID)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)

	sub, err := env.subSvc.GetActiveByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPro, sub.Plan)
}

func TestGetPaymentHistoryLimits(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := uuid.New()

	payments, err := env.paymentSvc.GetPaymentHistory(ctx, userID, -5, -1)
	require.NoError(t, err)
	assert.Empty(t, payments)
}
