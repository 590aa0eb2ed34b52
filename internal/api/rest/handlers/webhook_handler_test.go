package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/integration/toss"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/internal/service"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

var testMetrics = metrics.NewBillingMetrics()

type stubVerifier struct {
	valid bool
}

func (v *stubVerifier) VerifyWebhookSignature(body []byte, signature string) bool {
	return v.valid
}

// stubGateway шлюз для тестов обработчика: данные не сверяются
type stubGateway struct {
	payment *toss.PaymentResponse
	err     error
}

func (g *stubGateway) ConfirmPayment(ctx context.Context, paymentKey, orderID string, amount int64) (*toss.PaymentResponse, error) {
	return nil, errors.New("not implemented")
}

func (g *stubGateway) IssueBillingKey(ctx context.Context, authKey, customerKey string) (*toss.BillingKeyResponse, error) {
	return nil, errors.New("not implemented")
}

func (g *stubGateway) ChargeBillingKey(ctx context.Context, billingKey, customerKey, orderID, orderName string, amount int64) (*toss.PaymentResponse, error) {
	return nil, errors.New("not implemented")
}

func (g *stubGateway) GetPayment(ctx context.Context, paymentKey string) (*toss.PaymentResponse, error) {
	return g.payment, g.err
}

func (g *stubGateway) CancelPayment(ctx context.Context, paymentKey, reason string) (*toss.PaymentResponse, error) {
	return nil, errors.New("not implemented")
}

func newWebhookRouter(t *testing.T, verifier SignatureVerifier, gateway service.PaymentGateway) (*gin.Engine, *repository.InMemoryPaymentRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.New(logger.ERROR)
	payments := repository.NewInMemoryPaymentRepository(log)
	subs := repository.NewInMemorySubscriptionRepository(log)

	subSvc := service.NewSubscriptionService(subs, payments, gateway, nil, testMetrics, log)
	webhookSvc := service.NewWebhookService(payments, subSvc, gateway, nil, testMetrics, log)

	router := gin.New()
	router.POST("/api/v1/webhooks/toss", NewWebhookHandler(webhookSvc, verifier, log).Handle)
	return router, payments
}

func postWebhook(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/toss", bytes.NewBufferString(body))
	req.Header.Set("Toss-Signature", "sig")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookInvalidSignature(t *testing.T) {
	router, _ := newWebhookRouter(t, &stubVerifier{valid: false}, &stubGateway{})

	w := postWebhook(router, `{"eventType":"PAYMENT_STATUS_CHANGED"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookMalformedBody(t *testing.T) {
	router, _ := newWebhookRouter(t, &stubVerifier{valid: true}, &stubGateway{})

	w := postWebhook(router, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookAlwaysRespondsOK(t *testing.T) {
	router, _ := newWebhookRouter(t, &stubVerifier{valid: true}, &stubGateway{})

	// Неизвестное событие
	w := postWebhook(router, `{"eventType":"SOMETHING_ELSE"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	// Неизвестный заказ
	w = postWebhook(router, `{"eventType":"PAYMENT_STATUS_CHANGED","data":{"orderId":"ORDER_0000000000000000","paymentKey":"pk","status":"DONE"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookOKEvenWhenProcessingFails(t *testing.T) {
	gateway := &stubGateway{err: errors.New("gateway unavailable")}
	router, payments := newWebhookRouter(t, &stubVerifier{valid: true}, gateway)

	p := domain.Payment{
		UserID:       uuid.New(),
		OrderID:      "ORDER_AAAA000000000000",
		Amount:       99000,
		Plan:         domain.PlanPro,
		BillingCycle: domain.BillingCycleYearly,
		CustomerKey:  "CK_TEST00000000000000",
		Status:       domain.PaymentStatusPending,
		Type:         domain.PaymentTypeInitial,
	}
	_, err := payments.Create(context.Background(), p)
	require.NoError(t, err)

	w := postWebhook(router, `{"eventType":"PAYMENT_STATUS_CHANGED","data":{"orderId":"ORDER_AAAA000000000000","paymentKey":"pk_x","status":"DONE"}}`)
	assert.Equal(t, http.StatusOK, w.Code, "gateway errors must not surface to the sender")

	got, err := payments.GetByOrderID(context.Background(), p.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, got.Status)
}
