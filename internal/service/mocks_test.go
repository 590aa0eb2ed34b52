package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/Dhoini/Billing-microservice/internal/integration/toss"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// Метрики регистрируются в глобальном реестре prometheus,
// поэтому на процесс тестов создается один экземпляр
var testMetrics = metrics.NewBillingMetrics()

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ConfirmPayment(ctx context.Context, paymentKey, orderID string, amount int64) (*toss.PaymentResponse, error) {
	args := m.Called(ctx, paymentKey, orderID, amount)
	if resp := args.Get(0); resp != nil {
		return resp.(*toss.PaymentResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) IssueBillingKey(ctx context.Context, authKey, customerKey string) (*toss.BillingKeyResponse, error) {
	args := m.Called(ctx, authKey, customerKey)
	if resp := args.Get(0); resp != nil {
		return resp.(*toss.BillingKeyResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) ChargeBillingKey(ctx context.Context, billingKey, customerKey, orderID, orderName string, amount int64) (*toss.PaymentResponse, error) {
	args := m.Called(ctx, billingKey, customerKey, orderID, orderName, amount)
	if resp := args.Get(0); resp != nil {
		return resp.(*toss.PaymentResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) GetPayment(ctx context.Context, paymentKey string) (*toss.PaymentResponse, error) {
	args := m.Called(ctx, paymentKey)
	if resp := args.Get(0); resp != nil {
		return resp.(*toss.PaymentResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) CancelPayment(ctx context.Context, paymentKey, reason string) (*toss.PaymentResponse, error) {
	args := m.Called(ctx, paymentKey, reason)
	if resp := args.Get(0); resp != nil {
		return resp.(*toss.PaymentResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

// sentNotification отправленное уведомление
type sentNotification struct {
	UserID  uuid.UUID
	Type    string
	Payload map[string]string
}

// recordingNotifier накапливает уведомления для проверок
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Send(ctx context.Context, userID uuid.UUID, notificationType string, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Type: notificationType, Payload: payload})
	return nil
}

func (n *recordingNotifier) byType(notificationType string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []sentNotification
	for _, s := range n.sent {
		if s.Type == notificationType {
			out = append(out, s)
		}
	}
	return out
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// fakeLocker блокировка для тестов воркера
type fakeLocker struct {
	available bool
	acquired  int
}

func (l *fakeLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	if !l.available {
		return nil, false, nil
	}
	l.acquired++
	return func() {}, true, nil
}

func futureDate() time.Time {
	return time.Now().AddDate(0, 1, 0)
}

// testEnv собранный на in-memory репозиториях набор сервисов
type testEnv struct {
	payments *repository.InMemoryPaymentRepository
	subs     *repository.InMemorySubscriptionRepository
	gateway  *mockGateway
	notifier *recordingNotifier

	paymentSvc *PaymentService
	subSvc     *SubscriptionService
	webhookSvc *WebhookService
}

func newTestEnv() *testEnv {
	log := logger.New(logger.ERROR)
	payments := repository.NewInMemoryPaymentRepository(log)
	subs := repository.NewInMemorySubscriptionRepository(log)
	gateway := &mockGateway{}
	notifier := &recordingNotifier{}

	subSvc := NewSubscriptionService(subs, payments, gateway, notifier, testMetrics, log)
	return &testEnv{
		payments:   payments,
		subs:       subs,
		gateway:    gateway,
		notifier:   notifier,
		paymentSvc: NewPaymentService(payments, subSvc, gateway, notifier, testMetrics, log),
		subSvc:     subSvc,
		webhookSvc: NewWebhookService(payments, subSvc, gateway, notifier, testMetrics, log),
	}
}
