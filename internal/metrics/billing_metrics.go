package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BillingMetrics метрики платежного цикла
type BillingMetrics struct {
	checkoutsTotal    *prometheus.CounterVec
	paymentsCompleted *prometheus.CounterVec
	paymentsFailed    *prometheus.CounterVec
	paymentsCanceled  prometheus.Counter
	webhookEvents     *prometheus.CounterVec
	renewalsTotal     *prometheus.CounterVec
	gatewayDuration   *prometheus.HistogramVec
	activeSubsGauge   prometheus.Gauge
}

// NewBillingMetrics регистрирует и возвращает метрики платежного цикла
func NewBillingMetrics() *BillingMetrics {
	return &BillingMetrics{
		checkoutsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_checkouts_total",
			Help: "Number of checkout sessions created",
		}, []string{"plan", "cycle"}),

		paymentsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_payments_completed_total",
			Help: "Number of payments transitioned to completed",
		}, []string{"source"}),

		paymentsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_payments_failed_total",
			Help: "Number of payments transitioned to failed",
		}, []string{"source"}),

		paymentsCanceled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "billing_payments_canceled_total",
			Help: "Number of payments transitioned to canceled",
		}),

		webhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Number of processed webhook events",
		}, []string{"event_type", "outcome"}),

		renewalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_renewals_total",
			Help: "Number of subscription renewal attempts",
		}, []string{"outcome"}),

		gatewayDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billing_gateway_request_duration_seconds",
			Help:    "Duration of payment gateway requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		activeSubsGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "billing_active_subscriptions",
			Help: "Number of currently active subscriptions",
		}),
	}
}

// IncCheckout учитывает созданную сессию оплаты
func (m *BillingMetrics) IncCheckout(plan, cycle string) {
	m.checkoutsTotal.WithLabelValues(plan, cycle).Inc()
}

// IncPaymentCompleted учитывает завершенный платеж.
// source: confirm | billing | webhook | renewal
func (m *BillingMetrics) IncPaymentCompleted(source string) {
	m.paymentsCompleted.WithLabelValues(source).Inc()
}

// IncPaymentFailed учитывает неуспешный платеж
func (m *BillingMetrics) IncPaymentFailed(source string) {
	m.paymentsFailed.WithLabelValues(source).Inc()
}

// IncPaymentCanceled учитывает отмененный платеж
func (m *BillingMetrics) IncPaymentCanceled() {
	m.paymentsCanceled.Inc()
}

// IncWebhookEvent учитывает обработанное webhook-событие.
// outcome: processed | ignored | mismatch | error
func (m *BillingMetrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// IncRenewal учитывает попытку продления подписки
func (m *BillingMetrics) IncRenewal(outcome string) {
	m.renewalsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGatewayDuration учитывает длительность запроса к шлюзу
func (m *BillingMetrics) ObserveGatewayDuration(operation string, d time.Duration) {
	m.gatewayDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetActiveSubscriptions обновляет счетчик активных подписок
func (m *BillingMetrics) SetActiveSubscriptions(n float64) {
	m.activeSubsGauge.Set(n)
}
