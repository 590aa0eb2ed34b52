package domain

// WebhookEventType тип события вебхука платежного шлюза
type WebhookEventType string

const (
	WebhookEventPaymentStatusChanged WebhookEventType = "PAYMENT_STATUS_CHANGED"
	WebhookEventBillingKeyDeleted    WebhookEventType = "BILLING_KEY_DELETED"

	// WebhookEventUnknown тип, который это ядро не моделирует.
	// Такие события принимаются и игнорируются.
	WebhookEventUnknown WebhookEventType = ""
)

// ParseWebhookEventType разбирает тип события с запасным вариантом "неизвестно"
func ParseWebhookEventType(s string) WebhookEventType {
	switch WebhookEventType(s) {
	case WebhookEventPaymentStatusChanged:
		return WebhookEventPaymentStatusChanged
	case WebhookEventBillingKeyDeleted:
		return WebhookEventBillingKeyDeleted
	default:
		return WebhookEventUnknown
	}
}

// WebhookPaymentStatus статус платежа, сообщаемый шлюзом
type WebhookPaymentStatus string

const (
	WebhookPaymentStatusDone     WebhookPaymentStatus = "DONE"
	WebhookPaymentStatusCanceled WebhookPaymentStatus = "CANCELED"
	WebhookPaymentStatusAborted  WebhookPaymentStatus = "ABORTED"
	WebhookPaymentStatusExpired  WebhookPaymentStatus = "EXPIRED"
	WebhookPaymentStatusUnknown  WebhookPaymentStatus = ""
)

// ParseWebhookPaymentStatus разбирает статус платежа с запасным вариантом "неизвестно"
func ParseWebhookPaymentStatus(s string) WebhookPaymentStatus {
	switch WebhookPaymentStatus(s) {
	case WebhookPaymentStatusDone:
		return WebhookPaymentStatusDone
	case WebhookPaymentStatusCanceled:
		return WebhookPaymentStatusCanceled
	case WebhookPaymentStatusAborted:
		return WebhookPaymentStatusAborted
	case WebhookPaymentStatusExpired:
		return WebhookPaymentStatusExpired
	default:
		return WebhookPaymentStatusUnknown
	}
}

// WebhookPayload тело события вебхука. Поля считаются недостоверными,
// пока не подтверждены повторным запросом к шлюзу.
type WebhookPayload struct {
	EventType string       `json:"eventType"`
	CreatedAt string       `json:"createdAt"`
	Data      *WebhookData `json:"data"`
}

// WebhookData полезная нагрузка события
type WebhookData struct {
	PaymentKey   string `json:"paymentKey"`
	OrderID      string `json:"orderId"`
	Status       string `json:"status"`
	TotalAmount  int64  `json:"totalAmount"`
	Method       string `json:"method"`
	ApprovedAt   string `json:"approvedAt"`
	CanceledAt   string `json:"canceledAt"`
	CancelReason string `json:"cancelReason"`
	BillingKey   string `json:"billingKey"`
	CustomerKey  string `json:"customerKey"`
}
