package toss

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// PaymentResponse каноническое представление платежа в Toss Payments
type PaymentResponse struct {
	PaymentKey  string    `json:"paymentKey"`
	OrderID     string    `json:"orderId"`
	OrderName   string    `json:"orderName"`
	Status      string    `json:"status"`
	TotalAmount int64     `json:"totalAmount"`
	Method      string    `json:"method"`
	ApprovedAt  string    `json:"approvedAt"`
	BillingKey  string    `json:"billingKey,omitempty"`
	Card        *CardInfo `json:"card,omitempty"`
}

// CardInfo данные карты в ответе Toss
type CardInfo struct {
	IssuerCode string `json:"issuerCode"`
	Number     string `json:"number"`
	CardType   string `json:"cardType"`
}

// BillingKeyResponse результат выпуска биллингового ключа
type BillingKeyResponse struct {
	BillingKey  string `json:"billingKey"`
	CustomerKey string `json:"customerKey"`
	CardCompany string `json:"cardCompany"`
	CardNumber  string `json:"cardNumber"`
}

// IsDone сообщает, подтвержден ли платеж на стороне шлюза
func (p *PaymentResponse) IsDone() bool {
	return p.Status == "DONE"
}

// IsCanceled сообщает, отменен ли платеж на стороне шлюза.
// PARTIAL_CANCELED тоже считается отменой.
func (p *PaymentResponse) IsCanceled() bool {
	return p.Status == "CANCELED" || p.Status == "PARTIAL_CANCELED"
}

// ConfirmPayment подтверждает разовый платеж (paymentKey + orderId + amount)
func (c *Client) ConfirmPayment(ctx context.Context, paymentKey, orderID string, amount int64) (*PaymentResponse, error) {
	body := map[string]any{
		"paymentKey": paymentKey,
		"orderId":    orderID,
		"amount":     amount,
	}

	var resp PaymentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/payments/confirm", body, &resp); err != nil {
		return nil, domain.ErrPaymentConfirmationFailed.WithCause(err)
	}
	return &resp, nil
}

// IssueBillingKey обменивает authKey на биллинговый ключ клиента
func (c *Client) IssueBillingKey(ctx context.Context, authKey, customerKey string) (*BillingKeyResponse, error) {
	body := map[string]any{
		"authKey":     authKey,
		"customerKey": customerKey,
	}

	var resp BillingKeyResponse
	if err := c.do(ctx, http.MethodPost, "/v1/billing/authorizations/issue", body, &resp); err != nil {
		return nil, domain.ErrBillingKeyIssueFailed.WithCause(err)
	}
	return &resp, nil
}

// ChargeBillingKey списывает средства по биллинговому ключу
func (c *Client) ChargeBillingKey(ctx context.Context, billingKey, customerKey, orderID, orderName string, amount int64) (*PaymentResponse, error) {
	body := map[string]any{
		"customerKey": customerKey,
		"orderId":     orderID,
		"orderName":   orderName,
		"amount":      amount,
	}

	var resp PaymentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/billing/"+url.PathEscape(billingKey), body, &resp); err != nil {
		return nil, domain.ErrBillingChargeFailed.WithCause(err)
	}
	return &resp, nil
}

// GetPayment возвращает каноническое состояние платежа по paymentKey
func (c *Client) GetPayment(ctx context.Context, paymentKey string) (*PaymentResponse, error) {
	var resp PaymentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentKey), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelPayment отменяет подтвержденный платеж
func (c *Client) CancelPayment(ctx context.Context, paymentKey, reason string) (*PaymentResponse, error) {
	body := map[string]any{
		"cancelReason": reason,
	}

	var resp PaymentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/payments/"+url.PathEscape(paymentKey)+"/cancel", body, &resp); err != nil {
		return nil, domain.ErrPaymentCancelFailed.WithCause(err)
	}
	return &resp, nil
}
