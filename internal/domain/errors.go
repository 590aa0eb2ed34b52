package domain

import (
	"fmt"
	"net/http"
)

// BillingError представляет ошибку биллинга с кодом для программной обработки
type BillingError struct {
	Code       string
	HTTPStatus int
	Message    string
	Err        error
}

// Error реализует интерфейс error
func (e *BillingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("billing error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("billing error [%s]: %s", e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *BillingError) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду, чтобы errors.Is работал для обернутых копий
func (e *BillingError) Is(target error) bool {
	other, ok := target.(*BillingError)
	return ok && other.Code == e.Code
}

// WithCause возвращает копию ошибки с вложенной причиной
func (e *BillingError) WithCause(err error) *BillingError {
	return &BillingError{
		Code:       e.Code,
		HTTPStatus: e.HTTPStatus,
		Message:    e.Message,
		Err:        err,
	}
}

// Ошибки валидации заказа
var (
	ErrInvalidPlan            = &BillingError{Code: "INVALID_PLAN", HTTPStatus: http.StatusBadRequest, Message: "unknown subscription plan"}
	ErrInvalidBillingCycle    = &BillingError{Code: "INVALID_BILLING_CYCLE", HTTPStatus: http.StatusBadRequest, Message: "unknown billing cycle"}
	ErrFreePlanNotPurchasable = &BillingError{Code: "FREE_PLAN_NOT_PURCHASABLE", HTTPStatus: http.StatusBadRequest, Message: "free plan cannot be purchased"}
)

// Ошибки платежей
var (
	ErrPaymentNotFound             = &BillingError{Code: "PAYMENT_NOT_FOUND", HTTPStatus: http.StatusNotFound, Message: "payment not found"}
	ErrPaymentAlreadyProcessed     = &BillingError{Code: "PAYMENT_ALREADY_PROCESSED", HTTPStatus: http.StatusBadRequest, Message: "payment already processed"}
	ErrPaymentAmountMismatch       = &BillingError{Code: "PAYMENT_AMOUNT_MISMATCH", HTTPStatus: http.StatusBadRequest, Message: "payment amount mismatch"}
	ErrPaymentCustomerKeyMismatch  = &BillingError{Code: "PAYMENT_CUSTOMER_KEY_MISMATCH", HTTPStatus: http.StatusBadRequest, Message: "customer key mismatch"}
	ErrPaymentNotSupportedForCycle = &BillingError{Code: "PAYMENT_NOT_SUPPORTED_FOR_CYCLE", HTTPStatus: http.StatusBadRequest, Message: "direct confirmation supports yearly subscriptions only"}
	ErrBillingNotSupportedForCycle = &BillingError{Code: "BILLING_NOT_SUPPORTED_FOR_CYCLE", HTTPStatus: http.StatusBadRequest, Message: "billing confirmation supports monthly subscriptions only"}
	ErrPaymentConfirmationFailed   = &BillingError{Code: "PAYMENT_CONFIRMATION_FAILED", HTTPStatus: http.StatusBadRequest, Message: "payment confirmation failed"}
	ErrPaymentCancelFailed         = &BillingError{Code: "PAYMENT_CANCEL_FAILED", HTTPStatus: http.StatusBadRequest, Message: "payment cancellation failed"}
)

// Ошибки рекуррентных платежей
var (
	ErrBillingKeyIssueFailed = &BillingError{Code: "BILLING_KEY_ISSUE_FAILED", HTTPStatus: http.StatusBadRequest, Message: "billing key issue failed"}
	ErrBillingChargeFailed   = &BillingError{Code: "BILLING_PAYMENT_FAILED", HTTPStatus: http.StatusBadRequest, Message: "billing charge failed"}
)

// Ошибки подписок
var (
	ErrSubscriptionNotFound        = &BillingError{Code: "SUBSCRIPTION_NOT_FOUND", HTTPStatus: http.StatusNotFound, Message: "subscription not found"}
	ErrSubscriptionAlreadyExists   = &BillingError{Code: "SUBSCRIPTION_ALREADY_EXISTS", HTTPStatus: http.StatusConflict, Message: "active subscription already exists"}
	ErrSubscriptionAlreadyCanceled = &BillingError{Code: "SUBSCRIPTION_ALREADY_CANCELED", HTTPStatus: http.StatusBadRequest, Message: "subscription already canceled"}
)

// Ошибки вебхуков
var (
	ErrInvalidWebhookSignature = &BillingError{Code: "INVALID_WEBHOOK_SIGNATURE", HTTPStatus: http.StatusUnauthorized, Message: "invalid webhook signature"}
)
