package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/service"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// SignatureVerifier проверяет подпись тела webhook-запроса
type SignatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// WebhookHandler принимает webhook-события Toss Payments
type WebhookHandler struct {
	webhooks *service.WebhookService
	verifier SignatureVerifier
	log      *logger.Logger
}

// NewWebhookHandler создает новый обработчик webhook-событий
func NewWebhookHandler(webhooks *service.WebhookService, verifier SignatureVerifier, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, verifier: verifier, log: log}
}

// Handle обрабатывает webhook-событие.
// Неверная подпись — 401, нечитаемое тело — 400, во всех остальных
// случаях шлюзу возвращается 200, чтобы он не ретраил событие.
// POST /api/v1/webhooks/toss
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if !h.verifier.VerifyWebhookSignature(body, c.GetHeader("Toss-Signature")) {
		h.log.Warnw("Webhook with invalid signature rejected", "clientIp", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrInvalidWebhookSignature.Message})
		return
	}

	var payload domain.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	if err := h.webhooks.ProcessWebhook(c.Request.Context(), payload); err != nil {
		// Ошибка обработки логируется, шлюзу отвечаем 200
		h.log.Errorw("Webhook processing failed", "eventType", payload.EventType, "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
