package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/kovalevn/cognitive-copilot/internal/services"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

const (
	// Максимальный размер тела вебхука, рекомендованный Stripe
	maxWebhookBodyBytes = int64(65536)
)

// WebhookHandler обработчик вебхуков Stripe.
// Подпись из заголовка Stripe-Signature - единственная граница доверия:
// тело запроса считается данными Stripe только после ее проверки.
type WebhookHandler struct {
	billing       *services.BillingService
	webhookSecret string
	log           *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(billing *services.BillingService, webhookSecret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:       billing,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// HandleStripeWebhook принимает и применяет событие вебхука Stripe.
// Любое событие с валидной подписью подтверждается 200, включая
// неизвестные типы и события по чужим подпискам.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Errorw("Failed to read webhook body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, signature, h.webhookSecret)
	if err != nil {
		h.log.Warnw("Webhook signature verification failed", "error", err, "ip", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook signature verification failed"})
		return
	}

	parsed, err := services.ParseWebhookEvent(event)
	if err != nil {
		// Подпись валидна, но payload не разобрался. Подтверждаем, чтобы
		// Stripe не ретраил событие, которое мы все равно не применим.
		h.log.Errorw("Failed to parse webhook event payload", "error", err, "type", string(event.Type), "eventID", event.ID)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.billing.ApplyWebhookEvent(c.Request.Context(), parsed); err != nil {
		// Внутренний сбой, пусть Stripe повторит доставку
		h.log.Errorw("Failed to apply webhook event", "error", err, "type", string(event.Type), "eventID", event.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
