package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kovalevn/cognitive-copilot/internal/api/rest/middleware"
	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/internal/services"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
	"github.com/kovalevn/cognitive-copilot/pkg/req"
)

// CreateSubscriptionRequest тело запроса оформления подписки.
// Пара (plan, priceId) сверяется с каталогом тарифов на сервере.
type CreateSubscriptionRequest struct {
	Plan    string `json:"plan" validate:"required"`
	PriceID string `json:"priceId" validate:"required"`
}

// SubscriptionHandler обработчик операций с подпиской
type SubscriptionHandler struct {
	billing *services.BillingService
	log     *logger.Logger
}

// NewSubscriptionHandler создает новый обработчик подписок
func NewSubscriptionHandler(billing *services.BillingService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		billing: billing,
		log:     log,
	}
}

// CreateSubscription оформляет подписку для текущего пользователя.
// В ответе clientSecret для подтверждения первого платежа на клиенте.
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	body, err := req.HandleBody[CreateSubscriptionRequest](c.Writer, c.Request, h.log)
	if err != nil {
		return
	}

	output, err := h.billing.CreateSubscriptionWithRetry(c.Request.Context(), services.CreateSubscriptionInput{
		UserID:  user.ID,
		Plan:    domain.Plan(body.Plan),
		PriceID: body.PriceID,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, output)
}

// GetStatus возвращает актуальный статус подписки текущего пользователя
func (h *SubscriptionHandler) GetStatus(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	view, err := h.billing.GetStatus(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// Cancel помечает подписку текущего пользователя к отмене в конце периода
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if _, err := h.billing.Cancel(c.Request.Context(), user.ID); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Subscription will be canceled at the end of the billing period",
	})
}
