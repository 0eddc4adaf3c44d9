package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kovalevn/cognitive-copilot/internal/api/rest/middleware"
	"github.com/kovalevn/cognitive-copilot/internal/services"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

// AccessHandler обработчик проверки доступных возможностей
type AccessHandler struct {
	gate *services.AccessGate
	log  *logger.Logger
}

// NewAccessHandler создает новый обработчик возможностей
func NewAccessHandler(gate *services.AccessGate, log *logger.Logger) *AccessHandler {
	return &AccessHandler{
		gate: gate,
		log:  log,
	}
}

// GetFeatures возвращает действующий тариф и возможности текущего пользователя.
// Решение принимается по локальной записи, Stripe не вызывается.
func (h *AccessHandler) GetFeatures(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	plan, features, err := h.gate.FeatureList(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"plan":     plan,
		"features": features,
	})
}
