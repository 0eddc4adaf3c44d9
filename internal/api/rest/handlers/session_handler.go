package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kovalevn/cognitive-copilot/internal/api/rest/middleware"
	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/internal/repository"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
	"github.com/kovalevn/cognitive-copilot/pkg/req"
)

// CreateSessionRequest тело запроса записи сеанса работы с ассистентом
type CreateSessionRequest struct {
	SessionType string `json:"session_type" validate:"required,oneof=interview meeting sales support"`
	Duration    int    `json:"duration" validate:"gte=0"`
	Status      string `json:"status" validate:"required,oneof=completed in_progress failed"`
}

// SessionHandler обработчик журнала сеансов
type SessionHandler struct {
	sessions repository.AssistSessionRepository
	log      *logger.Logger
}

// NewSessionHandler создает новый обработчик сеансов
func NewSessionHandler(sessions repository.AssistSessionRepository, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log,
	}
}

// ListSessions возвращает сеансы текущего пользователя
func (h *SessionHandler) ListSessions(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessions, err := h.sessions.ListByUserID(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// CreateSession записывает завершенный или идущий сеанс в журнал
func (h *SessionHandler) CreateSession(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	body, err := req.HandleBody[CreateSessionRequest](c.Writer, c.Request, h.log)
	if err != nil {
		return
	}

	session := &domain.AssistSession{
		UserID:      user.ID,
		SessionType: body.SessionType,
		Duration:    body.Duration,
		Status:      body.Status,
	}

	if err := h.sessions.Create(c.Request.Context(), session); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}
