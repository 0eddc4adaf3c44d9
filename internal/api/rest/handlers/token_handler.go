package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kovalevn/cognitive-copilot/internal/api/rest/middleware"
	"github.com/kovalevn/cognitive-copilot/internal/services"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
	"github.com/kovalevn/cognitive-copilot/pkg/req"
)

// CreateTokenRequest тело запроса создания API токена
type CreateTokenRequest struct {
	Name string `json:"name" validate:"required"`
}

// CreateTokenResponse ответ с созданным токеном.
// Значение токена возвращается только здесь, один раз.
type CreateTokenResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenHandler обработчик API токенов десктопного клиента
type TokenHandler struct {
	auth *services.AuthService
	log  *logger.Logger
}

// NewTokenHandler создает новый обработчик токенов
func NewTokenHandler(auth *services.AuthService, log *logger.Logger) *TokenHandler {
	return &TokenHandler{
		auth: auth,
		log:  log,
	}
}

// ListTokens возвращает токены текущего пользователя без их значений
func (h *TokenHandler) ListTokens(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	tokens, err := h.auth.ListAPITokens(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// CreateToken выдает новый API токен текущему пользователю
func (h *TokenHandler) CreateToken(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	body, err := req.HandleBody[CreateTokenRequest](c.Writer, c.Request, h.log)
	if err != nil {
		return
	}

	token, err := h.auth.CreateAPIToken(c.Request.Context(), user.ID, body.Name)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, CreateTokenResponse{
		ID:        token.ID,
		Name:      token.Name,
		Token:     token.Token,
		CreatedAt: token.CreatedAt,
	})
}

// DeleteToken удаляет API токен текущего пользователя
func (h *TokenHandler) DeleteToken(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	tokenID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token id"})
		return
	}

	if err := h.auth.DeleteAPIToken(c.Request.Context(), tokenID, user.ID); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
