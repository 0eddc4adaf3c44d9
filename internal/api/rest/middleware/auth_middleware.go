package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/internal/repository"
	"github.com/kovalevn/cognitive-copilot/internal/services"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
)

const (
	// ContextUserKey ключ, под которым аутентифицированный пользователь
	// лежит в контексте Gin
	ContextUserKey = "currentUser"
)

// RequireAuth проверяет Bearer-учетные данные запроса.
// Сначала credential разбирается как сессионный JWT веб-клиента; если это
// не валидный JWT, выполняется поиск по API токенам десктопного клиента.
func RequireAuth(auth *services.AuthService, users repository.UserRepository, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		credential := strings.TrimPrefix(header, "Bearer ")

		// Сессионный JWT веб-клиента
		if userID, err := auth.VerifyToken(credential); err == nil {
			user, err := users.GetByID(c.Request.Context(), userID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
					return
				}
				log.Errorw("Failed to load authenticated user", "error", err, "userID", userID)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			c.Set(ContextUserKey, user)
			c.Next()
			return
		}

		// Долгоживущий API токен десктопного клиента
		user, err := auth.VerifyAPIToken(c.Request.Context(), credential)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			log.Errorw("Failed to verify API token", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// CurrentUser достает аутентифицированного пользователя из контекста Gin
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*domain.User)
	return user, ok
}
