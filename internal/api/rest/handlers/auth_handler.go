package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/internal/services"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
	"github.com/kovalevn/cognitive-copilot/pkg/req"
)

// SignupRequest тело запроса регистрации
type SignupRequest struct {
	Name     string  `json:"name" validate:"required"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	JobRole  *string `json:"job_role,omitempty"`
	Company  *string `json:"company,omitempty"`
}

// LoginRequest тело запроса входа
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse ответ на регистрацию и вход
type AuthResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// AuthHandler обработчик регистрации и входа
type AuthHandler struct {
	auth *services.AuthService
	log  *logger.Logger
}

// NewAuthHandler создает новый обработчик аутентификации
func NewAuthHandler(auth *services.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		auth: auth,
		log:  log,
	}
}

// Signup регистрирует нового пользователя
func (h *AuthHandler) Signup(c *gin.Context) {
	body, err := req.HandleBody[SignupRequest](c.Writer, c.Request, h.log)
	if err != nil {
		return
	}

	user, token, err := h.auth.Signup(c.Request.Context(), services.SignupInput{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
		JobRole:  body.JobRole,
		Company:  body.Company,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{User: user, Token: token})
}

// Login аутентифицирует пользователя по email и паролю
func (h *AuthHandler) Login(c *gin.Context) {
	body, err := req.HandleBody[LoginRequest](c.Writer, c.Request, h.log)
	if err != nil {
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{User: user, Token: token})
}
