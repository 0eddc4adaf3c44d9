package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kovalevn/cognitive-copilot/internal/api/rest/middleware"
	"github.com/kovalevn/cognitive-copilot/internal/repository"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
	"github.com/kovalevn/cognitive-copilot/pkg/req"
)

// UpdateProfileRequest тело запроса обновления профиля.
// Присылаются только изменяемые поля, nil означает "не менять".
type UpdateProfileRequest struct {
	Name       *string `json:"name,omitempty"`
	JobRole    *string `json:"job_role,omitempty"`
	Company    *string `json:"company,omitempty"`
	ResumeName *string `json:"resume_name,omitempty"`
	ResumeURL  *string `json:"resume_url,omitempty" validate:"omitempty,url"`
}

// ProfileHandler обработчик профиля пользователя
type ProfileHandler struct {
	users repository.UserRepository
	log   *logger.Logger
}

// NewProfileHandler создает новый обработчик профиля
func NewProfileHandler(users repository.UserRepository, log *logger.Logger) *ProfileHandler {
	return &ProfileHandler{
		users: users,
		log:   log,
	}
}

// GetProfile возвращает профиль текущего пользователя
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateProfile частично обновляет профиль текущего пользователя
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	body, err := req.HandleBody[UpdateProfileRequest](c.Writer, c.Request, h.log)
	if err != nil {
		return
	}

	if body.Name != nil {
		user.Name = *body.Name
	}
	if body.JobRole != nil {
		user.JobRole = body.JobRole
	}
	if body.Company != nil {
		user.Company = body.Company
	}
	if body.ResumeName != nil {
		user.ResumeName = body.ResumeName
	}
	if body.ResumeURL != nil {
		user.ResumeURL = body.ResumeURL
	}

	if err := h.users.Update(c.Request.Context(), user); err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Infow("Profile updated", "userID", user.ID)
	c.JSON(http.StatusOK, user)
}
