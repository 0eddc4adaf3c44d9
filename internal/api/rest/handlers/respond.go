package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kovalevn/cognitive-copilot/internal/domain"
	"github.com/kovalevn/cognitive-copilot/pkg/logger"
	"github.com/kovalevn/cognitive-copilot/pkg/res"
)

// respondError переводит доменную ошибку в HTTP статус и JSON ответ.
// Ошибка платежного шлюза отдается клиенту с исходным сообщением,
// внутренние ошибки наружу не раскрываются.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Invalid request data"}, http.StatusBadRequest, log)

	case errors.Is(err, domain.ErrAlreadySubscribed):
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "User already has an active subscription"}, http.StatusBadRequest, log)

	case errors.Is(err, domain.ErrUnknownPlan):
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Unknown plan"}, http.StatusBadRequest, log)

	case errors.Is(err, domain.ErrDuplicate):
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: err.Error()}, http.StatusBadRequest, log)

	case errors.Is(err, domain.ErrInvalidCredentials):
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Invalid email or password"}, http.StatusUnauthorized, log)

	case errors.Is(err, domain.ErrUnauthenticated):
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Unauthorized"}, http.StatusUnauthorized, log)

	case errors.Is(err, domain.ErrNoSubscription), errors.Is(err, domain.ErrNotFound):
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Not found"}, http.StatusNotFound, log)

	case errors.Is(err, domain.ErrGatewayUnavailable):
		var extErr *domain.ExternalServiceError
		message := "Payment gateway error"
		if errors.As(err, &extErr) && extErr.Message != "" {
			message = extErr.Message
		}
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: message}, http.StatusInternalServerError, log)

	default:
		log.Errorw("Unhandled error in request", "error", err, "path", c.Request.URL.Path)
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Internal server error"}, http.StatusInternalServerError, log)
	}
}
