package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Машинные коды ошибок в теле ответа.
const (
	CodeInvalidInput       = "invalid_input"
	CodeInvalidState       = "invalid_state"
	CodeNotFound           = "not_found"
	CodeReservationExpired = "reservation_expired"
	CodeConflict           = "conflict"
	CodeInternal           = "internal_error"
)

// ErrorResponse — единый формат ошибки API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// errorStatus сопоставляет категорию доменной ошибки с HTTP-статусом и кодом.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, domain.ErrReservationExpired):
		return http.StatusConflict, CodeReservationExpired
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusUnprocessableEntity, CodeInvalidState
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError пишет ошибку в едином формате. Внутренние ошибки логируются и не раскрываются клиенту.
func writeError(c *gin.Context, logger *log.Entry, err error) {
	status, code := errorStatus(err)
	resp := ErrorResponse{Code: code, Message: err.Error()}

	var validation *domain.ValidationError
	var expired *domain.ReservationExpiredError
	switch {
	case errors.As(err, &validation):
		resp.Message = "validation failed"
		resp.Details = validation.Fields
	case errors.As(err, &expired):
		resp.Details = gin.H{"productId": expired.ProductID}
	}

	if status == http.StatusInternalServerError {
		logger.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		resp.Message = "internal server error"
	}

	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, message string, details any) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Code:    CodeInvalidInput,
		Message: message,
		Details: details,
	})
}
