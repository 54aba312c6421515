package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicate         = errors.New("duplicate request")
	ErrAuthentication    = errors.New("authentication failed")
	ErrExternalService   = errors.New("external service error")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrNotFound          = errors.New("not found")
)

// StatusFor maps an error of the taxonomy to its HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as JSON. 5xx responses never carry the underlying message.
func RespondError(c *gin.Context, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
		if errors.Is(err, ErrExternalService) {
			msg = "payment provider unavailable, funds were returned to your balance"
		}
	}
	c.JSON(status, ErrorResponse{Error: msg})
}
