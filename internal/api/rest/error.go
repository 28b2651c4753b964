package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dregan-protocol/staking-core/internal/domain"
	"github.com/dregan-protocol/staking-core/internal/logger"
)

// errorResponse is the standard error envelope
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// errorDetail holds the error information
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeForbidden     = "forbidden"
	ErrCodeNotFound      = "not_found"
	ErrCodeConflict      = "conflict"
	ErrCodeUnprocessable = "unprocessable"
	ErrCodeInternal      = "internal_error"
)

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, status int, code string, message string) {
	c.JSON(status, errorResponse{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// respondWithDomainError maps a domain sentinel to an HTTP response. Unknown
// errors are logged and reported as opaque internal errors.
func respondWithDomainError(c *gin.Context, err error) {
	status, code := mapDomainError(err)
	if status == http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), err,
			zap.String("path", c.Request.URL.Path))
		respondWithError(c, status, code, "Internal server error")
		return
	}
	respondWithError(c, status, code, err.Error())
}

// mapDomainError translates a domain sentinel into an HTTP status and error
// code
func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrIdentityMismatch):
		return http.StatusForbidden, ErrCodeForbidden

	case errors.Is(err, domain.ErrNotInitialized),
		errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound, ErrCodeNotFound

	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidLockClass),
		errors.Is(err, domain.ErrInvalidTier),
		errors.Is(err, domain.ErrNameTooLong),
		errors.Is(err, domain.ErrURITooLong):
		return http.StatusBadRequest, ErrCodeBadRequest

	case errors.Is(err, domain.ErrPoolPaused),
		errors.Is(err, domain.ErrPoolExists),
		errors.Is(err, domain.ErrRecordExists),
		errors.Is(err, domain.ErrStillLocked),
		errors.Is(err, domain.ErrPositionClosed),
		errors.Is(err, domain.ErrPositionActive),
		errors.Is(err, domain.ErrNothingToClaim),
		errors.Is(err, domain.ErrTierNotActive),
		errors.Is(err, domain.ErrSoldOut),
		errors.Is(err, domain.ErrAlreadyOwned),
		errors.Is(err, domain.ErrUnsupportedPolicy):
		return http.StatusConflict, ErrCodeConflict

	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrMathOverflow):
		return http.StatusUnprocessableEntity, ErrCodeUnprocessable

	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// respondWithBadRequest sends a 400 error
func respondWithBadRequest(c *gin.Context, message string) {
	respondWithError(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// respondWithForbidden sends a 403 error
func respondWithForbidden(c *gin.Context, message string) {
	respondWithError(c, http.StatusForbidden, ErrCodeForbidden, message)
}
