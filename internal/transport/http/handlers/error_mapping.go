package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/expense-iam/internal/core/domain"
)

const (
	msgInvalidCredentials = "invalid email or password"
	msgInternal           = "internal server error"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// loginErrorCases keep unknown emails and wrong passwords indistinguishable.
var loginErrorCases = []ErrorCase{
	{Err: domain.ErrPrincipalNotFound, Status: http.StatusUnauthorized, Message: msgInvalidCredentials},
	{Err: domain.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: msgInvalidCredentials},
	{Err: domain.ErrAccountDisabled, Status: http.StatusUnauthorized, Message: domain.ErrAccountDisabled.Error()},
	{Err: domain.ErrInvalidToken, Status: http.StatusUnauthorized, Message: domain.ErrInvalidToken.Error()},
}

var passwordErrorCases = []ErrorCase{
	{Err: domain.ErrPrincipalNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: domain.ErrAuthenticationFailed, Status: http.StatusUnauthorized, Message: "authentication required"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// Validation and lockout errors carry their own payloads and are handled before the cases.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, vErr.Error()))
		return
	}

	var locked *domain.AccountLockedError
	if errors.As(err, &locked) {
		resp := NewErrorResponse(c, domain.ErrAccountLocked.Error())
		c.JSON(http.StatusLocked, LockedResponse{Error: resp.Error, LockedUntil: locked.LockedUntil, TraceID: resp.TraceID})
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
