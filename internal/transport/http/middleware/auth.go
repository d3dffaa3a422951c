package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/expense-iam/internal/core/domain"
)

const authenticationKey = "authentication"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequestAuthenticator resolves the Authorization header into an Authentication value.
type RequestAuthenticator interface {
	Authenticate(ctx context.Context, header string) domain.Authentication
}

// Authenticate evaluates the bearer token once per request and stores the result on
// the gin context and the request context. It never aborts the request.
func Authenticate(authenticator RequestAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Authentication(c).IsAuthenticated() || authenticator == nil {
			c.Next()
			return
		}

		auth := authenticator.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		setAuthentication(c, auth)

		c.Next()
	}
}

func setAuthentication(c *gin.Context, auth domain.Authentication) {
	c.Set(authenticationKey, auth)
	c.Request = c.Request.WithContext(domain.WithAuthentication(c.Request.Context(), auth))

	if auth.IsAuthenticated() {
		c.Set(PrincipalIDKey, auth.Identity.PrincipalID)
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.PrincipalID = auth.Identity.PrincipalID
		}
	}
}

// Authentication returns the value stored by Authenticate, or Anonymous.
func Authentication(c *gin.Context) domain.Authentication {
	if val, exists := c.Get(authenticationKey); exists {
		if auth, ok := val.(domain.Authentication); ok {
			return auth
		}
	}
	return domain.AuthenticationFromContext(c.Request.Context())
}

// RequireAuthenticated rejects anonymous requests with 401.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Authentication(c).IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}
		c.Next()
	}
}

// RequireRole rejects anonymous requests with 401 and callers lacking every listed role with 403.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := Authentication(c)
		if !auth.IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		if !auth.Identity.HasAnyRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// GetAuthenticatedIdentity retrieves the caller identity (helper for handlers)
func GetAuthenticatedIdentity(c *gin.Context) (domain.Identity, bool) {
	auth := Authentication(c)
	if !auth.IsAuthenticated() {
		return domain.Identity{}, false
	}
	return auth.Identity, true
}
