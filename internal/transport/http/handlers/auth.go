package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/expense-iam/internal/transport/http/middleware"
	"github.com/arklim/expense-iam/internal/usecase"
)

// AuthService is the login orchestrator consumed by AuthHandler.
type AuthService interface {
	Login(ctx context.Context, input usecase.LoginInput) (*usecase.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of the login handler.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	chain = append(chain, h.login)
	r.POST("/login", chain...)

	r.POST("/logout", h.logout)
	r.GET("/me", middleware.RequireAuthenticated(), h.me)
}

// Login godoc
// @Summary Authenticate with email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body AuthLoginRequest true "Login credentials"
// @Success 200 {object} AuthLoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 423 {object} LockedResponse
// @Failure 429 {object} middleware.RateLimitedResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		RespondWithMappedError(c, err, loginErrorCases, http.StatusInternalServerError, msgInternal)
		return
	}

	c.JSON(http.StatusOK, AuthLoginResponse{
		Token:     result.Token,
		TokenType: result.TokenType,
		ExpiresAt: result.ExpiresAt,
		User: UserSummary{
			ID:       result.Principal.ID,
			Name:     result.Principal.Name,
			Email:    result.Principal.Email,
			IsActive: result.Principal.Active,
		},
	})
}

// Logout godoc
// @Summary Revoke the bearer token presented with the request
// @Tags Authentication
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	token, ok := usecase.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "missing bearer token"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		RespondWithMappedError(c, err, loginErrorCases, http.StatusInternalServerError, msgInternal)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// Me godoc
// @Summary Describe the authenticated caller
// @Tags Authentication
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} IdentityResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	identity, ok := middleware.GetAuthenticatedIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	roles := identity.Roles
	if roles == nil {
		roles = []string{}
	}
	c.JSON(http.StatusOK, IdentityResponse{
		ID:             identity.PrincipalID,
		Email:          identity.Email,
		Name:           identity.Name,
		Roles:          roles,
		TokenExpiresAt: identity.TokenExpiresAt,
		Locked:         identity.Locked,
	})
}
