package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/transport/http/middleware"
)

// PasswordService changes and resets passwords.
type PasswordService interface {
	ChangePassword(ctx context.Context, caller domain.Identity, currentPassword, newPassword string) error
	ResetPassword(ctx context.Context, actor domain.Identity, principalID, newPassword string) error
}

// PasswordHandler exposes endpoints for password management.
type PasswordHandler struct {
	passwords PasswordService
}

func NewPasswordHandler(passwords PasswordService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords}
}

// RegisterRoutes binds password routes under the users group.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/change-password",
		middleware.RequireRole(domain.RoleEmployee, domain.RoleFinanceAdmin, domain.RoleSuperAdmin),
		h.ChangePassword)
	r.POST("/:id/reset-password", middleware.RequireRole(domain.RoleSuperAdmin), h.ResetPassword)
}

// ChangePassword godoc
// @Summary Change the password of the authenticated user
// @Tags Password
// @Accept json
// @Param Authorization header string true "Bearer token"
// @Param request body PasswordChangeRequest true "Password change request"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/users/change-password [post]
func (h *PasswordHandler) ChangePassword(c *gin.Context) {
	identity, ok := middleware.GetAuthenticatedIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password change payload"))
		return
	}

	if err := h.passwords.ChangePassword(c.Request.Context(), identity, req.CurrentPassword, req.NewPassword); err != nil {
		RespondWithMappedError(c, err, passwordErrorCases, http.StatusInternalServerError, msgInternal)
		return
	}

	c.Status(http.StatusNoContent)
}

// ResetPassword godoc
// @Summary Reset the password of another user
// @Tags Password
// @Accept json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "User ID"
// @Param request body PasswordResetRequest true "Password reset request"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id}/reset-password [post]
func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	actor, ok := middleware.GetAuthenticatedIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password reset payload"))
		return
	}

	if err := h.passwords.ResetPassword(c.Request.Context(), actor, c.Param("id"), req.NewPassword); err != nil {
		RespondWithMappedError(c, err, passwordErrorCases, http.StatusInternalServerError, msgInternal)
		return
	}

	c.Status(http.StatusNoContent)
}
