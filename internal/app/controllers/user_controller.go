package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yigit/educhat/internal/app/models/dto"
	"github.com/yigit/educhat/internal/app/services"
	"github.com/yigit/educhat/internal/middleware"
)

// UserController serves the user directory
type UserController struct {
	authService *services.AuthService
}

// NewUserController creates a new UserController
func NewUserController(authService *services.AuthService) *UserController {
	return &UserController{authService: authService}
}

// SearchUsers godoc
// @Summary Search users
// @Description Case-insensitive substring search over name and email, leaving out one user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param query query string false "Search text"
// @Param excludeId query string false "User ID to leave out, usually the caller"
// @Param limit query int false "Maximum results" default(20)
// @Success 200 {object} dto.APIResponse{data=[]dto.UserResponse}
// @Failure 400 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 401 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Router /users/search [get]
func (c *UserController) SearchUsers(ctx *gin.Context) {
	var req dto.UserSearchRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		middleware.HandleBindError(ctx, err)
		return
	}

	users, err := c.authService.SearchUsers(ctx.Request.Context(), &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ToUserResponses(users), ""))
}

// GetUser godoc
// @Summary Get a user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} dto.APIResponse{data=dto.UserResponse}
// @Failure 401 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail} "User not found"
// @Router /users/{id} [get]
func (c *UserController) GetUser(ctx *gin.Context) {
	user, err := c.authService.GetUser(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ToUserResponse(user), ""))
}

// DeleteUser godoc
// @Summary Delete a user
// @Description Admin only. Removes the user and drops them from every chat.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} dto.APIResponse{data=dto.SuccessResponse}
// @Failure 401 {object} dto.APIResponse{error=dto.ErrorDetail}
// @Failure 403 {object} dto.APIResponse{error=dto.ErrorDetail} "Admin role required"
// @Failure 404 {object} dto.APIResponse{error=dto.ErrorDetail} "User not found"
// @Router /admin/users/{id} [delete]
func (c *UserController) DeleteUser(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.authService.DeleteUser(ctx.Request.Context(), middleware.UserID(ctx), id); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.SuccessResponse{Message: "User deleted"}, "User deleted"))
}
