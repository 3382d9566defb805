package controller

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"go-auth-api/app/dto"
	"go-auth-api/app/service"
)

const userListPageSize = 50

// UserController exposes the admin-only user listing.
type UserController struct {
	authService *service.AuthService
}

func NewUserController(authService *service.AuthService) *UserController {
	return &UserController{authService: authService}
}

func (c *UserController) List(ctx echo.Context) error {
	limit := userListPageSize
	if parsed, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && parsed > 0 && parsed <= userListPageSize {
		limit = parsed
	}
	offset := 0
	if parsed, err := strconv.Atoi(ctx.QueryParam("offset")); err == nil && parsed > 0 {
		offset = parsed
	}

	users, err := c.authService.ListUsers(ctx.Request().Context(), limit, offset)
	if err != nil {
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.NewUserListResponse(users))
}
