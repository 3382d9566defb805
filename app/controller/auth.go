package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"go-auth-api/app/dto"
	"go-auth-api/app/middleware"
	"go-auth-api/app/service"
)

type AuthController struct {
	authService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{authService: authService}
}

func bindAndValidate(ctx echo.Context, req any) error {
	if err := ctx.Bind(req); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}
	if fields := dto.Validate(req); fields != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "validation failed", Fields: fields})
	}
	return nil
}

// currentUserID reads the subject RequireAuth stored on the request context.
func currentUserID(ctx echo.Context) (string, bool) {
	userID, ok := ctx.Get(middleware.ContextKeyUserID).(string)
	return userID, ok && userID != ""
}

func internalError(ctx echo.Context, err error) error {
	logrus.WithError(err).Error("Request failed")
	return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
}

func (c *AuthController) Signup(ctx echo.Context) error {
	var req dto.SignupRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	meta := service.NewRequestMeta(ctx.Request())
	user, tokens, err := c.authService.Signup(ctx.Request().Context(), meta, req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "User already exists"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, dto.NewAuthResponse(user, tokens))
}

func (c *AuthController) Login(ctx echo.Context) error {
	var req dto.LoginRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	meta := service.NewRequestMeta(ctx.Request())
	user, tokens, err := c.authService.Login(ctx.Request().Context(), meta, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid credentials"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.NewAuthResponse(user, tokens))
}

func (c *AuthController) Refresh(ctx echo.Context) error {
	var req dto.RefreshRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	meta := service.NewRequestMeta(ctx.Request())
	user, tokens, err := c.authService.Refresh(ctx.Request().Context(), meta, req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) || errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or expired refresh token"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.NewAuthResponse(user, tokens))
}

func (c *AuthController) Logout(ctx echo.Context) error {
	var req dto.LogoutRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	if err := c.authService.Logout(ctx.Request().Context(), req.RefreshToken); err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or expired refresh token"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "Successfully logged out of the session!"})
}

func (c *AuthController) ForgetPassword(ctx echo.Context) error {
	var req dto.ForgetPasswordRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	if err := c.authService.ForgetPassword(ctx.Request().Context(), req.Email); err != nil {
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.MessageResponse{
		Message: "If the email exists, a password reset link has been sent.",
	})
}

func (c *AuthController) ResetPassword(ctx echo.Context) error {
	var req dto.ResetPasswordRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	if err := c.authService.ResetPassword(ctx.Request().Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid or expired token"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "Password reset successfully"})
}

func (c *AuthController) VerifyEmail(ctx echo.Context) error {
	var req dto.VerifyEmailRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	if err := c.authService.VerifyEmail(ctx.Request().Context(), req.Token); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid or expired token"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "Email verified successfully."})
}

func (c *AuthController) SendVerificationEmail(ctx echo.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Authentication required"})
	}

	if err := c.authService.SendVerificationEmail(ctx.Request().Context(), userID); err != nil {
		if errors.Is(err, service.ErrEmailAlreadyVerified) {
			return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "Email is already verified."})
		}
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "Verification email sent."})
}

func (c *AuthController) ChangePassword(ctx echo.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Authentication required"})
	}

	var req dto.ChangePasswordRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	if err := c.authService.ChangePassword(ctx.Request().Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrPasswordMismatch) {
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid old password"})
		}
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "Password changed successfully"})
}

func (c *AuthController) Me(ctx echo.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Authentication required"})
	}

	user, err := c.authService.CurrentUser(ctx.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.NewUserResponse(user))
}

func (c *AuthController) UpdateProfile(ctx echo.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Authentication required"})
	}

	var req dto.UpdateProfileRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	user, err := c.authService.UpdateProfile(ctx.Request().Context(), userID, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.NewUserResponse(user))
}

func (c *AuthController) ListSessions(ctx echo.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Authentication required"})
	}

	sessions, err := c.authService.GetSessions(ctx.Request().Context(), userID)
	if err != nil {
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.NewSessionListResponse(sessions))
}

func (c *AuthController) RevokeSession(ctx echo.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Authentication required"})
	}

	sessionID := ctx.Param("id")
	if sessionID == "" {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "session id is required"})
	}

	if err := c.authService.RevokeSession(ctx.Request().Context(), userID, sessionID); err != nil {
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "Successfully revoked the session!"})
}
