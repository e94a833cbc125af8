package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/streakboard/core/internal/infrastructure/logger"
	"github.com/streakboard/core/internal/ports"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	authService ports.AuthService
	logger      *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService ports.AuthService, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Register godoc
// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ports.RegisterRequest true "Account data"
// @Success 201 {object} ports.AuthResponse
// @Failure 400 {object} ports.ErrorResponse
// @Failure 409 {object} ports.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req ports.RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	response, err := h.authService.Register(c.Request().Context(), req)
	if err != nil {
		h.logger.Warnw("Registration failed", "error", err, "email", req.Email)
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, response)
}

// Login godoc
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ports.LoginRequest true "Credentials"
// @Success 200 {object} ports.AuthResponse
// @Failure 400 {object} ports.ErrorResponse
// @Failure 401 {object} ports.ErrorResponse
// @Failure 403 {object} ports.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req ports.LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	response, err := h.authService.Login(c.Request().Context(), req)
	if err != nil {
		h.logger.Warnw("Login failed", "error", err, "email", req.Email)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, response)
}

// RefreshToken godoc
// @Summary Rotate a refresh token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ports.RefreshRequest true "Refresh token"
// @Success 200 {object} ports.AuthResponse
// @Failure 401 {object} ports.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req ports.RefreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	response, err := h.authService.RefreshToken(c.Request().Context(), req.RefreshToken)
	if err != nil {
		h.logger.Warnw("Token refresh failed", "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, response)
}

// Logout godoc
// @Summary Revoke every refresh token of the caller
// @Tags auth
// @Produce json
// @Success 200 {object} ports.MessageResponse
// @Failure 401 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	if err := h.authService.Logout(c.Request().Context(), userID); err != nil {
		h.logger.Errorw("Logout failed", "error", err, "user_id", userID)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, ports.MessageResponse{Message: "Logged out successfully"})
}

// UserHandler handles user-related requests
type UserHandler struct {
	userService ports.UserService
	logger      *logger.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService ports.UserService, logger *logger.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// GetCurrentUser godoc
// @Summary Current user profile
// @Tags users
// @Produce json
// @Success 200 {object} entities.User
// @Failure 401 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /users/me [get]
func (h *UserHandler) GetCurrentUser(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	user, err := h.userService.GetUserProfile(c.Request().Context(), userID)
	if err != nil {
		h.logger.Errorw("Get current user failed", "error", err, "user_id", userID)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, user)
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return nil
}
