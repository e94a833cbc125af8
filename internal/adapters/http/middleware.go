package http

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/streakboard/core/internal/infrastructure/logger"
	"github.com/streakboard/core/internal/ports"
)

const userContextKey = "user"

// RequireAuth resolves the bearer token to a user id and stores it on the
// request context. Any failure ends the request with 401.
func RequireAuth(authService ports.AuthService, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			userID, err := authService.Identify(strings.TrimSpace(parts[1]))
			if err != nil {
				log.LogSecurityEvent("invalid_token", "", c.RealIP(), map[string]interface{}{
					"error": err.Error(),
					"path":  c.Request().URL.Path,
				})
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			SetUserID(c, userID)
			return next(c)
		}
	}
}

// SetUserID records the authenticated user on the request context.
func SetUserID(c echo.Context, id uuid.UUID) {
	c.Set(userContextKey, id)
}

// currentUser returns the authenticated caller, or 401 when the route was
// mounted without RequireAuth.
func currentUser(c echo.Context) (uuid.UUID, error) {
	id, ok := c.Get(userContextKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	return id, nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid task ID")
	}
	return id, nil
}
