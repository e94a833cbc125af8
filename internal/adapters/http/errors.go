package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/streakboard/core/internal/domain/entities"
	"github.com/streakboard/core/internal/domain/streak"
	"github.com/streakboard/core/internal/ports"
)

// CodeAlreadyCompleted marks a completion rejected because the task was
// already completed on the current calendar day.
const CodeAlreadyCompleted = "already_completed"

// CodeOutOfOrder marks a completion dated before the task's last completion.
const CodeOutOfOrder = "out_of_order"

// httpError maps a service error onto a status code. Unknown errors become a
// 500 carrying the original error as Internal, so the message never leaks.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, streak.ErrAlreadyCompleted):
		return echo.NewHTTPError(http.StatusBadRequest, ports.ErrorResponse{
			Message: "Task already completed today",
			Code:    CodeAlreadyCompleted,
		})
	case errors.Is(err, streak.ErrOutOfOrder):
		return echo.NewHTTPError(http.StatusConflict, ports.ErrorResponse{
			Message: "Completion is dated before the last recorded completion",
			Code:    CodeOutOfOrder,
		})
	case errors.Is(err, entities.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, entities.ErrUnauthenticated), errors.Is(err, entities.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, entities.ErrInactiveUser):
		return echo.NewHTTPError(http.StatusForbidden, "Account is inactive")
	case errors.Is(err, entities.ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Task not found")
	case errors.Is(err, entities.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	case errors.Is(err, entities.ErrUserExists):
		return echo.NewHTTPError(http.StatusConflict, "User already exists")
	case errors.Is(err, entities.ErrConcurrentUpdate):
		return echo.NewHTTPError(http.StatusConflict, "Task was modified concurrently, retry the request")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)).SetInternal(err)
	}
}
