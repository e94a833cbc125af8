package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/streakboard/core/internal/infrastructure/logger"
	"github.com/streakboard/core/internal/ports"
)

// TaskHandler handles task and streak requests
type TaskHandler struct {
	taskService ports.TaskService
	logger      *logger.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService ports.TaskService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		logger:      logger,
	}
}

// CreateTask godoc
// @Summary Create a task
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body ports.CreateTaskRequest true "Task data"
// @Success 201 {object} entities.Task
// @Failure 400 {object} ports.ErrorResponse
// @Failure 401 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks [post]
func (h *TaskHandler) CreateTask(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req ports.CreateTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	task, err := h.taskService.CreateTask(c.Request().Context(), userID, req)
	if err != nil {
		h.logger.Errorw("Create task failed", "error", err, "user_id", userID)
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, task)
}

// ListTasks godoc
// @Summary List the caller's tasks
// @Tags tasks
// @Produce json
// @Param search query string false "Substring of the title"
// @Param completed_today query bool false "Only tasks completed (or not) today"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset"
// @Param sort_by query string false "created_at, title, streak_current or streak_max"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} ports.PaginatedResponse[entities.Task]
// @Failure 400 {object} ports.ErrorResponse
// @Failure 401 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks [get]
func (h *TaskHandler) ListTasks(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var query ports.ListTasksQuery
	if err := bindAndValidate(c, &query); err != nil {
		return err
	}

	page, err := h.taskService.ListTasks(c.Request().Context(), userID, query)
	if err != nil {
		h.logger.Errorw("List tasks failed", "error", err, "user_id", userID)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, page)
}

// TodaySummary godoc
// @Summary Progress for the current calendar day
// @Tags tasks
// @Produce json
// @Success 200 {object} ports.TodaySummary
// @Failure 401 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/summary [get]
func (h *TaskHandler) TodaySummary(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	summary, err := h.taskService.TodaySummary(c.Request().Context(), userID)
	if err != nil {
		h.logger.Errorw("Today summary failed", "error", err, "user_id", userID)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, summary)
}

// GetTask godoc
// @Summary Get a task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} entities.Task
// @Failure 400 {object} ports.ErrorResponse
// @Failure 401 {object} ports.ErrorResponse
// @Failure 404 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id} [get]
func (h *TaskHandler) GetTask(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	taskID, err := pathID(c)
	if err != nil {
		return err
	}

	task, err := h.taskService.GetTask(c.Request().Context(), userID, taskID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, task)
}

// UpdateTask godoc
// @Summary Rename a task or change its description
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body ports.UpdateTaskRequest true "Fields to change"
// @Success 200 {object} entities.Task
// @Failure 400 {object} ports.ErrorResponse
// @Failure 401 {object} ports.ErrorResponse
// @Failure 404 {object} ports.ErrorResponse
// @Failure 409 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id} [put]
func (h *TaskHandler) UpdateTask(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	taskID, err := pathID(c)
	if err != nil {
		return err
	}

	var req ports.UpdateTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	task, err := h.taskService.UpdateTask(c.Request().Context(), userID, taskID, req)
	if err != nil {
		h.logger.Warnw("Update task failed", "error", err, "user_id", userID, "task_id", taskID)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, task)
}

// DeleteTask godoc
// @Summary Delete a task
// @Tags tasks
// @Param id path string true "Task ID"
// @Success 204
// @Failure 400 {object} ports.ErrorResponse
// @Failure 401 {object} ports.ErrorResponse
// @Failure 404 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id} [delete]
func (h *TaskHandler) DeleteTask(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	taskID, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.taskService.DeleteTask(c.Request().Context(), userID, taskID); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// CompleteTask godoc
// @Summary Mark a task completed for today
// @Description Extends the streak when the previous completion was yesterday and resets it to 1 after a gap.
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} entities.Task
// @Failure 400 {object} ports.ErrorResponse "Malformed id, or already completed today (code already_completed)"
// @Failure 401 {object} ports.ErrorResponse
// @Failure 404 {object} ports.ErrorResponse
// @Failure 409 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id}/complete [post]
func (h *TaskHandler) CompleteTask(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	taskID, err := pathID(c)
	if err != nil {
		return err
	}

	task, err := h.taskService.CompleteTask(c.Request().Context(), userID, taskID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, task)
}

// RecomputeStreak godoc
// @Summary Rebuild streak counters from the completion history
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} entities.Task
// @Failure 400 {object} ports.ErrorResponse
// @Failure 401 {object} ports.ErrorResponse
// @Failure 404 {object} ports.ErrorResponse
// @Failure 409 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id}/recompute [post]
func (h *TaskHandler) RecomputeStreak(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	taskID, err := pathID(c)
	if err != nil {
		return err
	}

	task, err := h.taskService.RecomputeStreak(c.Request().Context(), userID, taskID)
	if err != nil {
		h.logger.Errorw("Recompute streak failed", "error", err, "user_id", userID, "task_id", taskID)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, task)
}
