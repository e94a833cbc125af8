package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/streakboard/core/internal/domain/entities"
	"github.com/streakboard/core/internal/domain/streak"
	"github.com/streakboard/core/internal/infrastructure/logger"
	"github.com/streakboard/core/internal/infrastructure/metrics"
	"github.com/streakboard/core/internal/ports"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Clock returns the current instant.
type Clock func() time.Time

// TaskService handles task-related operations
type TaskService struct {
	taskRepo ports.TaskRepository
	locker   ports.TaskLocker
	engine   *streak.Engine
	metrics  *metrics.Metrics
	now      Clock
	logger   *logger.Logger
}

// NewTaskService creates a new task service. m may be nil.
func NewTaskService(taskRepo ports.TaskRepository, locker ports.TaskLocker, engine *streak.Engine, m *metrics.Metrics, logger *logger.Logger) *TaskService {
	return &TaskService{
		taskRepo: taskRepo,
		locker:   locker,
		engine:   engine,
		metrics:  m,
		now:      time.Now,
		logger:   logger.WithComponent("task_service"),
	}
}

// WithClock replaces the wall clock.
func (s *TaskService) WithClock(clock Clock) *TaskService {
	s.now = clock
	return s
}

// CreateTask creates a task with an empty history
func (s *TaskService) CreateTask(ctx context.Context, ownerID uuid.UUID, req ports.CreateTaskRequest) (*entities.Task, error) {
	task, err := entities.NewTask(ownerID, req.Title, req.Description, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.LogUserAction(ownerID.String(), "create_task", map[string]interface{}{
		"task_id": task.ID,
	})

	return task, nil
}

// GetTask retrieves one of the owner's tasks
func (s *TaskService) GetTask(ctx context.Context, ownerID, id uuid.UUID) (*entities.Task, error) {
	task, err := s.taskRepo.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	s.markToday(task, s.now())
	return task, nil
}

// ListTasks returns one page of the owner's tasks
func (s *TaskService) ListTasks(ctx context.Context, ownerID uuid.UUID, query ports.ListTasksQuery) (*ports.PaginatedResponse[*entities.Task], error) {
	now := s.now()

	filter := ports.TaskFilter{
		Limit:     query.Limit,
		Offset:    query.Offset,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		filter.Search = &search
	}
	if query.CompletedToday != nil {
		today := streak.CalendarDay(now, s.engine.Location())
		if *query.CompletedToday {
			filter.CompletedOn = &today
		} else {
			filter.NotCompletedOn = &today
		}
	}

	tasks, err := s.taskRepo.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	total, err := s.taskRepo.CountByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	for _, task := range tasks {
		s.markToday(task, now)
	}

	return &ports.PaginatedResponse[*entities.Task]{
		Data:   tasks,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// UpdateTask changes title and description. Streak fields are never touched.
func (s *TaskService) UpdateTask(ctx context.Context, ownerID, id uuid.UUID, req ports.UpdateTaskRequest) (*entities.Task, error) {
	unlock, err := s.locker.Lock(ctx, taskLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	defer unlock()

	task, err := s.taskRepo.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if err := task.Rename(req.Title, req.Description); err != nil {
		return nil, err
	}

	now := s.now()
	task.UpdatedAt = now
	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	s.markToday(task, now)
	return task, nil
}

// DeleteTask removes one of the owner's tasks
func (s *TaskService) DeleteTask(ctx context.Context, ownerID, id uuid.UUID) error {
	if err := s.taskRepo.Delete(ctx, id, ownerID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	s.logger.LogUserAction(ownerID.String(), "delete_task", map[string]interface{}{
		"task_id": id,
	})
	return nil
}

// CompleteTask records a completion for the current calendar day.
//
// The read-modify-write runs under the per-task lock and inside a
// transaction that holds the row lock, and the final write is conditional on
// the version that was read. Either every streak field changes or none does.
func (s *TaskService) CompleteTask(ctx context.Context, ownerID, id uuid.UUID) (*entities.Task, error) {
	unlock, err := s.locker.Lock(ctx, taskLockKey(id))
	if err != nil {
		s.metrics.ObserveCompletion(completionOutcome(err), 0)
		return nil, fmt.Errorf("complete task: %w", err)
	}
	defer unlock()

	var completed *entities.Task
	err = s.taskRepo.InTx(ctx, func(tx ports.TaskTx) error {
		task, err := tx.GetOwnedForUpdate(ctx, id, ownerID)
		if err != nil {
			return err
		}

		now := s.now()
		next, err := s.engine.RecordCompletion(task.StreakState(), now)
		if err != nil {
			return err
		}

		task.ApplyStreak(next)
		task.UpdatedAt = now
		if err := tx.SaveStreak(ctx, task); err != nil {
			return err
		}

		task.CompletedToday = true
		completed = task
		return nil
	})
	if err != nil {
		s.metrics.ObserveCompletion(completionOutcome(err), 0)
		switch {
		case errors.Is(err, streak.ErrAlreadyCompleted):
			s.logger.WithUserID(ownerID.String()).WithTaskID(id.String()).Debug("Task already completed today")
		case errors.Is(err, streak.ErrOutOfOrder):
			s.logger.WithUserID(ownerID.String()).WithTaskID(id.String()).WithError(err).Warn("Completion clock is behind the last recorded day")
		}
		return nil, fmt.Errorf("complete task: %w", err)
	}

	s.metrics.ObserveCompletion(metrics.OutcomeCompleted, completed.StreakCurrent)
	s.logger.LogUserAction(ownerID.String(), "complete_task", map[string]interface{}{
		"task_id":        completed.ID,
		"streak_current": completed.StreakCurrent,
		"streak_max":     completed.StreakMax,
	})

	return completed, nil
}

// RecomputeStreak rebuilds the stored streak fields from the completion
// history. The stored maximum is kept if it is higher than the rebuilt one.
func (s *TaskService) RecomputeStreak(ctx context.Context, ownerID, id uuid.UUID) (*entities.Task, error) {
	unlock, err := s.locker.Lock(ctx, taskLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("recompute streak: %w", err)
	}
	defer unlock()

	var result *entities.Task
	err = s.taskRepo.InTx(ctx, func(tx ports.TaskTx) error {
		task, err := tx.GetOwnedForUpdate(ctx, id, ownerID)
		if err != nil {
			return err
		}

		next := s.engine.Recompute(task.CompletedDates)
		next.Max = max(next.Max, task.StreakMax)

		changed := streakChanged(task, next)
		s.metrics.ObserveRecompute(changed)
		if changed {
			reason := "stored streak differs from history"
			if err := s.engine.CheckConsistency(task.StreakState()); err != nil {
				reason = err.Error()
			}
			s.logger.WithTaskID(task.ID.String()).Warnw("Repairing inconsistent streak",
				"reason", reason,
				"stored_current", task.StreakCurrent,
				"stored_max", task.StreakMax,
				"current", next.Current,
				"max", next.Max,
			)
			task.ApplyStreak(next)
			task.UpdatedAt = s.now()
			if err := tx.SaveStreak(ctx, task); err != nil {
				return err
			}
		}

		result = task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recompute streak: %w", err)
	}

	s.markToday(result, s.now())
	return result, nil
}

// TodaySummary aggregates the owner's tasks for the current calendar day.
// A streak counts as live when its last completion was today or yesterday.
func (s *TaskService) TodaySummary(ctx context.Context, ownerID uuid.UUID) (*ports.TodaySummary, error) {
	tasks, err := s.taskRepo.ListByOwner(ctx, ownerID, ports.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("today summary: %w", err)
	}

	now := s.now()
	loc := s.engine.Location()
	summary := &ports.TodaySummary{
		Date:       streak.CalendarDay(now, loc).Format("2006-01-02"),
		TotalTasks: len(tasks),
	}

	for _, task := range tasks {
		if s.engine.IsCompletedToday(task.StreakState(), now) {
			summary.CompletedToday++
		}
		if task.StreakLast != nil && streak.DaysBetween(*task.StreakLast, now, loc) <= 1 {
			summary.BestCurrentStreak = max(summary.BestCurrentStreak, task.StreakCurrent)
		}
		summary.BestMaxStreak = max(summary.BestMaxStreak, task.StreakMax)
	}
	summary.RemainingToday = summary.TotalTasks - summary.CompletedToday

	return summary, nil
}

func (s *TaskService) markToday(task *entities.Task, now time.Time) {
	task.CompletedToday = s.engine.IsCompletedToday(task.StreakState(), now)
}

func taskLockKey(id uuid.UUID) string {
	return "task:" + id.String()
}

func streakChanged(task *entities.Task, next streak.State) bool {
	if task.StreakCurrent != next.Current || task.StreakMax != next.Max {
		return true
	}
	if (task.StreakLast == nil) != (next.Last == nil) {
		return true
	}
	return task.StreakLast != nil && !task.StreakLast.Equal(*next.Last)
}

func completionOutcome(err error) string {
	switch {
	case errors.Is(err, streak.ErrAlreadyCompleted):
		return metrics.OutcomeAlreadyCompleted
	case errors.Is(err, entities.ErrTaskNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, entities.ErrConcurrentUpdate), errors.Is(err, streak.ErrOutOfOrder):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
