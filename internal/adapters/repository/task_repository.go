package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/streakboard/core/internal/domain/entities"
	"github.com/streakboard/core/internal/infrastructure/database"
	"github.com/streakboard/core/internal/ports"
)

const taskColumns = `id, owner_id, title, description, completed_dates, streak_current,
		streak_max, streak_last, created_at, updated_at, version`

var taskSortColumns = map[string]string{
	"created_at":     "created_at",
	"title":          "title",
	"streak_current": "streak_current",
	"streak_max":     "streak_max",
}

// TaskRepositoryImpl implements the TaskRepository interface
type TaskRepositoryImpl struct {
	db *database.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *database.DB) ports.TaskRepository {
	return &TaskRepositoryImpl{db: db}
}

func (r *TaskRepositoryImpl) Create(ctx context.Context, task *entities.Task) error {
	query := `
		INSERT INTO tasks (id, owner_id, title, description, completed_dates, streak_current,
			streak_max, streak_last, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		task.ID, task.OwnerID, task.Title, task.Description, task.CompletedDates,
		task.StreakCurrent, task.StreakMax, task.StreakLast,
		task.CreatedAt, task.UpdatedAt, task.Version,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	return nil
}

func (r *TaskRepositoryImpl) GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*entities.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND owner_id = $2`

	return getTask(ctx, r.db.DB, query, id, ownerID)
}

func (r *TaskRepositoryImpl) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter ports.TaskFilter) ([]*entities.Task, error) {
	where, args := taskWhere(ownerID, filter)

	sortBy, ok := taskSortColumns[filter.SortBy]
	if !ok {
		sortBy = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		order = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY %s %s, id`, taskColumns, where, sortBy, order)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	tasks := []*entities.Task{}
	if err := r.db.DB.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	return tasks, nil
}

func (r *TaskRepositoryImpl) CountByOwner(ctx context.Context, ownerID uuid.UUID, filter ports.TaskFilter) (int, error) {
	where, args := taskWhere(ownerID, filter)
	query := `SELECT COUNT(*) FROM tasks WHERE ` + where

	var count int
	if err := r.db.DB.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}

	return count, nil
}

func (r *TaskRepositoryImpl) Update(ctx context.Context, task *entities.Task) error {
	query := `
		UPDATE tasks
		SET title = $3, description = $4, updated_at = $5, version = version + 1
		WHERE id = $1 AND owner_id = $2 AND version = $6`

	result, err := r.db.DB.ExecContext(ctx, query,
		task.ID, task.OwnerID, task.Title, task.Description, task.UpdatedAt, task.Version,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	if err := r.checkVersioned(ctx, result, task); err != nil {
		return err
	}

	task.Version++
	return nil
}

func (r *TaskRepositoryImpl) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	query := `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`

	result, err := r.db.DB.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return entities.ErrTaskNotFound
	}

	return nil
}

func (r *TaskRepositoryImpl) InTx(ctx context.Context, fn func(tx ports.TaskTx) error) error {
	return r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		return fn(&taskTx{tx: tx})
	})
}

// checkVersioned tells a stale version apart from a missing task when an
// update touched no rows.
func (r *TaskRepositoryImpl) checkVersioned(ctx context.Context, result sql.Result, task *entities.Task) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1 AND owner_id = $2)`
	if err := r.db.DB.GetContext(ctx, &exists, query, task.ID, task.OwnerID); err != nil {
		return fmt.Errorf("check task exists: %w", err)
	}
	if !exists {
		return entities.ErrTaskNotFound
	}
	return entities.ErrConcurrentUpdate
}

type taskTx struct {
	tx *sqlx.Tx
}

func (t *taskTx) GetOwnedForUpdate(ctx context.Context, id, ownerID uuid.UUID) (*entities.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND owner_id = $2 FOR UPDATE`

	return getTask(ctx, t.tx, query, id, ownerID)
}

func (t *taskTx) SaveStreak(ctx context.Context, task *entities.Task) error {
	query := `
		UPDATE tasks
		SET completed_dates = $3, streak_current = $4, streak_max = $5, streak_last = $6,
			updated_at = $7, version = version + 1
		WHERE id = $1 AND owner_id = $2 AND version = $8`

	result, err := t.tx.ExecContext(ctx, query,
		task.ID, task.OwnerID, task.CompletedDates, task.StreakCurrent, task.StreakMax,
		task.StreakLast, task.UpdatedAt, task.Version,
	)
	if err != nil {
		return fmt.Errorf("save task streak: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	// The row is locked by GetOwnedForUpdate, so a miss means the version moved.
	if rowsAffected == 0 {
		return entities.ErrConcurrentUpdate
	}

	task.Version++
	return nil
}

func getTask(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*entities.Task, error) {
	var task entities.Task
	err := sqlx.GetContext(ctx, q, &task, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	return &task, nil
}

// likeEscaper makes a search term match literally under ILIKE, whose default
// escape character is the backslash.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func taskWhere(ownerID uuid.UUID, filter ports.TaskFilter) (string, []interface{}) {
	conds := []string{"owner_id = $1"}
	args := []interface{}{ownerID}

	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		args = append(args, likeEscaper.Replace(strings.TrimSpace(*filter.Search)))
		conds = append(conds, fmt.Sprintf("title ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if filter.CompletedOn != nil {
		args = append(args, *filter.CompletedOn)
		conds = append(conds, fmt.Sprintf("streak_last = $%d", len(args)))
	}
	if filter.NotCompletedOn != nil {
		args = append(args, *filter.NotCompletedOn)
		conds = append(conds, fmt.Sprintf("(streak_last IS NULL OR streak_last <> $%d)", len(args)))
	}

	return strings.Join(conds, " AND "), args
}
