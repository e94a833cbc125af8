package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streakboard/core/internal/domain/entities"
	"github.com/streakboard/core/internal/infrastructure/database"
	"github.com/streakboard/core/internal/ports"
)

var taskRowColumns = []string{
	"id", "owner_id", "title", "description", "completed_dates", "streak_current",
	"streak_max", "streak_last", "created_at", "updated_at", "version",
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "postgres")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func taskRow(id, owner uuid.UUID, version int) *sqlmock.Rows {
	created := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	last := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(taskRowColumns).AddRow(
		id.String(), owner.String(), "Read", "20 pages",
		`{"2024-01-01 09:00:00+00","2024-01-02 09:30:00+00"}`,
		2, 2, last, created, created, version,
	)
}

func TestTaskRepository_GetOwned(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTaskRepository(database.Wrap(db))
	id, owner := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks WHERE id = $1 AND owner_id = $2")).
		WithArgs(id, owner).
		WillReturnRows(taskRow(id, owner, 3))

	task, err := repo.GetOwned(context.Background(), id, owner)
	require.NoError(t, err)

	assert.Equal(t, id, task.ID)
	assert.Equal(t, owner, task.OwnerID)
	assert.Len(t, task.CompletedDates, 2)
	assert.Equal(t, 2, task.StreakCurrent)
	require.NotNil(t, task.StreakLast)
	assert.Equal(t, 3, task.Version)
}

func TestTaskRepository_GetOwned_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTaskRepository(database.Wrap(db))

	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks WHERE id = $1 AND owner_id = $2")).
		WillReturnRows(sqlmock.NewRows(taskRowColumns))

	_, err := repo.GetOwned(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, entities.ErrTaskNotFound)
}

func TestTaskRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTaskRepository(database.Wrap(db))

	task, err := entities.NewTask(uuid.New(), "Read", "20 pages", time.Now())
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tasks")).
		WithArgs(task.ID, task.OwnerID, "Read", "20 pages", "{}", 0, 0, nil,
			sqlmock.AnyArg(), sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), task))
}

func TestTaskRepository_ListByOwner(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTaskRepository(database.Wrap(db))
	owner := uuid.New()
	search := "read"

	mock.ExpectQuery(`WHERE owner_id = \$1 AND title ILIKE '%' \|\| \$2 \|\| '%' ORDER BY streak_max ASC, id LIMIT \$3 OFFSET \$4`).
		WithArgs(owner, "read", 10, 5).
		WillReturnRows(taskRow(uuid.New(), owner, 1))

	tasks, err := repo.ListByOwner(context.Background(), owner, ports.TaskFilter{
		Search:    &search,
		Limit:     10,
		Offset:    5,
		SortBy:    "streak_max",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestTaskRepository_ListByOwner_SearchIsLiteral(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTaskRepository(database.Wrap(db))
	owner := uuid.New()
	search := ` 100%_done\ `

	mock.ExpectQuery(`title ILIKE`).
		WithArgs(owner, `100\%\_done\\`).
		WillReturnRows(sqlmock.NewRows(taskRowColumns))

	_, err := repo.ListByOwner(context.Background(), owner, ports.TaskFilter{Search: &search})
	require.NoError(t, err)
}

func TestTaskRepository_ListByOwner_UnknownSortFallsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTaskRepository(database.Wrap(db))
	owner := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE owner_id = $1 ORDER BY created_at DESC, id")).
		WithArgs(owner).
		WillReturnRows(sqlmock.NewRows(taskRowColumns))

	tasks, err := repo.ListByOwner(context.Background(), owner, ports.TaskFilter{SortBy: "password_hash; DROP"})
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestTaskRepository_CountByOwner_CompletedOn(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTaskRepository(database.Wrap(db))
	owner := uuid.New()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM tasks WHERE owner_id = $1 AND streak_last = $2")).
		WithArgs(owner, day).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountByOwner(context.Background(), owner, ports.TaskFilter{CompletedOn: &day})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestTaskRepository_Update(t *testing.T) {
	tests := []struct {
		name    string
		exists  bool
		updated int64
		wantErr error
	}{
		{"updated", true, 1, nil},
		{"stale version", true, 0, entities.ErrConcurrentUpdate},
		{"missing", false, 0, entities.ErrTaskNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewTaskRepository(database.Wrap(db))
			task := &entities.Task{ID: uuid.New(), OwnerID: uuid.New(), Title: "Swim", Description: "1k", Version: 2}

			mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks")).
				WithArgs(task.ID, task.OwnerID, "Swim", "1k", sqlmock.AnyArg(), 2).
				WillReturnResult(sqlmock.NewResult(0, tt.updated))
			if tt.updated == 0 {
				mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
					WithArgs(task.ID, task.OwnerID).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))
			}

			err := repo.Update(context.Background(), task)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 2, task.Version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3, task.Version)
		})
	}
}

func TestTaskRepository_Delete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTaskRepository(database.Wrap(db))
	id, owner := uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tasks WHERE id = $1 AND owner_id = $2")).
		WithArgs(id, owner).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tasks")).
		WithArgs(id, owner).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), id, owner))
	assert.ErrorIs(t, repo.Delete(context.Background(), id, owner), entities.ErrTaskNotFound)
}

func TestTaskRepository_InTx_SaveStreak(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTaskRepository(database.Wrap(db))
	id, owner := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(id, owner).
		WillReturnRows(taskRow(id, owner, 4))
	mock.ExpectExec(regexp.QuoteMeta("SET completed_dates = $3")).
		WithArgs(id, owner, sqlmock.AnyArg(), 3, 3, sqlmock.AnyArg(), sqlmock.AnyArg(), 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var saved *entities.Task
	err := repo.InTx(context.Background(), func(tx ports.TaskTx) error {
		task, err := tx.GetOwnedForUpdate(context.Background(), id, owner)
		if err != nil {
			return err
		}
		task.StreakCurrent, task.StreakMax = 3, 3
		saved = task
		return tx.SaveStreak(context.Background(), task)
	})
	require.NoError(t, err)
	assert.Equal(t, 5, saved.Version)
}

func TestTaskRepository_InTx_RollsBackOnStaleVersion(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTaskRepository(database.Wrap(db))
	task := &entities.Task{ID: uuid.New(), OwnerID: uuid.New(), Version: 1}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET completed_dates = $3")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx ports.TaskTx) error {
		return tx.SaveStreak(context.Background(), task)
	})
	assert.ErrorIs(t, err, entities.ErrConcurrentUpdate)
	assert.Equal(t, 1, task.Version)
}

func TestTaskRepository_InTx_PropagatesCallbackError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTaskRepository(database.Wrap(db))
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(ports.TaskTx) error { return boom })
	assert.ErrorIs(t, err, boom)
}
