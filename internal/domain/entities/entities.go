package entities

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/streakboard/core/internal/domain/streak"
)

// Common errors
var (
	ErrValidation         = errors.New("validation failed")
	ErrTaskNotFound       = errors.New("task not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("account is inactive")
	ErrConcurrentUpdate   = errors.New("task was modified concurrently")
)

// Field limits for tasks
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
)

// User represents an account that owns tasks
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password_hash"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Task is a recurring item that its owner completes at most once per day
type Task struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OwnerID        uuid.UUID       `json:"owner_id" db:"owner_id"`
	Title          string          `json:"title" db:"title"`
	Description    string          `json:"description" db:"description"`
	CompletedDates CompletionDates `json:"completed_dates" db:"completed_dates"`
	StreakCurrent  int             `json:"streak_current" db:"streak_current"`
	StreakMax      int             `json:"streak_max" db:"streak_max"`
	StreakLast     *time.Time      `json:"streak_last" db:"streak_last"`
	CompletedToday bool            `json:"completed_today" db:"-"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	Version        int             `json:"version" db:"version"`
}

// NewTask builds a task with an empty completion history.
func NewTask(ownerID uuid.UUID, title, description string, now time.Time) (*Task, error) {
	task := &Task{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Title:          strings.TrimSpace(title),
		Description:    strings.TrimSpace(description),
		CompletedDates: CompletionDates{},
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Validate checks the user-editable fields.
func (t *Task) Validate() error {
	if err := validateText("title", t.Title, MaxTitleLength); err != nil {
		return err
	}
	return validateText("description", t.Description, MaxDescriptionLength)
}

// Rename updates title and description, leaving streak fields alone.
func (t *Task) Rename(title, description *string) error {
	updated := *t
	if title != nil {
		updated.Title = strings.TrimSpace(*title)
	}
	if description != nil {
		updated.Description = strings.TrimSpace(*description)
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	t.Title, t.Description = updated.Title, updated.Description
	return nil
}

// StreakState extracts the fields the streak engine works on.
func (t *Task) StreakState() streak.State {
	return streak.State{
		CompletedDates: []time.Time(t.CompletedDates),
		Current:        t.StreakCurrent,
		Max:            t.StreakMax,
		Last:           t.StreakLast,
	}
}

// ApplyStreak copies an engine result back onto the task.
func (t *Task) ApplyStreak(s streak.State) {
	t.CompletedDates = CompletionDates(s.CompletedDates)
	t.StreakCurrent = s.Current
	t.StreakMax = s.Max
	t.StreakLast = s.Last
}

func validateText(field, value string, limit int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	if utf8.RuneCountInString(value) > limit {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrValidation, field, limit)
	}
	return nil
}

// CompletionDates maps a Go slice of instants onto a timestamptz[] column.
type CompletionDates []time.Time

// Value implements driver.Valuer.
func (d CompletionDates) Value() (driver.Value, error) {
	raw := make(pq.StringArray, len(d))
	for i, t := range d {
		raw[i] = t.Format(time.RFC3339Nano)
	}
	return raw.Value()
}

// Scan implements sql.Scanner.
func (d *CompletionDates) Scan(src interface{}) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("scan completed dates: %w", err)
	}

	dates := make(CompletionDates, 0, len(raw))
	for _, s := range raw {
		t, err := parseTimestamp(s)
		if err != nil {
			return fmt.Errorf("scan completed dates: %w", err)
		}
		dates = append(dates, t)
	}
	*d = dates
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return pq.ParseTimestamp(nil, s)
}
