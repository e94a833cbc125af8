package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/streakboard/core/internal/domain/entities"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error)
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
	GetByUsername(ctx context.Context, username string) (*entities.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// TaskRepository persists tasks. Every read and write is scoped by owner:
// a task that exists but belongs to someone else is reported as
// entities.ErrTaskNotFound.
type TaskRepository interface {
	Create(ctx context.Context, task *entities.Task) error
	GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*entities.Task, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filter TaskFilter) ([]*entities.Task, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID, filter TaskFilter) (int, error)
	// Update writes title and description only. It fails with
	// entities.ErrConcurrentUpdate when task.Version is stale.
	Update(ctx context.Context, task *entities.Task) error
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	// InTx runs fn in one database transaction.
	InTx(ctx context.Context, fn func(tx TaskTx) error) error
}

// TaskTx is the transactional view used by the completion flow.
type TaskTx interface {
	// GetOwnedForUpdate loads the task and holds a row lock until the
	// transaction ends.
	GetOwnedForUpdate(ctx context.Context, id, ownerID uuid.UUID) (*entities.Task, error)
	// SaveStreak writes history and streak fields in one statement,
	// conditional on task.Version. On success task.Version is bumped.
	SaveStreak(ctx context.Context, task *entities.Task) error
}

// AuthRepository defines the interface for authentication operations
type AuthRepository interface {
	CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// TaskLocker serializes work on a single task across goroutines and, with a
// shared backend, across processes.
type TaskLocker interface {
	// Lock blocks until the key is held or ctx is done. The returned
	// function releases the lock.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// TaskFilter narrows ListByOwner and CountByOwner.
type TaskFilter struct {
	Search *string
	// CompletedOn keeps tasks whose streak_last equals this calendar day.
	CompletedOn *time.Time
	// NotCompletedOn keeps tasks without a completion on this day.
	NotCompletedOn *time.Time
	Limit          int
	Offset         int
	SortBy         string
	SortOrder      string
}

// RefreshToken represents a refresh token record
type RefreshToken struct {
	ID        int        `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	TokenHash string     `json:"token_hash" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RevokedAt *time.Time `json:"revoked_at" db:"revoked_at"`
}

// IsExpired checks if the refresh token is expired
func (rt *RefreshToken) IsExpired() bool {
	return time.Now().After(rt.ExpiresAt)
}

// IsRevoked checks if the refresh token is revoked
func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

// IsValid checks if the refresh token is valid
func (rt *RefreshToken) IsValid() bool {
	return !rt.IsExpired() && !rt.IsRevoked()
}
