package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streakboard/core/internal/domain/entities"
	"github.com/streakboard/core/internal/ports"
)

// fakeTaskRepo keeps tasks in memory. Reads hand out copies so callers can
// race the same way they would against a database.
type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*entities.Task
	saves int
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[uuid.UUID]*entities.Task)}
}

func cloneTask(t *entities.Task) *entities.Task {
	c := *t
	c.CompletedDates = append(entities.CompletionDates{}, t.CompletedDates...)
	if t.StreakLast != nil {
		last := *t.StreakLast
		c.StreakLast = &last
	}
	return &c
}

func (r *fakeTaskRepo) put(task *entities.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = cloneTask(task)
}

func (r *fakeTaskRepo) stored(id uuid.UUID) *entities.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneTask(r.tasks[id])
}

func (r *fakeTaskRepo) Create(ctx context.Context, task *entities.Task) error {
	r.put(task)
	return nil
}

func (r *fakeTaskRepo) GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*entities.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.OwnerID != ownerID {
		return nil, entities.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (r *fakeTaskRepo) matching(ownerID uuid.UUID, filter ports.TaskFilter) []*entities.Task {
	var out []*entities.Task
	for _, task := range r.tasks {
		if task.OwnerID != ownerID {
			continue
		}
		if filter.Search != nil && !strings.Contains(strings.ToLower(task.Title), strings.ToLower(*filter.Search)) {
			continue
		}
		if filter.CompletedOn != nil && (task.StreakLast == nil || !task.StreakLast.Equal(*filter.CompletedOn)) {
			continue
		}
		if filter.NotCompletedOn != nil && task.StreakLast != nil && task.StreakLast.Equal(*filter.NotCompletedOn) {
			continue
		}
		out = append(out, cloneTask(task))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *fakeTaskRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter ports.TaskFilter) ([]*entities.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.matching(ownerID, filter)
	if filter.Offset >= len(out) {
		return []*entities.Task{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *fakeTaskRepo) CountByOwner(ctx context.Context, ownerID uuid.UUID, filter ports.TaskFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matching(ownerID, filter)), nil
}

func (r *fakeTaskRepo) Update(ctx context.Context, task *entities.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tasks[task.ID]
	if !ok || stored.OwnerID != task.OwnerID {
		return entities.ErrTaskNotFound
	}
	if stored.Version != task.Version {
		return entities.ErrConcurrentUpdate
	}
	stored.Title, stored.Description, stored.UpdatedAt = task.Title, task.Description, task.UpdatedAt
	stored.Version++
	task.Version++
	return nil
}

func (r *fakeTaskRepo) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.OwnerID != ownerID {
		return entities.ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *fakeTaskRepo) InTx(ctx context.Context, fn func(tx ports.TaskTx) error) error {
	return fn(fakeTaskTx{repo: r})
}

// fakeTaskTx does not hold row locks; the version check is the only guard.
type fakeTaskTx struct {
	repo *fakeTaskRepo
}

func (tx fakeTaskTx) GetOwnedForUpdate(ctx context.Context, id, ownerID uuid.UUID) (*entities.Task, error) {
	return tx.repo.GetOwned(ctx, id, ownerID)
}

func (tx fakeTaskTx) SaveStreak(ctx context.Context, task *entities.Task) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	stored, ok := tx.repo.tasks[task.ID]
	if !ok || stored.Version != task.Version {
		return entities.ErrConcurrentUpdate
	}
	task.Version++
	tx.repo.tasks[task.ID] = cloneTask(task)
	tx.repo.saves++
	return nil
}

type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

type failingLocker struct{ err error }

func (l failingLocker) Lock(ctx context.Context, key string) (func(), error) {
	return nil, l.err
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*entities.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*entities.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *entities.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *user
	r.users[user.ID] = &c
	return nil
}

func (r *fakeUserRepo) find(match func(*entities.User) bool) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, entities.ErrUserNotFound
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	return r.find(func(u *entities.User) bool { return u.ID == id })
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	return r.find(func(u *entities.User) bool { return u.Email == email })
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	return r.find(func(u *entities.User) bool { return u.Username == username })
}

func (r *fakeUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return entities.ErrUserNotFound
	}
	u.LastLoginAt = &at
	return nil
}

type fakeAuthRepo struct {
	mu     sync.Mutex
	nextID int
	tokens map[string]*ports.RefreshToken
}

func newFakeAuthRepo() *fakeAuthRepo {
	return &fakeAuthRepo{tokens: make(map[string]*ports.RefreshToken)}
}

func (r *fakeAuthRepo) CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.tokens[tokenHash] = &ports.RefreshToken{
		ID: r.nextID, UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt, CreatedAt: time.Now(),
	}
	return nil
}

func (r *fakeAuthRepo) GetRefreshToken(ctx context.Context, tokenHash string) (*ports.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenHash]
	if !ok {
		return nil, entities.ErrUnauthenticated
	}
	c := *token
	return &c, nil
}

func (r *fakeAuthRepo) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token, ok := r.tokens[tokenHash]; ok && token.RevokedAt == nil {
		now := time.Now()
		token.RevokedAt = &now
	}
	return nil
}

func (r *fakeAuthRepo) RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, token := range r.tokens {
		if token.UserID == userID && token.RevokedAt == nil {
			token.RevokedAt = &now
		}
	}
	return nil
}

func (r *fakeAuthRepo) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, token := range r.tokens {
		if token.IsExpired() {
			delete(r.tokens, hash)
			n++
		}
	}
	return n, nil
}
