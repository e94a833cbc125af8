package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/streakboard/core/internal/domain/entities"
)

// AuthService interface for authentication operations
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	ValidateToken(tokenString string) (*Claims, error)
	// Identify resolves a bearer token to a user id. Any failure is
	// reported as entities.ErrUnauthenticated.
	Identify(tokenString string) (uuid.UUID, error)
}

// UserService interface for user operations
type UserService interface {
	CreateUser(ctx context.Context, req RegisterRequest) (*entities.User, error)
	GetUserProfile(ctx context.Context, userID uuid.UUID) (*entities.User, error)
}

// TaskService interface for task and streak operations. Every method is
// scoped to the calling owner.
type TaskService interface {
	CreateTask(ctx context.Context, ownerID uuid.UUID, req CreateTaskRequest) (*entities.Task, error)
	GetTask(ctx context.Context, ownerID, id uuid.UUID) (*entities.Task, error)
	ListTasks(ctx context.Context, ownerID uuid.UUID, query ListTasksQuery) (*PaginatedResponse[*entities.Task], error)
	UpdateTask(ctx context.Context, ownerID, id uuid.UUID, req UpdateTaskRequest) (*entities.Task, error)
	DeleteTask(ctx context.Context, ownerID, id uuid.UUID) error
	CompleteTask(ctx context.Context, ownerID, id uuid.UUID) (*entities.Task, error)
	RecomputeStreak(ctx context.Context, ownerID, id uuid.UUID) (*entities.Task, error)
	TodaySummary(ctx context.Context, ownerID uuid.UUID) (*TodaySummary, error)
}

// Auth related types
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int64          `json:"expires_in"`
	User         *entities.User `json:"user"`
}

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Task related types
type CreateTaskRequest struct {
	Title       string `json:"title" validate:"required,notblank,max=100"`
	Description string `json:"description" validate:"required,notblank,max=500"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=100"`
	Description *string `json:"description" validate:"omitempty,notblank,max=500"`
}

// ListTasksQuery is bound from the query string of GET /tasks.
type ListTasksQuery struct {
	Search         string `query:"search" validate:"omitempty,max=100"`
	CompletedToday *bool  `query:"completed_today"`
	Limit          int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset         int    `query:"offset" validate:"omitempty,min=0"`
	SortBy         string `query:"sort_by" validate:"omitempty,oneof=created_at title streak_current streak_max"`
	SortOrder      string `query:"sort_order" validate:"omitempty,oneof=asc desc"`
}

// TodaySummary aggregates the owner's tasks for the current calendar day.
type TodaySummary struct {
	Date              string `json:"date"`
	TotalTasks        int    `json:"total_tasks"`
	CompletedToday    int    `json:"completed_today"`
	RemainingToday    int    `json:"remaining_today"`
	BestCurrentStreak int    `json:"best_current_streak"`
	BestMaxStreak     int    `json:"best_max_streak"`
}

// Response types for pagination and common structures
type PaginatedResponse[T any] struct {
	Data   []T `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
