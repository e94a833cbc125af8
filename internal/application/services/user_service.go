package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/streakboard/core/internal/domain/entities"
	"github.com/streakboard/core/internal/infrastructure/logger"
	"github.com/streakboard/core/internal/ports"
)

// passwordCost is lowered by tests.
var passwordCost = bcrypt.DefaultCost

// UserService handles user-related operations
type UserService struct {
	userRepo ports.UserRepository
	logger   *logger.Logger
}

// NewUserService creates a new user service
func NewUserService(userRepo ports.UserRepository, logger *logger.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		logger:   logger.WithComponent("user_service"),
	}
}

// CreateUser creates an active user without issuing tokens. Used by the
// user create command.
func (s *UserService) CreateUser(ctx context.Context, req ports.RegisterRequest) (*entities.User, error) {
	user, err := createUser(ctx, s.userRepo, req)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("User created successfully", "user_id", user.ID, "email", user.Email)

	user.PasswordHash = ""
	return user, nil
}

// GetUserProfile returns the user without its password hash
func (s *UserService) GetUserProfile(ctx context.Context, userID uuid.UUID) (*entities.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}

	user.PasswordHash = ""
	return user, nil
}

func createUser(ctx context.Context, repo ports.UserRepository, req ports.RegisterRequest) (*entities.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email %s is taken", entities.ErrUserExists, email)
	} else if !errors.Is(err, entities.ErrUserNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	if _, err := repo.GetByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username %s is taken", entities.ErrUserExists, username)
	} else if !errors.Is(err, entities.ErrUserNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), passwordCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &entities.User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hashedPassword),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}
