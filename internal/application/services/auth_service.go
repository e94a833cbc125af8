package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/streakboard/core/internal/domain/entities"
	"github.com/streakboard/core/internal/infrastructure/config"
	"github.com/streakboard/core/internal/infrastructure/logger"
	"github.com/streakboard/core/internal/ports"
)

// Claims represents the JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// AuthService handles authentication operations
type AuthService struct {
	userRepo  ports.UserRepository
	authRepo  ports.AuthRepository
	jwtConfig config.JWTConfig
	logger    *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo ports.UserRepository, authRepo ports.AuthRepository, jwtConfig config.JWTConfig, logger *logger.Logger) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		authRepo:  authRepo,
		jwtConfig: jwtConfig,
		logger:    logger.WithComponent("auth_service"),
	}
}

// Register creates a new user account
func (s *AuthService) Register(ctx context.Context, req ports.RegisterRequest) (*ports.AuthResponse, error) {
	user, err := createUser(ctx, s.userRepo, req)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("User registered successfully", "user_id", user.ID, "email", user.Email)

	return s.issueTokens(ctx, user)
}

// Login authenticates a user and returns tokens
func (s *AuthService) Login(ctx context.Context, req ports.LoginRequest) (*ports.AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, entities.ErrUserNotFound) {
			s.logger.Warnw("Login attempt with non-existent email", "email", req.Email)
			return nil, entities.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !user.IsActive {
		s.logger.Warnw("Login attempt with inactive account", "email", req.Email, "user_id", user.ID)
		return nil, entities.ErrInactiveUser
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warnw("Login attempt with invalid password", "email", req.Email, "user_id", user.ID)
		return nil, entities.ErrInvalidCredentials
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		s.logger.Warnw("Failed to update last login time", "error", err, "user_id", user.ID)
	}

	s.logger.Infow("User logged in successfully", "user_id", user.ID, "email", user.Email)

	return s.issueTokens(ctx, user)
}

// RefreshToken rotates a refresh token: the presented one is revoked and a
// fresh pair is issued.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*ports.AuthResponse, error) {
	tokenHash := hashToken(refreshToken)

	storedToken, err := s.authRepo.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, entities.ErrUnauthenticated) {
			return nil, fmt.Errorf("%w: invalid refresh token", entities.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}

	if storedToken.IsExpired() {
		return nil, fmt.Errorf("%w: refresh token expired", entities.ErrUnauthenticated)
	}

	if storedToken.IsRevoked() {
		s.logger.LogSecurityEvent("refresh_token_reuse", storedToken.UserID.String(), "", nil)
		return nil, fmt.Errorf("%w: refresh token revoked", entities.ErrUnauthenticated)
	}

	user, err := s.userRepo.GetByID(ctx, storedToken.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: user not found", entities.ErrUnauthenticated)
	}

	if !user.IsActive {
		return nil, entities.ErrInactiveUser
	}

	if err := s.authRepo.RevokeRefreshToken(ctx, tokenHash); err != nil {
		s.logger.Warnw("Failed to revoke old refresh token", "error", err, "user_id", user.ID)
	}

	return s.issueTokens(ctx, user)
}

// Logout revokes all refresh tokens for a user
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	if err := s.authRepo.RevokeAllUserTokens(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}

	s.logger.Infow("User logged out successfully", "user_id", userID)
	return nil
}

// ValidateToken validates a JWT token and returns claims
func (s *AuthService) ValidateToken(tokenString string) (*ports.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtConfig.Secret), nil
	}, jwt.WithIssuer(s.jwtConfig.Issuer))

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return &ports.Claims{
		UserID: claims.UserID,
		Email:  claims.Email,
	}, nil
}

// Identify resolves a bearer token to the id of the user it was issued for.
func (s *AuthService) Identify(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, entities.ErrUnauthenticated
	}

	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", entities.ErrUnauthenticated, err)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed subject", entities.ErrUnauthenticated)
	}

	return userID, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *entities.User) (*ports.AuthResponse, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.generateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	user.PasswordHash = ""

	return &ports.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwtConfig.ExpiresIn.Seconds()),
		User:         user,
	}, nil
}

func (s *AuthService) generateAccessToken(user *entities.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID.String(),
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtConfig.ExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.jwtConfig.Issuer,
			Subject:   user.ID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtConfig.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (s *AuthService) generateRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	token := hex.EncodeToString(tokenBytes)

	expiresAt := time.Now().Add(s.jwtConfig.RefreshExpiresIn)
	if err := s.authRepo.CreateRefreshToken(ctx, userID, hashToken(token), expiresAt); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return token, nil
}

// hashToken is the at-rest form of a refresh token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
