package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/streakboard/core/docs"
	httpHandlers "github.com/streakboard/core/internal/adapters/http"
	"github.com/streakboard/core/internal/adapters/repository"
	"github.com/streakboard/core/internal/application/services"
	"github.com/streakboard/core/internal/domain/streak"
	"github.com/streakboard/core/internal/infrastructure/cache"
	"github.com/streakboard/core/internal/infrastructure/config"
	"github.com/streakboard/core/internal/infrastructure/database"
	"github.com/streakboard/core/internal/infrastructure/logger"
	"github.com/streakboard/core/internal/infrastructure/metrics"
	"github.com/streakboard/core/internal/ports"
)

// Server represents the HTTP server
type Server struct {
	echo        *echo.Echo
	metricsEcho *echo.Echo
	config      *config.Config
	logger      *logger.Logger
	db          *database.DB
	redis       *redis.Client
	metrics     *metrics.Metrics
}

// New creates a new server instance. redisClient may be nil unless the
// redis lock backend is configured.
func New(cfg *config.Config, db *database.DB, redisClient *redis.Client, appLogger *logger.Logger) (*Server, error) {
	e := echo.New()

	e.Validator = httpHandlers.NewValidator()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.App.Debug
	e.HTTPErrorHandler = customErrorHandler(appLogger)

	loc, err := cfg.Streak.Location()
	if err != nil {
		return nil, err
	}

	locker, err := newLocker(cfg.Lock, redisClient, appLogger)
	if err != nil {
		return nil, err
	}

	server := &Server{
		echo:   e,
		config: cfg,
		logger: appLogger,
		db:     db,
		redis:  redisClient,
	}
	if cfg.Metrics.Enabled {
		server.metrics = metrics.New()
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.DB)
	authRepo := repository.NewAuthRepository(db.DB)
	taskRepo := repository.NewTaskRepository(db)

	// Initialize services
	authService := services.NewAuthService(userRepo, authRepo, cfg.JWT, appLogger)
	userService := services.NewUserService(userRepo, appLogger)
	taskService := services.NewTaskService(taskRepo, locker, streak.NewEngine(loc), server.metrics, appLogger)

	// Initialize handlers
	authHandler := httpHandlers.NewAuthHandler(authService, appLogger)
	userHandler := httpHandlers.NewUserHandler(userService, appLogger)
	taskHandler := httpHandlers.NewTaskHandler(taskService, appLogger)

	server.setupMiddleware()
	if server.metrics != nil {
		server.setupMetrics()
	}
	server.setupRoutes(authHandler, userHandler, taskHandler, authService)

	return server, nil
}

func newLocker(cfg config.LockConfig, redisClient *redis.Client, appLogger *logger.Logger) (ports.TaskLocker, error) {
	switch cfg.Backend {
	case config.LockBackendRedis:
		if redisClient == nil {
			return nil, errors.New("redis lock backend requires a redis client")
		}
		return cache.NewRedisLocker(redisClient, cfg, appLogger), nil
	default:
		return cache.NewLocalLocker(cfg), nil
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(authHandler *httpHandlers.AuthHandler, userHandler *httpHandlers.UserHandler, taskHandler *httpHandlers.TaskHandler, authService ports.AuthService) {
	// Health check routes
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/health/detailed", s.detailedHealthCheck)
	s.echo.GET("/ready", s.readinessCheck)

	// Swagger documentation
	s.echo.GET("/docs/*", echoSwagger.WrapHandler)

	requireAuth := httpHandlers.RequireAuth(authService, s.logger)

	// API v1 routes
	v1 := s.echo.Group("/api/v1")

	// Auth routes (public)
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.RefreshToken)
	authGroup.POST("/logout", authHandler.Logout, requireAuth)

	// User routes (authenticated)
	userGroup := v1.Group("/users", requireAuth)
	userGroup.GET("/me", userHandler.GetCurrentUser)

	// Task routes (authenticated)
	taskGroup := v1.Group("/tasks", requireAuth)
	taskGroup.GET("", taskHandler.ListTasks)
	taskGroup.POST("", taskHandler.CreateTask)
	taskGroup.GET("/summary", taskHandler.TodaySummary)
	taskGroup.GET("/:id", taskHandler.GetTask)
	taskGroup.PUT("/:id", taskHandler.UpdateTask)
	taskGroup.DELETE("/:id", taskHandler.DeleteTask)
	taskGroup.POST("/:id/complete", taskHandler.CompleteTask)
	taskGroup.POST("/:id/recompute", taskHandler.RecomputeStreak)
}

// setupMetrics instruments every request and exposes /metrics, either on the
// API listener or on a dedicated one when a metrics port is configured.
func (s *Server) setupMetrics() {
	s.echo.Use(s.metrics.Middleware())

	handler := echo.WrapHandler(s.metrics.Handler())
	if s.config.Metrics.Port == 0 || s.config.Metrics.Port == s.config.Server.Port {
		s.echo.GET("/metrics", handler)
		return
	}

	s.metricsEcho = echo.New()
	s.metricsEcho.HideBanner = true
	s.metricsEcho.HidePort = true
	s.metricsEcho.GET("/metrics", handler)
}

// Health check handlers
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) detailedHealthCheck(c echo.Context) error {
	ctx := c.Request().Context()
	status := "ok"
	checks := make(map[string]interface{})

	// Database health check
	if err := s.db.HealthCheck(ctx); err != nil {
		status = "error"
		checks["database"] = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	} else {
		checks["database"] = map[string]interface{}{
			"status": "ok",
			"stats":  s.db.GetConnectionInfo(),
		}
	}

	if s.redis != nil {
		if err := cache.HealthCheck(ctx, s.redis); err != nil {
			status = "error"
			checks["redis"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		} else {
			checks["redis"] = map[string]interface{}{"status": "ok"}
		}
	}

	response := map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"checks": checks,
		"version": map[string]string{
			"app":         s.config.App.Version,
			"lock":        s.config.Lock.Backend,
			"environment": s.config.App.Environment,
		},
	}

	if status == "ok" {
		return c.JSON(http.StatusOK, response)
	}
	return c.JSON(http.StatusServiceUnavailable, response)
}

func (s *Server) readinessCheck(c echo.Context) error {
	if err := s.db.HealthCheck(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "database_not_ready",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It blocks until the API listener stops.
func (s *Server) Start() error {
	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.Server.IdleTimeout

	if s.metricsEcho != nil {
		metricsAddr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Metrics.Port)
		go func() {
			s.logger.Infow("Starting metrics server", "address", metricsAddr)
			if err := s.metricsEcho.Start(metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Errorw("Metrics server failed", "error", err)
			}
		}()
	}

	address := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Infow("Starting server", "address", address)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	if s.metricsEcho != nil {
		if err := s.metricsEcho.Shutdown(ctx); err != nil {
			s.logger.Warnw("Metrics server shutdown failed", "error", err)
		}
	}
	return s.echo.Shutdown(ctx)
}

// customErrorHandler renders every error as a ports.ErrorResponse
func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code = http.StatusInternalServerError
			body = ports.ErrorResponse{Message: http.StatusText(http.StatusInternalServerError)}
		)

		var (
			he *echo.HTTPError
			ve validator.ValidationErrors
		)
		switch {
		case errors.As(err, &he):
			code = he.Code
			switch msg := he.Message.(type) {
			case ports.ErrorResponse:
				body = msg
			case string:
				body = ports.ErrorResponse{Message: msg}
			case error:
				body = ports.ErrorResponse{Message: msg.Error()}
			default:
				body = ports.ErrorResponse{Message: http.StatusText(code)}
			}
			if he.Internal != nil {
				err = fmt.Errorf("%v, %w", err, he.Internal)
			}
		case errors.As(err, &ve):
			code = http.StatusBadRequest
			body = ports.ErrorResponse{Message: ve.Error(), Code: "validation_failed"}
		}

		if code >= http.StatusInternalServerError {
			logger.Errorw("Internal server error", "error", err, "path", c.Request().URL.Path)
		}

		// Send response
		if !c.Response().Committed {
			if c.Request().Method == http.MethodHead {
				err = c.NoContent(code)
			} else {
				err = c.JSON(code, body)
			}
			if err != nil {
				logger.Errorw("Error sending response", "error", err)
			}
		}
	}
}
