package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/streakboard/core/internal/adapters/repository"
	"github.com/streakboard/core/internal/application/services"
	"github.com/streakboard/core/internal/infrastructure/cache"
	"github.com/streakboard/core/internal/infrastructure/config"
	"github.com/streakboard/core/internal/infrastructure/database"
	"github.com/streakboard/core/internal/infrastructure/logger"
	"github.com/streakboard/core/internal/infrastructure/server"
	"github.com/streakboard/core/internal/ports"
)

// Set at build time with -ldflags "-X ...".
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Streakboard API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage database migrations (up, down, version)",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigration("up", steps)
		},
	}
	upCmd.Flags().Int("steps", 0, "Number of migrations to apply (0 = all)")

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigration("down", steps)
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to revert (0 = all)")

	migrateCmd.AddCommand(upCmd, downCmd, &cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showMigrationVersion()
		},
	})

	return migrateCmd
}

// NewUserCommand creates the user management command
func NewUserCommand() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
	}

	createUserCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			return createUser(cmd.Context(), ports.RegisterRequest{
				Email:    email,
				Username: username,
				Password: password,
			})
		},
	}

	createUserCmd.Flags().String("email", "", "User email (required)")
	createUserCmd.Flags().String("username", "", "Username (required)")
	createUserCmd.Flags().String("password", "", "User password (required)")
	for _, name := range []string{"email", "username", "password"} {
		_ = createUserCmd.MarkFlagRequired(name)
	}

	userCmd.AddCommand(createUserCmd)
	return userCmd
}

// NewTokensCommand creates the refresh token maintenance command
func NewTokensCommand() *cobra.Command {
	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Refresh token maintenance",
	}

	tokensCmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired refresh tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cleanupTokens(cmd.Context())
		},
	})

	return tokensCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print Streakboard version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Streakboard %s\n", Version)
			fmt.Printf("Build Date: %s\n", BuildDate)
			fmt.Printf("Git Commit: %s\n", GitCommit)
		},
	}
}

func runServer(ctx context.Context) error {
	cfg, appLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer appLogger.Close()

	db, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	srv, err := server.New(cfg, db, redisClient, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		appLogger.Infow("Starting Streakboard API server",
			"port", cfg.Server.Port,
			"environment", cfg.App.Environment,
			"lock_backend", cfg.Lock.Backend,
			"timezone", cfg.Streak.Timezone,
		)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	appLogger.Info("Server stopped")
	return nil
}

func newMigrator(cfg *config.Config) (*migrate.Migrate, func(), error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	driver, err := postgres.WithInstance(db.DB.DB, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.Database.MigrationsPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return m, func() { db.Close() }, nil
}

func runMigration(direction string, steps int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	m, closeDB, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("No migrations to run")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("Migration %s completed successfully\n", direction)
	return nil
}

func showMigrationVersion() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	m, closeDB, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("No migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	fmt.Printf("Current migration version: %d\n", version)
	fmt.Printf("Dirty: %t\n", dirty)
	return nil
}

func createUser(ctx context.Context, req ports.RegisterRequest) error {
	cfg, appLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer appLogger.Close()

	db, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	userService := services.NewUserService(repository.NewUserRepository(db.DB), appLogger)
	user, err := userService.CreateUser(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("User created successfully:\n")
	fmt.Printf("  ID: %s\n", user.ID)
	fmt.Printf("  Email: %s\n", user.Email)
	fmt.Printf("  Username: %s\n", user.Username)
	return nil
}

func cleanupTokens(ctx context.Context) error {
	cfg, appLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer appLogger.Close()

	db, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := repository.NewAuthRepository(db.DB).CleanupExpiredTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to clean up tokens: %w", err)
	}

	appLogger.Infow("Expired refresh tokens removed", "count", removed)
	return nil
}

func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, appLogger, nil
}
