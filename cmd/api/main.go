package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/streakboard/core/cmd/api/commands"
)

// @title Streakboard API
// @version 1.0
// @description Daily tasks with completion streaks.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	rootCmd := &cobra.Command{
		Use:   "streakboard",
		Short: "Streakboard API Server",
		Long:  `Streakboard tracks recurring tasks and the streak of consecutive calendar days on which each one was completed.`,
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewUserCommand())
	rootCmd.AddCommand(commands.NewTokensCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
