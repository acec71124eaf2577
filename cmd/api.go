package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/amhar4u/Smart-LMS-sub001/internal/application"
	"github.com/amhar4u/Smart-LMS-sub001/internal/config"
	"github.com/amhar4u/Smart-LMS-sub001/internal/database"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP + WebSocket API server",
	RunE:  runAPI,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending SQL migrations",
	RunE:  runMigrateUp,
}

func runAPI(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	api, err := application.NewAPI(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return api.Run(ctx)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return database.MigrateUp(cfg.DatabaseURL())
}
