package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shzded/MediCall-AI/internal/config"
	"github.com/shzded/MediCall-AI/pkg/logger"
	"github.com/shzded/MediCall-AI/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:           "medicall",
	Short:         "Practice call intake, enrichment and statistics service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		// A missing .env is normal in containers.
		_ = godotenv.Load(envFile)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd, seedCmd)
}

// bootstrap loads config and installs the process logger.
func bootstrap() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	return cfg, log, nil
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	return utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
}
