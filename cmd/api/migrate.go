package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shzded/MediCall-AI/migrations"
	"github.com/shzded/MediCall-AI/pkg/utils"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		db, err := openDB(ctx, cfg)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer db.Close()

		applied, err := utils.Migrate(ctx, db, migrations.FS, migrations.Dir)
		if err != nil {
			return err
		}
		log.Info("migrations applied", "versions", applied)
		return nil
	},
}
