package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shzded/MediCall-AI/internal/audit"
	"github.com/shzded/MediCall-AI/internal/auth"
	"github.com/shzded/MediCall-AI/internal/rbac"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access/refresh token pair for a staff member",
	Long: `Issue an access/refresh token pair for a staff member.

Examples:
  medicall token --user dr.huber --role doctor
  medicall token --user empfang --role assistant`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		role, _ := cmd.Flags().GetString("role")
		if user == "" {
			return fmt.Errorf("--user is required")
		}
		if !rbac.Valid(role) {
			return fmt.Errorf("--role must be one of %v", rbac.StaffRoles)
		}

		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		m, err := auth.NewManager(cfg.Auth)
		if err != nil {
			return err
		}
		pair, err := m.IssuePair(time.Now(), user, role)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if db, err := openDB(ctx, cfg); err != nil {
			log.Warn("token issuance not audited", "err", err)
		} else {
			defer db.Close()
			if err := audit.NewService(audit.NewPostgresRepo(db)).LogAuth(ctx, audit.EventTypeTokenIssued, user, role, ""); err != nil {
				log.Warn("token issuance not audited", "err", err)
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pair)
	},
}

func init() {
	tokenCmd.Flags().String("user", "", "staff user id")
	tokenCmd.Flags().String("role", rbac.RoleAssistant, "admin, doctor or assistant")
}
