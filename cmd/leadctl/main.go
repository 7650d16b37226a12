package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/immo-leads/internal/app"
	"github.com/ignite/immo-leads/internal/auth"
	"github.com/ignite/immo-leads/internal/config"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/repository/postgres"
	"github.com/ignite/immo-leads/internal/service/verification"
	"github.com/ignite/immo-leads/migrations"
)

func main() {
	var (
		configPath = envOr("LEADCTL_CONFIG", "config/config.yaml")
		timeout    = 10 * time.Minute
		cfg        *config.Config
	)

	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "Operations CLI for the lead backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "hash-password" {
				return nil
			}
			var err error
			if cfg, err = config.LoadFromEnv(configPath); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(logger.Config{Env: cfg.Logging.Env, Level: cfg.Logging.Level, Service: "leadctl", RedactPII: cfg.Logging.RedactPII})
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "path to the YAML config (env LEADCTL_CONFIG)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "overall command timeout")

	withTimeout := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), timeout)
	}

	// migrate
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout()
			defer cancel()
			db, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, err := postgres.Migrate(ctx, db, migrations.FS)
			for _, name := range applied {
				fmt.Println("applied", name)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("schema is up to date")
			}
			return nil
		},
	}

	// sequences
	sequencesCmd := &cobra.Command{Use: "sequences", Short: "Email drip operations"}
	runOnceCmd := &cobra.Command{
		Use:   "run-once",
		Short: "Deliver every due drip email now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout()
			defer cancel()
			a, err := app.New(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.Scheduler().RunOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show drip counters by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout()
			defer cancel()
			a, err := app.New(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.Sequences.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
	sequencesCmd.AddCommand(runOnceCmd, statsCmd)

	// admin
	adminCmd := &cobra.Command{Use: "admin", Short: "Manage back-office accounts"}
	var email, name, phone, password string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin (password from --password or LEADCTL_PASSWORD)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("LEADCTL_PASSWORD")
			}
			normalized, err := verification.NormalizePhone(phone)
			if err != nil {
				return fmt.Errorf("--phone: %w", err)
			}
			ctx, cancel := withTimeout()
			defer cancel()
			a, err := app.New(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			admin, err := a.Admins.CreateAdmin(ctx, email, name, normalized, password)
			if errors.Is(err, auth.ErrAdminExists) {
				return fmt.Errorf("an admin with email %s already exists", email)
			}
			if err != nil {
				return err
			}
			fmt.Printf("created admin %s (%s)\n", admin.Email, admin.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "login email (required)")
	createCmd.Flags().StringVar(&name, "name", "", "display name")
	createCmd.Flags().StringVar(&phone, "phone", "", "French mobile receiving the login code (required)")
	createCmd.Flags().StringVar(&password, "password", "", "password, at least 12 characters")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("phone")

	var resetEmail, resetPassword string
	passwordCmd := &cobra.Command{
		Use:   "password",
		Short: "Reset the password of an admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if resetPassword == "" {
				resetPassword = os.Getenv("LEADCTL_PASSWORD")
			}
			if len(resetPassword) < auth.MinPasswordLength {
				return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
			}
			hash, err := auth.HashPassword(resetPassword)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout()
			defer cancel()
			db, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.NewAdminRepo(db).SetPassword(ctx, resetEmail, hash); err != nil {
				return err
			}
			fmt.Println("password updated")
			return nil
		},
	}
	passwordCmd.Flags().StringVar(&resetEmail, "email", "", "login email (required)")
	passwordCmd.Flags().StringVar(&resetPassword, "password", "", "new password")
	_ = passwordCmd.MarkFlagRequired("email")
	adminCmd.AddCommand(createCmd, passwordCmd)

	hashCmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash of a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}

	root.AddCommand(migrateCmd, sequencesCmd, adminCmd, hashCmd)

	err := root.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
