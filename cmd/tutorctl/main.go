package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/app"
	"github.com/noah-isme/tutorhub-api/migrations"
	"github.com/noah-isme/tutorhub-api/pkg/config"
	"github.com/noah-isme/tutorhub-api/pkg/database"
	"github.com/noah-isme/tutorhub-api/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tutorctl",
		Short:         "TutorHub operations tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newSeedAdminCmd())
	return root
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{Use: "migrate", Short: "Apply or inspect database migrations"}

	run := func(action func(context.Context, *database.Migrator) error) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, _ []string) error {
			cfg, logr, err := loadConfig()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck
			ctx, cancel := commandContext()
			defer cancel()

			db, err := database.NewPostgres(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			return action(ctx, database.NewMigrator(db, migrations.FS, "."))
		}
	}

	migrate.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply pending migrations", RunE: run(func(ctx context.Context, m *database.Migrator) error { return m.Up(ctx) })},
		&cobra.Command{Use: "down", Short: "Roll back the latest migration", RunE: run(func(ctx context.Context, m *database.Migrator) error { return m.Down(ctx) })},
		&cobra.Command{Use: "status", Short: "Print migration status", RunE: run(func(ctx context.Context, m *database.Migrator) error { return m.Status(ctx) })},
	)
	return migrate
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry sweep over open sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logr, err := loadConfig()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck
			ctx, cancel := commandContext()
			defer cancel()

			application, err := app.New(ctx, cfg, logr, app.InlineNotifications())
			if err != nil {
				return err
			}
			defer application.Close(ctx)

			result, err := application.Services.Expiry.RunOnce(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d changed=%d ending_soon=%d\n", result.Scanned, result.Changed, result.EndingSoon)
			return nil
		},
	}
}

func newSeedAdminCmd() *cobra.Command {
	var email, password, fullName string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the first administrator account if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			cfg, logr, err := loadConfig()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck
			ctx, cancel := commandContext()
			defer cancel()

			application, err := app.New(ctx, cfg, logr, app.InlineNotifications())
			if err != nil {
				return err
			}
			defer application.Close(ctx)

			created, err := application.Services.Users.SeedAdmin(ctx, email, fullName, password)
			if err != nil {
				return err
			}
			if created {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created admin %s\n", email)
			} else {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "admin %s already exists\n", email)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.Flags().StringVar(&fullName, "name", "Administrator", "admin full name")
	return cmd
}
