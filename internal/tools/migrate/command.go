package migrate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/nextest/portal-auth/internal/config"
	"github.com/nextest/portal-auth/internal/database"
	"github.com/nextest/portal-auth/internal/di"
	"github.com/nextest/portal-auth/internal/observability"
	"github.com/nextest/portal-auth/internal/repository"
	"github.com/nextest/portal-auth/internal/tools/common"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tooling",
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newUpCommand(opts),
		newStatusCommand(opts),
		newPlanCommand(opts),
		newCleanupCodesCommand(opts),
		newCleanupSessionsCommand(opts),
	)
	return cmd
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate up", func(ctx context.Context) ([]string, error) {
				if err := common.LoadEnvFile(opts.envFile); err != nil {
					return nil, err
				}
				runner, err := di.InitializeMigrationRunner()
				if err != nil {
					return nil, err
				}
				defer func() { _ = runner.Close() }()

				created, err := runner.Run()
				if err != nil {
					return nil, err
				}
				details := []string{"schema migration applied"}
				if len(created) > 0 {
					details = append(details, "created tables: "+strings.Join(created, ", "))
				}
				return details, nil
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check migration prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate status", func(ctx context.Context) ([]string, error) {
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				return status(ctx, db, cfg.OTELServiceName)
			})
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show migration plan (dry-run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate plan", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				return plan(db), nil
			})
		},
	}
}

func newCleanupCodesCommand(opts *options) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup-codes",
		Short: "Delete expired and consumed verification codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate cleanup-codes", func(ctx context.Context) ([]string, error) {
				if err := common.LoadEnvFile(opts.envFile); err != nil {
					return nil, err
				}
				janitor, err := di.InitializeJanitor()
				if err != nil {
					return nil, err
				}
				defer func() { _ = janitor.Close() }()
				return cleanupCodes(ctx, janitor.Codes(), time.Now().UTC(), olderThan)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "only delete codes older than this")
	return cmd
}

func newCleanupSessionsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-sessions",
		Short: "Delete expired database sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate cleanup-sessions", func(ctx context.Context) ([]string, error) {
				if err := common.LoadEnvFile(opts.envFile); err != nil {
					return nil, err
				}
				janitor, err := di.InitializeJanitor()
				if err != nil {
					return nil, err
				}
				defer func() { _ = janitor.Close() }()
				return cleanupSessions(ctx, janitor.Sessions(), time.Now().UTC())
			})
		},
	}
}

func status(ctx context.Context, db *gorm.DB, service string) ([]string, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	details := []string{"database reachable", "service: " + service}
	if pending := database.PendingTables(db); len(pending) > 0 {
		details = append(details, "pending tables: "+strings.Join(pending, ", "))
	} else {
		details = append(details, "migrations: up to date")
	}
	return details, nil
}

func plan(db *gorm.DB) []string {
	details := []string{"would apply AutoMigrate for domain models"}
	pending := database.PendingTables(db)
	if len(pending) == 0 {
		details = append(details, "all tables present; AutoMigrate would only add missing columns and indexes")
	} else {
		details = append(details, "would create: "+strings.Join(pending, ", "))
	}
	return append(details, "no mutation executed in plan mode")
}

func cleanupCodes(ctx context.Context, codes repository.VerificationCodeRepository, now time.Time, olderThan time.Duration) ([]string, error) {
	if olderThan < 0 {
		return nil, fmt.Errorf("older-than must not be negative")
	}
	cutoff := now.Add(-olderThan)
	deleted, err := codes.DeleteStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	observability.RecordOTPCleanup(ctx, deleted)
	return []string{
		fmt.Sprintf("deleted %d verification codes", deleted),
		"cutoff: " + cutoff.Format(time.RFC3339),
	}, nil
}

func execute(opts *options, title string, fn common.Action) error {
	if _, err := common.Execute(common.RunOptions{Tool: "migrate", CI: opts.ci, Timeout: opts.timeout}, title, fn); err != nil {
		os.Exit(3)
	}
	return nil
}

func loadConfigDB(envFile string) (*config.Config, *gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// cleanupSessions only matters when redis is disabled; redis keys expire on
// their own.
func cleanupSessions(ctx context.Context, sessions repository.SessionRepository, now time.Time) ([]string, error) {
	deleted, err := sessions.CleanupExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("deleted %d expired sessions", deleted)}, nil
}
