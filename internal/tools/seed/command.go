package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/nextest/portal-auth/internal/config"
	"github.com/nextest/portal-auth/internal/database"
	"github.com/nextest/portal-auth/internal/domain"
	"github.com/nextest/portal-auth/internal/repository"
	"github.com/nextest/portal-auth/internal/tools/common"
)

type options struct {
	envFile string
	ci      bool
	timeout time.Duration
}

type userFlags struct {
	email      string
	name       string
	department string
	password   string
	inactive   bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seed", Short: "Portal user provisioning"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")

	users := &cobra.Command{Use: "users", Short: "Manage portal users"}
	users.AddCommand(
		newCreateCommand(opts),
		newListCommand(opts),
		newSetActiveCommand(opts, "activate", true),
		newSetActiveCommand(opts, "deactivate", false),
	)
	cmd.AddCommand(users, newDryRunCommand(opts))
	return cmd
}

func newCreateCommand(opts *options) *cobra.Command {
	f := &userFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or update a portal user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "users create", func(ctx context.Context) ([]string, error) {
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				return createUser(db, cfg.AllowedEmailDomain, f)
			})
		},
	}
	bindUserFlags(cmd, f)
	return cmd
}

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List portal users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "users list", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				return listUsers(ctx, db, time.Now().UTC())
			})
		},
	}
}

func newSetActiveCommand(opts *options, use string, active bool) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("%s a portal user", strings.ToUpper(use[:1])+use[1:]),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "users "+use, func(ctx context.Context) ([]string, error) {
				if strings.TrimSpace(email) == "" {
					return nil, fmt.Errorf("email is required")
				}
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				return setActive(db, email, active)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	return cmd
}

func newDryRunCommand(opts *options) *cobra.Command {
	f := &userFlags{}
	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Show what provisioning a user would do",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "seed dry-run", func(ctx context.Context) ([]string, error) {
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				return planUser(db, cfg.AllowedEmailDomain, f)
			})
		},
	}
	bindUserFlags(cmd, f)
	return cmd
}

func bindUserFlags(cmd *cobra.Command, f *userFlags) {
	cmd.Flags().StringVar(&f.email, "email", "", "user email (must carry the allowed domain)")
	cmd.Flags().StringVar(&f.name, "name", "", "display name")
	cmd.Flags().StringVar(&f.department, "department", "", "department")
	cmd.Flags().StringVar(&f.password, "password", "", "optional legacy password, stored as an argon2 hash")
	cmd.Flags().BoolVar(&f.inactive, "inactive", false, "create the user disabled")
}

func createUser(db *gorm.DB, allowedDomain string, f *userFlags) ([]string, error) {
	report, err := database.ProvisionUser(db, allowedDomain, database.UserSeed{
		Email:      f.email,
		Name:       f.name,
		Department: f.department,
		Password:   f.password,
		Active:     !f.inactive,
	})
	if err != nil {
		return nil, err
	}
	verb := "updated"
	if report.Created {
		verb = "created"
	}
	return []string{
		fmt.Sprintf("%s user %s", verb, report.User.Email),
		"id: " + report.User.ID,
		fmt.Sprintf("active: %t", report.User.Active),
	}, nil
}

// listUsers prints one line per user with the state of their login codes.
func listUsers(ctx context.Context, db *gorm.DB, now time.Time) ([]string, error) {
	users, err := database.ListUsers(db)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return []string{"no users provisioned"}, nil
	}
	codes := repository.NewVerificationCodeRepository(db)
	details := make([]string, 0, len(users))
	for _, u := range users {
		state := "active"
		if !u.Active {
			state = "inactive"
		}
		issued, err := codes.ListByEmail(ctx, u.Email)
		if err != nil {
			return nil, err
		}
		counts := map[domain.VerificationCodeState]int{}
		for _, c := range issued {
			counts[c.State(now)]++
		}
		details = append(details, fmt.Sprintf("%s (%s) %s codes: pending=%d used=%d expired=%d",
			u.Email, u.Name, state,
			counts[domain.VerificationCodePending], counts[domain.VerificationCodeUsed], counts[domain.VerificationCodeExpired]))
	}
	return details, nil
}

func setActive(db *gorm.DB, email string, active bool) ([]string, error) {
	if err := database.SetUserActive(db, email, active); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, fmt.Errorf("no user with email %s", strings.ToLower(strings.TrimSpace(email)))
		}
		return nil, err
	}
	return []string{fmt.Sprintf("%s active=%t", strings.ToLower(strings.TrimSpace(email)), active)}, nil
}

func planUser(db *gorm.DB, allowedDomain string, f *userFlags) ([]string, error) {
	email := strings.ToLower(strings.TrimSpace(f.email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if !strings.HasSuffix(email, strings.ToLower(allowedDomain)) {
		return nil, fmt.Errorf("email must end with %s", allowedDomain)
	}
	users, err := database.ListUsers(db)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Email == email {
			return []string{"would update existing user " + email, "no mutation executed in dry-run mode"}, nil
		}
	}
	return []string{
		"would create user " + email,
		fmt.Sprintf("active: %t", !f.inactive),
		"no mutation executed in dry-run mode",
	}, nil
}

func execute(opts *options, title string, fn common.Action) error {
	if _, err := common.Execute(common.RunOptions{Tool: "seed", CI: opts.ci, Timeout: opts.timeout}, title, fn); err != nil {
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
	if err := database.Migrate(db); err != nil {
		closeDB(db)
		return nil, nil, err
	}
	return cfg, db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
