package loadgen

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextest/portal-auth/internal/tools/common"
)

type options struct {
	baseURL     string
	profile     string
	email       string
	duration    time.Duration
	rps         int
	concurrency int
	seed        int64
	ci          bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "loadgen", Short: "Generate traffic against the portal auth API"}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	flags.StringVar(&opts.profile, "profile", "mixed", "traffic profile: "+strings.Join(profiles, "|"))
	flags.StringVar(&opts.email, "email", "loadgen@nextest.com.br", "email used for login traffic")
	flags.DurationVar(&opts.duration, "duration", 15*time.Second, "traffic duration")
	flags.IntVar(&opts.rps, "rps", 20, "requests per second")
	flags.IntVar(&opts.concurrency, "concurrency", 6, "concurrent workers")
	flags.Int64Var(&opts.seed, "seed", 42, "random seed for the mixed profile")
	flags.BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run load generation",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			runOpts := common.RunOptions{Tool: "loadgen", CI: opts.ci, Timeout: opts.duration + 15*time.Second}
			_, err := common.Execute(runOpts, "run", func(ctx context.Context) ([]string, error) {
				res, err := Run(ctx, opts.config())
				if err != nil {
					return nil, err
				}
				return summarize(opts.profile, opts.duration, res), nil
			})
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
}

func (o *options) validate() error {
	o.profile = strings.ToLower(strings.TrimSpace(o.profile))
	if err := ValidateProfile(o.profile); err != nil {
		return err
	}
	if o.rps <= 0 || o.concurrency <= 0 {
		return fmt.Errorf("rps and concurrency must be positive")
	}
	if o.duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	return nil
}

func (o *options) config() Config {
	return Config{
		BaseURL:     strings.TrimRight(o.baseURL, "/"),
		Profile:     o.profile,
		Email:       o.email,
		Duration:    o.duration,
		RPS:         o.rps,
		Concurrency: o.concurrency,
		Seed:        o.seed,
	}
}

func summarize(profile string, duration time.Duration, res Result) []string {
	achieved := 0.0
	if duration > 0 {
		achieved = float64(res.TotalRequests) / duration.Seconds()
	}
	return []string{
		"profile=" + profile,
		fmt.Sprintf("total_requests=%d", res.TotalRequests),
		fmt.Sprintf("achieved_rps=%.1f", achieved),
		fmt.Sprintf("failures=%d", res.Failures),
		fmt.Sprintf("status_2xx=%d", res.Status2xx),
		fmt.Sprintf("status_4xx=%d", res.Status4xx),
		fmt.Sprintf("throttled=%d", res.Throttled),
		fmt.Sprintf("status_5xx=%d", res.Status5xx),
	}
}
