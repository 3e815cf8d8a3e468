package common

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/nextest/portal-auth/internal/observability"
	"github.com/nextest/portal-auth/internal/tools/ui"
)

type Action func(context.Context) ([]string, error)

// RunOptions controls how a tool subcommand is executed.
type RunOptions struct {
	Tool    string
	CI      bool
	Timeout time.Duration
	// Out receives the CI result; defaults to stdout.
	Out io.Writer
}

// Instrument records run count and duration for a tool subcommand.
func Instrument(tool, command string, fn Action) Action {
	return func(ctx context.Context) ([]string, error) {
		start := time.Now()
		details, err := fn(ctx)
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		observability.RecordToolCommandRun(ctx, tool, command, outcome)
		observability.RecordToolCommandDuration(ctx, tool, command, outcome, time.Since(start))
		return details, err
	}
}

// Execute runs fn headless in CI mode, printing a JSON result, or through the
// interactive terminal runner otherwise.
func Execute(opts RunOptions, title string, fn Action) ([]string, error) {
	fn = Instrument(opts.Tool, title, fn)
	if !opts.CI {
		return ui.Run(title, opts.Timeout, ui.Action(fn))
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	details, err := fn(ctx)
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if werr := WriteCIResult(out, NewCIResult(title, details, err, time.Since(start))); werr != nil && err == nil {
		err = werr
	}
	return details, err
}
