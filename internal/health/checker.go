package health

import (
	"context"
	"time"

	"github.com/nextest/portal-auth/internal/observability"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type CheckResult struct {
	Name     string        `json:"name"`
	Healthy  bool          `json:"healthy"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"-"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// ProbeRunner runs every checker concurrently with a per-check timeout.
// Callers arriving while a run is in flight share its results.
type ProbeRunner struct {
	checkers []Checker
	timeout  time.Duration
	flight   singleflight.Group
}

func NewProbeRunner(timeout time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = time.Second
	}
	active := make([]Checker, 0, len(checkers))
	for _, c := range checkers {
		if c != nil {
			active = append(active, c)
		}
	}
	return &ProbeRunner{checkers: active, timeout: timeout}
}

// Run returns one result per checker, in registration order.
func (r *ProbeRunner) Run(ctx context.Context) []CheckResult {
	if r == nil || len(r.checkers) == 0 {
		return nil
	}
	// The shared run must not die with the first caller's request.
	shared := context.WithoutCancel(ctx)
	v, _, _ := r.flight.Do("probe", func() (any, error) {
		return r.runAll(shared), nil
	})
	results := v.([]CheckResult)
	out := make([]CheckResult, len(results))
	copy(out, results)
	return out
}

func (r *ProbeRunner) runAll(ctx context.Context) []CheckResult {
	results := make([]CheckResult, len(r.checkers))
	var g errgroup.Group
	for i, c := range r.checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			start := time.Now()
			res := c.Check(checkCtx)
			res.Duration = time.Since(start)

			outcome := "up"
			if !res.Healthy {
				outcome = "down"
			}
			observability.RecordHealthCheckResult(ctx, res.Name, outcome)
			observability.RecordHealthCheckDuration(ctx, res.Name, res.Duration)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Ready reports whether every checker is healthy.
func (r *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	results := r.Run(ctx)
	for _, res := range results {
		if !res.Healthy {
			return false, results
		}
	}
	return true, results
}

// Find returns the result named name, if present.
func Find(results []CheckResult, name string) (CheckResult, bool) {
	for _, res := range results {
		if res.Name == name {
			return res, true
		}
	}
	return CheckResult{}, false
}
