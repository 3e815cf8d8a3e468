package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextest/portal-auth/internal/observability"
)

type Config struct {
	BaseURL     string
	Profile     string
	Email       string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status5xx     int64
	// Throttled counts 429 responses; they are also included in Status4xx.
	Throttled int64
}

type request struct {
	method string
	path   string
	body   string
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Email == "" {
		cfg.Email = "loadgen@nextest.com.br"
	}
	profile := strings.ToLower(cfg.Profile)
	if profile == "" {
		profile = "mixed"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	if err := ValidateProfile(profile); err != nil {
		return Result{}, err
	}
	requests := requestsForProfile(profile, cfg.Email)
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), 0))

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var total, failures, s2xx, s4xx, s5xx, throttled int64
	jobs := make(chan request, cfg.Concurrency*2)
	wg := sync.WaitGroup{}

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				req, err := http.NewRequestWithContext(ctx, job.method, cfg.BaseURL+job.path, bytes.NewReader([]byte(job.body)))
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				if job.body != "" {
					req.Header.Set("Content-Type", "application/json")
				}
				resp, err := client.Do(req)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				_ = resp.Body.Close()
				atomic.AddInt64(&total, 1)
				class := "other"
				switch {
				case resp.StatusCode >= 200 && resp.StatusCode < 300:
					atomic.AddInt64(&s2xx, 1)
					class = "2xx"
				case resp.StatusCode >= 400 && resp.StatusCode < 500:
					atomic.AddInt64(&s4xx, 1)
					class = "4xx"
					if resp.StatusCode == http.StatusTooManyRequests {
						atomic.AddInt64(&throttled, 1)
						class = "429"
					}
				case resp.StatusCode >= 500:
					atomic.AddInt64(&s5xx, 1)
					class = "5xx"
				}
				observability.RecordLoadgenRequest(ctx, class, profile)
			}
		}()
	}

	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return Result{
				TotalRequests: atomic.LoadInt64(&total),
				Failures:      atomic.LoadInt64(&failures),
				Status2xx:     atomic.LoadInt64(&s2xx),
				Status4xx:     atomic.LoadInt64(&s4xx),
				Status5xx:     atomic.LoadInt64(&s5xx),
				Throttled:     atomic.LoadInt64(&throttled),
			}, nil
		case <-ticker.C:
			next := requests[i%len(requests)]
			if profile == "mixed" {
				next = requests[rng.IntN(len(requests))]
			}
			select {
			case jobs <- next:
			case <-ctx.Done():
			}
			i++
		}
	}
}

var profiles = []string{"health", "login", "mixed", "error-heavy"}

func ValidateProfile(profile string) error {
	for _, p := range profiles {
		if p == profile {
			return nil
		}
	}
	return fmt.Errorf("unknown profile %q (want one of %s)", profile, strings.Join(profiles, ", "))
}

func requestsForProfile(profile, email string) []request {
	health := request{method: http.MethodGet, path: "/api/health"}
	login := request{method: http.MethodPost, path: "/api/auth/login", body: fmt.Sprintf(`{"email":%q}`, email)}
	badVerify := request{method: http.MethodPost, path: "/api/auth/verify", body: fmt.Sprintf(`{"email":%q,"code":"000000"}`, email)}
	me := request{method: http.MethodGet, path: "/api/auth/me"}
	switch profile {
	case "health":
		return []request{health}
	case "login":
		return []request{login, badVerify}
	case "mixed":
		return []request{health, login, badVerify, me}
	case "error-heavy":
		return []request{badVerify, me, {method: http.MethodPost, path: "/api/auth/login", body: `{"email":"x@example.com"}`}}
	default:
		return nil
	}
}
