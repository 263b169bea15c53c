package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// GitHubRateLimit is the authenticated hourly quota.
	GitHubRateLimit = 5000

	// ProactiveRate keeps the steady rate near 4320 requests per hour.
	ProactiveRate = 1.2

	// MinBuffer is the number of remaining requests below which the
	// limiter waits for the reset.
	MinBuffer = 100

	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
)

// RateLimiter throttles requests ahead of time and backs off when the
// response headers report the quota nearly exhausted.
type RateLimiter struct {
	bucket *rate.Limiter

	mu        sync.Mutex
	remaining int
	limit     int
	resetAt   time.Time
}

// NewRateLimiter creates a limiter allowing perSecond requests per second.
// A non-positive rate uses ProactiveRate.
func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		perSecond = ProactiveRate
	}
	return &RateLimiter{
		bucket:    rate.NewLimiter(rate.Limit(perSecond), 1),
		remaining: GitHubRateLimit,
		limit:     GitHubRateLimit,
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	remaining, _, resetAt := r.snapshot()
	if remaining >= MinBuffer {
		return nil
	}
	wait := time.Until(resetAt)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Observe records the quota headers of resp.
func (r *RateLimiter) Observe(resp *http.Response) {
	if resp == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, err := strconv.Atoi(resp.Header.Get(HeaderRateRemaining)); err == nil {
		r.remaining = v
	}
	if v, err := strconv.Atoi(resp.Header.Get(HeaderRateLimit)); err == nil {
		r.limit = v
	}
	if v, err := strconv.ParseInt(resp.Header.Get(HeaderRateReset), 10, 64); err == nil {
		r.resetAt = time.Unix(v, 0)
	}
}

func (r *RateLimiter) snapshot() (remaining, limit int, resetAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining, r.limit, r.resetAt
}

// Remaining returns the last observed remaining quota.
func (r *RateLimiter) Remaining() int {
	remaining, _, _ := r.snapshot()
	return remaining
}

// exhausted builds a RateLimitError from the current state.
func (r *RateLimiter) exhausted() *RateLimitError {
	remaining, limit, resetAt := r.snapshot()
	return &RateLimitError{ResetAt: resetAt, Remaining: remaining, Limit: limit}
}
