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
	// GitHubRateLimit is the authenticated core rate limit (5000/hour).
	GitHubRateLimit = 5000

	// ProactiveRate is the default proactive throttle rate (~1.2 req/sec = 4320/hr).
	ProactiveRate = 1.2

	// MinBuffer is the remaining-request floor below which a credential is
	// treated as exhausted until its reset time.
	MinBuffer = 1

	// HeaderRateLimit is the rate limit header.
	HeaderRateLimit = "X-RateLimit-Limit"

	// HeaderRateRemaining is the remaining requests header.
	HeaderRateRemaining = "X-RateLimit-Remaining"

	// HeaderRateReset is the reset timestamp header (Unix seconds).
	HeaderRateReset = "X-RateLimit-Reset"

	// HeaderRetryAfter is the retry-after header (seconds).
	HeaderRetryAfter = "Retry-After"
)

// quota is the last observed rate limit state of one credential.
type quota struct {
	remaining int
	limit     int
	resetTime time.Time
}

// RateLimiter implements dual-strategy rate limiting for the GitHub API.
//
// A single token bucket throttles every request of the run regardless of
// which credential or worker issues it. Alongside it, the limiter keeps the
// X-RateLimit state reported for each credential so the fetcher can skip a
// credential that is known to be exhausted instead of spending an attempt
// on it.
type RateLimiter struct {
	bucket    *rate.Limiter
	minBuffer int

	mu     sync.Mutex
	quotas map[int]quota
}

// NewRateLimiter creates a limiter allowing rps requests per second with a
// burst of one. A non-positive rps uses ProactiveRate.
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		rps = ProactiveRate
	}
	return &RateLimiter{
		bucket:    rate.NewLimiter(rate.Limit(rps), 1),
		minBuffer: MinBuffer,
		quotas:    make(map[int]quota),
	}
}

// Wait blocks until the token bucket allows a request.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.bucket.Wait(ctx)
}

// UpdateFromResponse records the rate limit headers of a response for the
// credential at index.
func (r *RateLimiter) UpdateFromResponse(index int, resp *http.Response) {
	if resp == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[index]
	if !ok {
		q = quota{remaining: GitHubRateLimit, limit: GitHubRateLimit}
	}

	if remaining := resp.Header.Get(HeaderRateRemaining); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			q.remaining = val
		}
	}
	if limit := resp.Header.Get(HeaderRateLimit); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			q.limit = val
		}
	}
	if reset := resp.Header.Get(HeaderRateReset); reset != "" {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			q.resetTime = time.Unix(val, 0)
		}
	}
	if retryAfter := resp.Header.Get(HeaderRetryAfter); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			q.remaining = 0
			q.resetTime = time.Now().Add(time.Duration(seconds) * time.Second)
		}
	}

	r.quotas[index] = q
}

// Exhausted reports whether the credential at index has fewer than
// minBuffer requests left and its window has not reset yet.
func (r *RateLimiter) Exhausted(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotas[index]
	if !ok {
		return false
	}
	return q.remaining < r.minBuffer && time.Now().Before(q.resetTime)
}

// Remaining returns the last observed remaining requests for a credential.
func (r *RateLimiter) Remaining(index int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.quotas[index]; ok {
		return q.remaining
	}
	return GitHubRateLimit
}

// ResetTime returns the last observed reset time for a credential.
func (r *RateLimiter) ResetTime(index int) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quotas[index].resetTime
}
