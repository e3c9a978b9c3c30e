package github

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
	"github.com/custodia-labs/devtrawl/internal/logger"
	"github.com/custodia-labs/devtrawl/internal/metrics"
)

// DefaultRetryDelay is the fixed wait between attempts of one request.
const DefaultRetryDelay = 10 * time.Second

// Call performs one attempt of a request with the given client.
type Call func(ctx context.Context, client *gh.Client) (*gh.Response, error)

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	// Delay between attempts. Zero retries immediately.
	Delay time.Duration

	// MaxAttempts bounds the attempts of one request. Zero uses three
	// attempts plus one per additional credential.
	MaxAttempts int

	// Metrics receives one observation per request. May be nil.
	Metrics *metrics.Collector
}

// Fetcher executes requests with the active credential, rotating the pool
// on rate limits and retrying transient failures a bounded number of times.
// It is safe for concurrent use.
type Fetcher struct {
	pool        driven.CredentialPool
	clients     *Clients
	limiter     *RateLimiter
	delay       time.Duration
	maxAttempts int
	metrics     *metrics.Collector
}

// NewFetcher creates a fetcher over pool. A nil limiter uses
// NewRateLimiter(ProactiveRate).
func NewFetcher(pool driven.CredentialPool, clients *Clients, limiter *RateLimiter, opts FetcherOptions) *Fetcher {
	if clients == nil {
		clients = NewClients()
	}
	if limiter == nil {
		limiter = NewRateLimiter(ProactiveRate)
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		size := pool.Size()
		if size < 1 {
			size = 1
		}
		maxAttempts = 3 + size - 1
	}
	return &Fetcher{
		pool:        pool,
		clients:     clients,
		limiter:     limiter,
		delay:       opts.Delay,
		maxAttempts: maxAttempts,
		metrics:     opts.Metrics,
	}
}

// MaxAttempts returns the attempt bound of one request.
func (f *Fetcher) MaxAttempts() int {
	return f.maxAttempts
}

// Do runs call until it succeeds, fails permanently, or the attempt bound is
// reached. A rate limited outcome is never returned: if the bound is reached
// while rate limited the outcome is transient and wraps ErrRateLimited.
func (f *Fetcher) Do(ctx context.Context, op string, call Call) domain.FetchOutcome {
	out := domain.FetchOutcome{Op: op}

	if f.pool.Size() == 0 {
		out.Kind = domain.OutcomePermanent
		out.Cause = domain.ErrNoCredentials
		f.observe(out)
		return out
	}

	var last classification
	operation := func() error {
		cred := f.pool.Current()
		if f.pool.Size() > 1 && f.limiter.Exhausted(cred.Index) {
			logger.Debug("github: %s exhausted until %s, skipping", cred, f.limiter.ResetTime(cred.Index).Format(time.RFC3339))
			cred = f.pool.Advance(cred.Index)
			out.Rotations++
		}

		if err := f.limiter.Wait(ctx); err != nil {
			last = classification{kind: domain.OutcomeTransient, err: err}
			return backoff.Permanent(err)
		}

		out.Attempts++
		resp, err := call(ctx, f.clients.For(cred))
		if resp != nil {
			f.limiter.UpdateFromResponse(cred.Index, resp.Response)
		}

		last = classify(ctx, resp, err)
		switch last.kind {
		case domain.OutcomeSuccess:
			return nil
		case domain.OutcomeRateLimited:
			next := f.pool.Advance(cred.Index)
			out.Rotations++
			logger.Warn("github: %s rate limited on %s, rotating to %s (%d remaining)", cred, op, next, f.limiter.Remaining(next.Index))
			return last.err
		case domain.OutcomePermanent:
			return backoff.Permanent(last.err)
		default:
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			logger.Debug("github: %s attempt %d/%d failed: %v", op, out.Attempts, f.maxAttempts, last.err)
			return last.err
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.delay), uint64(f.maxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(operation, policy)

	out.Status = last.status
	out.Body = last.body

	switch {
	case err == nil:
		out.Kind = domain.OutcomeSuccess
	case ctx.Err() != nil:
		out.Kind = domain.OutcomeTransient
		out.Cause = ctx.Err()
	case last.kind == domain.OutcomeRateLimited:
		out.Kind = domain.OutcomeTransient
		out.Cause = fmt.Errorf("%w: %w", domain.ErrRateLimited, last.err)
	case last.kind == domain.OutcomePermanent:
		out.Kind = domain.OutcomePermanent
		out.Cause = last.err
	default:
		out.Kind = domain.OutcomeTransient
		out.Cause = last.err
		if out.Cause == nil {
			out.Cause = err
		}
	}

	if !out.OK() && !errors.Is(out.Cause, context.Canceled) {
		logger.Warn("github: %s failed after %d attempts: %v", op, out.Attempts, out.Cause)
	}
	f.observe(out)
	return out
}

func (f *Fetcher) observe(out domain.FetchOutcome) {
	f.metrics.ObserveRequest(out.Op, out.Kind.String(), out.Rotations)
}
