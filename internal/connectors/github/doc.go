// Package github reads identity signals from the GitHub REST API.
//
// It provides the [driven.Source] used by the harvester: user search per
// partition, repository listing per user, and the first commit page per
// repository.
//
// # Credentials
//
// Every request is made with the active credential of a shared pool. Each
// credential gets its own go-github client, authenticated through a static
// oauth2 token source, so that go-github's rate limit memory never leaks
// from one token to another.
//
// # Rate Limiting
//
// The fetcher implements a dual-strategy approach:
//
//  1. Proactive throttling: a token bucket limits the whole run to roughly
//     1.2 requests per second regardless of worker count.
//
//  2. Reactive handling: X-RateLimit-Remaining and X-RateLimit-Reset are
//     tracked per credential. A rate limited response rotates the pool and
//     the request is retried with the next credential. A credential known to
//     be exhausted is skipped before the request is sent.
//
// # Retries
//
// Attempts are bounded and separated by a fixed delay. Rate limits and
// transient failures (network errors, 502, 503, 504) are retried; every other
// non-2xx response is permanent and returned immediately. A request that is
// still rate limited when the bound is reached is reported as transient and
// wraps [domain.ErrRateLimited].
//
// # Example Usage
//
//	pool, _ := auth.NewPool(tokens)
//	fetcher := github.NewFetcher(pool, github.NewClients(), github.NewRateLimiter(1.2),
//	    github.FetcherOptions{Delay: 10 * time.Second})
//	source := github.NewSource(fetcher)
//
//	page, err := source.SearchEntities(ctx, domain.PageRequest{Partition: p, Page: 1, PerPage: 100})
package github
