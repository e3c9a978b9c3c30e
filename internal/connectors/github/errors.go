package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
)

// ErrEmptyRepository is returned by the commits endpoint for repositories
// with no commits. It is permanent for that repository.
var ErrEmptyRepository = errors.New("github: repository is empty")

// RateLimitError represents a rate limit exceeded response with reset time.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
	Limit     int
	Secondary bool
}

func (e *RateLimitError) Error() string {
	kind := "primary"
	if e.Secondary {
		kind = "secondary"
	}
	if e.ResetAt.IsZero() {
		return fmt.Sprintf("github: %s rate limit exceeded", kind)
	}
	return fmt.Sprintf("github: %s rate limit exceeded, resets at %s", kind, e.ResetAt.Format(time.RFC3339))
}

// APIError represents a GitHub API error response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// classification is the verdict on a single attempt.
type classification struct {
	kind   domain.OutcomeKind
	status int
	body   string
	err    error
}

// classify converts one go-github call result into an outcome kind.
//
//   - nil error: success
//   - primary or secondary rate limit, 429, or a 403 that carries rate
//     limit signals: rate limited
//   - transport failure, 202 Accepted, 502/503/504: transient
//   - any other status, or a 2xx body that did not decode: permanent
func classify(ctx context.Context, resp *gh.Response, err error) classification {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	if err == nil {
		return classification{kind: domain.OutcomeSuccess, status: status}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return classification{kind: domain.OutcomeTransient, status: status, err: ctxErr}
	}

	var rle *gh.RateLimitError
	if errors.As(err, &rle) {
		return classification{
			kind:   domain.OutcomeRateLimited,
			status: http.StatusForbidden,
			body:   rle.Message,
			err: &RateLimitError{
				ResetAt:   rle.Rate.Reset.Time,
				Remaining: rle.Rate.Remaining,
				Limit:     rle.Rate.Limit,
			},
		}
	}

	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		rl := &RateLimitError{Secondary: true}
		if abuse.RetryAfter != nil {
			rl.ResetAt = time.Now().Add(*abuse.RetryAfter)
		}
		return classification{kind: domain.OutcomeRateLimited, status: status, body: abuse.Message, err: rl}
	}

	var accepted *gh.AcceptedError
	if errors.As(err, &accepted) {
		return classification{kind: domain.OutcomeTransient, status: http.StatusAccepted, err: err}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		apiErr := &APIError{StatusCode: code, Message: ghErr.Message}
		if ghErr.Response.Request != nil && ghErr.Response.Request.URL != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}

		switch {
		case isRateLimitStatus(code, ghErr):
			return classification{kind: domain.OutcomeRateLimited, status: code, body: ghErr.Message, err: &RateLimitError{}}
		case code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout:
			return classification{kind: domain.OutcomeTransient, status: code, body: ghErr.Message, err: apiErr}
		case code == http.StatusConflict && strings.Contains(strings.ToLower(ghErr.Message), "empty"):
			return classification{kind: domain.OutcomePermanent, status: code, body: ghErr.Message, err: fmt.Errorf("%w: %w", ErrEmptyRepository, apiErr)}
		default:
			return classification{kind: domain.OutcomePermanent, status: code, body: ghErr.Message, err: apiErr}
		}
	}

	// A 2xx response whose body failed to decode.
	if status >= 200 && status < 300 {
		return classification{kind: domain.OutcomePermanent, status: status, err: fmt.Errorf("malformed payload: %w", err)}
	}

	return classification{kind: domain.OutcomeTransient, status: status, err: err}
}

// isRateLimitStatus reports whether an error response is a quota rejection
// that go-github did not already convert into a rate limit error.
func isRateLimitStatus(code int, ghErr *gh.ErrorResponse) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	if code != http.StatusForbidden {
		return false
	}
	h := ghErr.Response.Header
	if h.Get(HeaderRateRemaining) == "0" || h.Get(HeaderRetryAfter) != "" {
		return true
	}
	return strings.Contains(strings.ToLower(ghErr.Message), "rate limit")
}
