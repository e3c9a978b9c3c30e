package domain

import (
	"errors"
	"fmt"
)

// OutcomeKind classifies one logical API request.
type OutcomeKind int

// Outcome kinds.
const (
	// OutcomeSuccess is a 2xx response with a well-formed payload.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRateLimited is a quota rejection. It is recovered inside the
	// fetcher by rotating credentials and never returned to callers.
	OutcomeRateLimited
	// OutcomeTransient is a network failure, or retries exhausted.
	OutcomeTransient
	// OutcomePermanent is a non-retryable response.
	OutcomePermanent
)

// String returns the label used in logs and metrics.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// FetchOutcome is the tagged result of a request. It is never persisted.
type FetchOutcome struct {
	Kind OutcomeKind
	// Op names the request, e.g. "search_users".
	Op string
	// Status is the HTTP status of the last attempt, 0 if none was received.
	Status int
	// Body is the error message returned by the API, if any.
	Body string
	// Attempts is the number of attempts made.
	Attempts int
	// Rotations is the number of credential rotations caused by this request.
	Rotations int
	// Cause is the underlying error of the last failed attempt.
	Cause error
}

// OK returns true for a successful outcome.
func (o FetchOutcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// Err maps the outcome onto the error taxonomy. It returns nil on success.
func (o FetchOutcome) Err() error {
	if o.Kind == OutcomeSuccess {
		return nil
	}

	cause := o.Cause
	if cause == nil {
		msg := o.Body
		if msg == "" {
			msg = o.Kind.String()
		}
		cause = errors.New(msg)
	}

	switch o.Kind {
	case OutcomeRateLimited:
		return fmt.Errorf("%s: %w: %w", o.Op, ErrRateLimited, cause)
	case OutcomeTransient:
		return fmt.Errorf("%s after %d attempts: %w: %w", o.Op, o.Attempts, ErrTransientNetwork, cause)
	default:
		return fmt.Errorf("%s: %w (status %d): %w", o.Op, ErrPermanentAPI, o.Status, cause)
	}
}
