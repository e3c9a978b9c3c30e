package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Crawl Errors.

	// ErrConfiguration indicates the run cannot start. It is the only fatal
	// error class and is always raised before any network call.
	ErrConfiguration = errors.New("configuration error")

	// ErrNoCredentials indicates the credential pool is empty.
	ErrNoCredentials = fmt.Errorf("%w: no usable credentials", ErrConfiguration)

	// ErrRateLimited indicates every attempt of a request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransientNetwork indicates a request kept failing at the transport
	// level until the attempt bound was reached.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrPermanentAPI indicates a non-retryable API response.
	ErrPermanentAPI = errors.New("permanent API error")

	// ErrPartialFailure indicates a partition or entity finished with some
	// of its requests failed. Whatever was collected is still returned.
	ErrPartialFailure = errors.New("partial failure")

	// ErrPersistence indicates the sink failed to store a batch.
	ErrPersistence = errors.New("persistence error")
)

// IsRetryable reports whether err is worth retrying at a higher level.
// Configuration and permanent API errors never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrPermanentAPI) {
		return false
	}
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrRateLimited)
}
