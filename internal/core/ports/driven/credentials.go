package driven

import "github.com/custodia-labs/devtrawl/internal/core/domain"

// CredentialPool holds the API tokens of a run and tracks which one is
// active. There is a single pool per run; all index updates must be safe
// for concurrent use.
type CredentialPool interface {
	// Current returns the active credential. It returns the zero
	// Credential if the pool is empty.
	Current() domain.Credential

	// Rotate advances to the next credential cyclically and returns it.
	Rotate() domain.Credential

	// Advance rotates only if the credential at index from is still the
	// active one, and returns the active credential afterwards. Callers
	// that observed an exhausted credential use it so that concurrent
	// observers rotate once.
	Advance(from int) domain.Credential

	// Size returns the number of credentials.
	Size() int
}
