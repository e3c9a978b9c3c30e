package driven

import (
	"context"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
)

// Source is the remote API being crawled. Implementations own retries,
// credential rotation and throttling; the errors they return are already
// classified: they wrap domain.ErrPermanentAPI, domain.ErrTransientNetwork,
// domain.ErrRateLimited or domain.ErrConfiguration.
type Source interface {
	// SearchEntities returns one page of a partition's search results.
	SearchEntities(ctx context.Context, req domain.PageRequest) (*domain.SearchPage, error)

	// ListSubResources returns one page of the repositories owned by login.
	ListSubResources(ctx context.Context, login string, page, perPage int) ([]domain.SubResource, error)

	// ListActivity returns the first page of a repository's recent commits.
	ListActivity(ctx context.Context, sub domain.SubResource, perPage int) ([]domain.Activity, error)
}
