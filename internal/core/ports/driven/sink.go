package driven

import (
	"context"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
)

// Sink is durable storage for contact records.
//
// SaveBatch is best effort: records that cannot be stored individually
// (duplicate key, constraint violation) are reported in SaveResult.Failed
// and do not abort the batch. The error return is reserved for failures
// of the whole batch and wraps domain.ErrPersistence.
type Sink interface {
	SaveBatch(ctx context.Context, records []domain.ContactRecord) (domain.SaveResult, error)
	Close() error
}
