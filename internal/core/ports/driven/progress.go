package driven

import (
	"context"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
)

// ProgressStore persists how far a plan has been crawled so that an
// interrupted run can resume by position under the same run ID.
type ProgressStore interface {
	// Load returns the checkpoint of a plan. found is false when the plan
	// has never been checkpointed.
	Load(ctx context.Context, planID string) (cp domain.Checkpoint, found bool, err error)

	// Save records the checkpoint of a plan.
	Save(ctx context.Context, planID string, cp domain.Checkpoint) error
}
