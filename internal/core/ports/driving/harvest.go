package driving

import (
	"context"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
)

// Harvester runs a crawl.
type Harvester interface {
	// Run crawls every planned partition and returns the run summary.
	// The summary is returned even when err is non-nil.
	Run(ctx context.Context) (*domain.RunSummary, error)

	// Status returns a snapshot of the live summary.
	Status() domain.RunSummary
}
