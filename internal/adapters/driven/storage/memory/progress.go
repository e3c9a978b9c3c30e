package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
)

// Ensure ProgressStore implements the interface.
var _ driven.ProgressStore = (*ProgressStore)(nil)

// ProgressStore is an in-memory implementation of driven.ProgressStore.
type ProgressStore struct {
	mu          sync.RWMutex
	checkpoints map[string]domain.Checkpoint
}

// NewProgressStore creates a new in-memory progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		checkpoints: make(map[string]domain.Checkpoint),
	}
}

// Load returns the checkpoint of a plan.
func (s *ProgressStore) Load(_ context.Context, planID string) (domain.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[planID]
	return cp, ok, nil
}

// Save stores or updates the checkpoint of a plan.
func (s *ProgressStore) Save(_ context.Context, planID string, cp domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[planID] = cp
	return nil
}
