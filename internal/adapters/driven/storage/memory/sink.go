// Package memory provides in-memory implementations of the storage ports.
// They back dry runs (storage.driver = "memory") and the service tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
)

// Ensure Sink implements the interface.
var _ driven.Sink = (*Sink)(nil)

// recordKey is the uniqueness key of a stored record.
type recordKey struct {
	runID     string
	entityID  string
	partition string
}

// Sink is an in-memory implementation of driven.Sink. Records are unique
// per run, entity and partition; a duplicate is rejected individually.
type Sink struct {
	mu      sync.RWMutex
	records []domain.ContactRecord
	keys    map[recordKey]struct{}
	batches int
	closed  bool
}

// NewSink creates a new in-memory sink.
func NewSink() *Sink {
	return &Sink{
		keys: make(map[recordKey]struct{}),
	}
}

// SaveBatch stores every record whose key is not already present.
func (s *Sink) SaveBatch(_ context.Context, records []domain.ContactRecord) (domain.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.SaveResult{}, fmt.Errorf("%w: sink is closed", domain.ErrPersistence)
	}

	var res domain.SaveResult
	for _, r := range records {
		key := recordKey{runID: r.RunID, entityID: r.EntityID, partition: r.Partition}
		if _, ok := s.keys[key]; ok {
			res.Failed = append(res.Failed, domain.RecordFailure{
				EntityID:  r.EntityID,
				Partition: r.Partition,
				Reason:    "duplicate",
			})
			continue
		}
		s.keys[key] = struct{}{}
		s.records = append(s.records, r)
		res.Saved++
	}
	s.batches++
	return res, nil
}

// Records returns a copy of the stored records in insertion order.
func (s *Sink) Records() []domain.ContactRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ContactRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Batches returns the number of SaveBatch calls that reached the store.
func (s *Sink) Batches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batches
}

// Close marks the sink closed. Later batches fail.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
