// Package multi fans contact batches out to several sinks.
package multi

import (
	"context"
	"errors"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
	"github.com/custodia-labs/devtrawl/internal/logger"
)

// Ensure Sink implements the interface.
var _ driven.Sink = (*Sink)(nil)

// Sink writes every batch to a primary sink and then to each mirror. The
// result is the primary's; mirror failures are logged only. Mirrors only
// receive records the primary stored.
type Sink struct {
	primary driven.Sink
	mirrors []driven.Sink
}

// New creates a fan-out sink. Nil mirrors are ignored.
func New(primary driven.Sink, mirrors ...driven.Sink) *Sink {
	s := &Sink{primary: primary}
	for _, m := range mirrors {
		if m != nil {
			s.mirrors = append(s.mirrors, m)
		}
	}
	return s
}

// SaveBatch saves to the primary, then mirrors what the primary accepted.
// A batch the primary failed is not mirrored.
func (s *Sink) SaveBatch(ctx context.Context, records []domain.ContactRecord) (domain.SaveResult, error) {
	res, err := s.primary.SaveBatch(ctx, records)
	if err != nil {
		if len(s.mirrors) > 0 {
			logger.Warn("primary sink failed, not mirroring %d records", len(records))
		}
		return res, err
	}

	accepted := stored(records, res.Failed)
	if len(accepted) == 0 {
		return res, nil
	}
	for i, m := range s.mirrors {
		if _, merr := m.SaveBatch(ctx, accepted); merr != nil {
			logger.Error("mirror sink %d: %v", i, merr)
		}
	}
	return res, nil
}

// stored drops the records the primary rejected.
func stored(records []domain.ContactRecord, failed []domain.RecordFailure) []domain.ContactRecord {
	if len(failed) == 0 {
		return records
	}
	type key struct{ entity, partition string }
	rejected := make(map[key]struct{}, len(failed))
	for _, f := range failed {
		rejected[key{f.EntityID, f.Partition}] = struct{}{}
	}

	out := make([]domain.ContactRecord, 0, len(records))
	for _, r := range records {
		if _, ok := rejected[key{r.EntityID, r.Partition}]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Close closes the primary and every mirror.
func (s *Sink) Close() error {
	errs := []error{s.primary.Close()}
	for _, m := range s.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
