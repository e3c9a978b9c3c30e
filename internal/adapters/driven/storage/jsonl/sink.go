// Package jsonl writes contact records as newline-delimited JSON, one
// record per line, for offline inspection of a run.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
)

// Ensure Sink implements the interface.
var _ driven.Sink = (*Sink)(nil)

// Sink appends records to a writer.
type Sink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
}

// NewFileSink opens path for appending, creating it and its directory if
// needed.
func NewFileSink(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening export file: %w", err)
	}
	return &Sink{w: bufio.NewWriter(f), closer: f}, nil
}

// NewSink writes to w. Close flushes but does not close w.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: bufio.NewWriter(w)}
}

// SaveBatch writes one line per record and flushes. A record that cannot
// be encoded is reported and skipped.
func (s *Sink) SaveBatch(_ context.Context, records []domain.ContactRecord) (domain.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res domain.SaveResult
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			res.Failed = append(res.Failed, domain.RecordFailure{
				EntityID:  r.EntityID,
				Partition: r.Partition,
				Reason:    err.Error(),
			})
			continue
		}
		line = append(line, '\n')
		if _, err := s.w.Write(line); err != nil {
			return domain.SaveResult{}, fmt.Errorf("%w: writing export: %w", domain.ErrPersistence, err)
		}
		res.Saved++
	}

	if err := s.w.Flush(); err != nil {
		return domain.SaveResult{}, fmt.Errorf("%w: flushing export: %w", domain.ErrPersistence, err)
	}
	return res, nil
}

// Close flushes buffered output and closes the file, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
		s.closer = nil
	}
	return err
}
