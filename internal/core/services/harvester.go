package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driving"
	"github.com/custodia-labs/devtrawl/internal/logger"
	"github.com/custodia-labs/devtrawl/internal/metrics"
)

// Ensure Harvester implements the interface.
var _ driving.Harvester = (*Harvester)(nil)

const (
	// DefaultDedupeCacheSize bounds the cross-partition entity cache.
	DefaultDedupeCacheSize = 1_000_000

	// shutdownFlushTimeout bounds the final flush after cancellation.
	shutdownFlushTimeout = 30 * time.Second
)

// HarvesterOptions configures a Harvester.
type HarvesterOptions struct {
	Regions []string
	Years   []int
	Buckets []domain.FollowerBucket

	// Flush selects the batch boundary. Empty means domain.FlushWindow.
	Flush domain.FlushPolicy

	// Workers bounds concurrent entity expansion. Values below 1 mean 1.
	Workers int

	// DedupeEntities skips entities already expanded earlier in the run.
	DedupeEntities  bool
	DedupeCacheSize int

	// Metrics may be nil.
	Metrics *metrics.Collector
}

// Harvester runs a crawl: it plans partitions, paginates each one, expands
// the entities found, and hands contact records to the sink in batches.
// It owns every piece of run-scoped state.
type Harvester struct {
	pool      driven.CredentialPool
	planner   *QueryPlanner
	paginator *SearchPaginator
	expander  *EntityExpander
	sink      driven.Sink
	progress  driven.ProgressStore
	metrics   *metrics.Collector

	regions []string
	years   []int
	buckets []domain.FollowerBucket
	flush   domain.FlushPolicy
	workers int

	seen *lru.TwoQueueCache[string, struct{}]

	mu      sync.RWMutex
	summary domain.RunSummary
}

// NewHarvester creates a harvester. progress may be nil, in which case the
// run neither resumes nor checkpoints.
func NewHarvester(
	pool driven.CredentialPool,
	planner *QueryPlanner,
	paginator *SearchPaginator,
	expander *EntityExpander,
	sink driven.Sink,
	progress driven.ProgressStore,
	opts HarvesterOptions,
) (*Harvester, error) {
	if planner == nil || paginator == nil || expander == nil {
		return nil, fmt.Errorf("%w: harvester requires a planner, paginator and expander", domain.ErrConfiguration)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: harvester requires a sink", domain.ErrConfiguration)
	}

	h := &Harvester{
		pool:      pool,
		planner:   planner,
		paginator: paginator,
		expander:  expander,
		sink:      sink,
		progress:  progress,
		metrics:   opts.Metrics,
		regions:   opts.Regions,
		years:     opts.Years,
		buckets:   opts.Buckets,
		flush:     opts.Flush,
		workers:   opts.Workers,
	}
	if !h.flush.IsValid() {
		h.flush = domain.FlushWindow
	}
	if h.workers < 1 {
		h.workers = 1
	}
	if len(h.buckets) == 0 {
		h.buckets = []domain.FollowerBucket{{Min: domain.Unbounded, Max: domain.Unbounded}}
	}

	if opts.DedupeEntities {
		size := opts.DedupeCacheSize
		if size <= 0 {
			size = DefaultDedupeCacheSize
		}
		cache, err := lru.New2Q[string, struct{}](size)
		if err != nil {
			return nil, fmt.Errorf("%w: dedupe cache: %w", domain.ErrConfiguration, err)
		}
		h.seen = cache
	}

	return h, nil
}

// Status returns a snapshot of the live summary.
func (h *Harvester) Status() domain.RunSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.summary
}

func (h *Harvester) update(fn func(s *domain.RunSummary)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.summary)
}

// Run crawls the plan. Only a configuration error aborts the run; failed
// partitions, partially expanded entities and failed batches are logged and
// counted in the summary. On cancellation, whatever is buffered is flushed
// before Run returns ctx.Err().
func (h *Harvester) Run(ctx context.Context) (*domain.RunSummary, error) {
	if h.pool == nil || h.pool.Size() == 0 {
		return &domain.RunSummary{}, domain.ErrNoCredentials
	}

	plan := h.planner.Plan(h.regions, h.years, h.buckets)
	planID := PlanID(plan)

	cp := h.loadCheckpoint(ctx, planID)
	resumed := cp.RunID != ""
	if !resumed {
		// The run ID is stored before any record so a resumed run keeps it.
		cp.RunID = uuid.NewString()
		h.saveCheckpoint(ctx, planID, cp)
	}
	runID, checkpoint := cp.RunID, cp.Position

	h.mu.Lock()
	h.summary = domain.RunSummary{
		RunID:             runID,
		StartedAt:         time.Now(),
		Running:           true,
		PartitionsPlanned: len(plan),
	}
	h.mu.Unlock()

	logger.Section("Harvest")
	if resumed {
		logger.Info("resuming run %s: %d partitions, plan %s, checkpoint %d", runID, len(plan), planID, checkpoint)
	} else {
		logger.Info("run %s: %d partitions, plan %s", runID, len(plan), planID)
	}

	var (
		buffer       []domain.ContactRecord
		lastComplete = checkpoint
		// Once false, the checkpoint stays put for the rest of the run so
		// the partitions after it are crawled again on resume.
		checkpointOK = true
	)

	for i, key := range plan {
		if key.Position <= checkpoint {
			h.update(func(s *domain.RunSummary) { s.PartitionsSkipped++ })
			continue
		}
		if ctx.Err() != nil {
			break
		}

		records, retry := h.harvestPartition(ctx, runID, key)
		buffer = append(buffer, records...)
		if ctx.Err() != nil {
			break
		}
		lastComplete = key.Position
		if retry {
			checkpointOK = false
		}

		if !h.isBoundary(plan, i) {
			continue
		}
		if !h.flushBatch(ctx, buffer) {
			checkpointOK = false
		}
		buffer = nil
		if checkpointOK {
			h.saveCheckpoint(ctx, planID, domain.Checkpoint{RunID: runID, Position: lastComplete})
		}
	}

	var runErr error
	if err := ctx.Err(); err != nil {
		runErr = err
		logger.Warn("run %s cancelled, flushing %d buffered records", runID, len(buffer))

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
		if !h.flushBatch(fctx, buffer) {
			checkpointOK = false
		}
		if checkpointOK && lastComplete > checkpoint {
			h.saveCheckpoint(fctx, planID, domain.Checkpoint{RunID: runID, Position: lastComplete})
		}
		cancel()
	}

	h.update(func(s *domain.RunSummary) {
		s.EndedAt = time.Now()
		s.Running = false
	})
	summary := h.Status()
	logger.Info("run %s finished in %s: %d records saved, %d failed",
		runID, summary.Elapsed().Round(time.Second), summary.RecordsSaved, summary.RecordsFailed)
	return &summary, runErr
}

// harvestPartition paginates one partition and expands its entities. retry
// is set when pagination stopped on an error that may succeed later.
func (h *Harvester) harvestPartition(ctx context.Context, runID string, key domain.PartitionKey) (out []domain.ContactRecord, retry bool) {
	result := h.paginator.Paginate(ctx, key)

	label := "done"
	switch {
	case result.Err != nil && ctx.Err() == nil:
		label = "failed"
		retry = domain.IsRetryable(result.Err)
		logger.Error("partition %s failed after %d pages (retry on resume: %t): %v", key, result.Pages, retry, result.Err)
	case result.Truncated:
		label = "truncated"
		logger.Warn("partition %s truncated: %d matches reported, %d reachable", key, result.TotalCount, len(result.Entities))
	}
	if ctx.Err() == nil {
		h.metrics.ObservePartition(label)
	}

	h.update(func(s *domain.RunSummary) {
		s.EntitiesFound += len(result.Entities)
		if ctx.Err() != nil {
			return
		}
		s.PartitionsDone++
		switch label {
		case "failed":
			s.PartitionsFailed++
		case "truncated":
			s.PartitionsTruncated++
		}
	})

	entities := h.dedupe(result.Entities)
	records := h.expandAll(ctx, key, entities)

	out = make([]domain.ContactRecord, 0, len(records))
	identifiers := 0
	for _, rec := range records {
		if rec == nil {
			continue
		}
		rec.RunID = runID
		identifiers += len(rec.Identifiers)
		out = append(out, *rec)
	}

	h.update(func(s *domain.RunSummary) {
		s.RecordsBuilt += len(out)
		s.Identifiers += identifiers
	})
	logger.Info("partition %s: %d entities, %d records", key, len(result.Entities), len(out))
	return out, retry
}

// dedupe drops entities already expanded earlier in the run when the
// cross-partition cache is enabled.
func (h *Harvester) dedupe(entities []domain.Entity) []domain.Entity {
	if h.seen == nil {
		return entities
	}

	out := make([]domain.Entity, 0, len(entities))
	skipped := 0
	for _, e := range entities {
		if h.seen.Contains(e.Login) {
			skipped++
			continue
		}
		h.seen.Add(e.Login, struct{}{})
		out = append(out, e)
	}
	if skipped > 0 {
		h.update(func(s *domain.RunSummary) { s.EntitiesDeduped += skipped })
	}
	return out
}

// expandAll expands entities with at most h.workers in flight. Records keep
// the entity order. Cancellation stops scheduling new entities; records
// from entities already in flight are kept.
func (h *Harvester) expandAll(ctx context.Context, key domain.PartitionKey, entities []domain.Entity) []*domain.ContactRecord {
	records := make([]*domain.ContactRecord, len(entities))

	var g errgroup.Group
	g.SetLimit(h.workers)

	for i, entity := range entities {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rec, err := h.expander.Expand(ctx, key, entity)
			records[i] = rec

			h.update(func(s *domain.RunSummary) {
				s.EntitiesExpanded++
				if err != nil && !errors.Is(err, context.Canceled) {
					s.EntitiesFailed++
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("entity %s: %v", entity.Login, err)
			}
			// Expansion errors are recorded, never propagated.
			return nil
		})
	}

	_ = g.Wait()
	return records
}

// isBoundary reports whether the buffer is flushed after plan[i].
func (h *Harvester) isBoundary(plan []domain.PartitionKey, i int) bool {
	if i == len(plan)-1 {
		return true
	}
	cur, next := plan[i], plan[i+1]
	switch h.flush {
	case domain.FlushPartition:
		return true
	case domain.FlushRegion:
		return cur.Region != next.Region
	default:
		return cur.Region != next.Region || cur.Window.String() != next.Window.String()
	}
}

// flushBatch hands records to the sink. It returns false if the batch as a
// whole failed; per-record failures are counted but do not fail the batch.
func (h *Harvester) flushBatch(ctx context.Context, records []domain.ContactRecord) bool {
	if len(records) == 0 {
		return true
	}

	res, err := h.sink.SaveBatch(ctx, records)

	failed := len(res.Failed)
	if err != nil {
		failed = len(records) - res.Saved
	}
	h.metrics.ObserveSave(res.Saved, failed)
	h.update(func(s *domain.RunSummary) {
		s.Batches++
		s.RecordsSaved += res.Saved
		s.RecordsFailed += failed
		if err != nil {
			s.BatchErrors++
		}
	})

	for _, f := range res.Failed {
		logger.Debug("sink rejected %s in %s: %s", f.EntityID, f.Partition, f.Reason)
	}
	if err != nil {
		logger.Error("batch of %d records failed: %v", len(records), err)
		return false
	}
	logger.Info("flushed %d records (%d saved, %d rejected)", len(records), res.Saved, failed)
	return true
}

// loadCheckpoint returns the stored checkpoint of a plan. Without one, the
// run ID is empty and the position is -1.
func (h *Harvester) loadCheckpoint(ctx context.Context, planID string) domain.Checkpoint {
	fresh := domain.Checkpoint{Position: -1}
	if h.progress == nil {
		return fresh
	}
	cp, found, err := h.progress.Load(ctx, planID)
	if err != nil {
		logger.Warn("could not load checkpoint for plan %s, starting from the beginning: %v", planID, err)
		return fresh
	}
	if !found {
		return fresh
	}
	return cp
}

func (h *Harvester) saveCheckpoint(ctx context.Context, planID string, cp domain.Checkpoint) {
	if h.progress == nil {
		return
	}
	if err := h.progress.Save(ctx, planID, cp); err != nil {
		logger.Warn("could not save checkpoint %d for plan %s: %v", cp.Position, planID, err)
	}
}
