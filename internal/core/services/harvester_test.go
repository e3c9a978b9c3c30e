package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/devtrawl/internal/adapters/driven/auth"
	"github.com/custodia-labs/devtrawl/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
)

// harvestFixture serves perPartition entities for every partition of a
// region, each with one repository whose only commit email is login@x.com.
// Partitions of the same region return the same logins.
func harvestFixture(regions []string, perPartition int) *fakeSource {
	source := newFakeSource()
	source.search = pagedSearch(perPartition, perPartition)
	for _, region := range regions {
		for _, e := range entities(region+"-p1", perPartition) {
			source.withRepo(e.Login, "repo", e.Login+"@x.com")
		}
	}
	return source
}

func newTestHarvester(t *testing.T, source driven.Source, sink driven.Sink, progress driven.ProgressStore, opts HarvesterOptions) *Harvester {
	t.Helper()
	pool, err := auth.NewPool([]string{"tok-a", "tok-b"})
	require.NoError(t, err)

	if opts.Regions == nil {
		opts.Regions = []string{"Morocco"}
	}
	if opts.Years == nil {
		opts.Years = []int{2019}
	}
	if opts.Buckets == nil {
		opts.Buckets = mustBuckets(t, "<10", "10..50")
	}

	h, err := NewHarvester(
		pool,
		NewQueryPlanner(domain.GranularityYear),
		NewSearchPaginator(source, 100, 10),
		NewEntityExpander(source, ExpanderOptions{RepoPerPage: 100, RepoPageCap: 3, CommitsPerRepo: 30}),
		sink,
		progress,
		opts,
	)
	require.NoError(t, err)
	return h
}

func TestHarvester_Run(t *testing.T) {
	source := harvestFixture([]string{"Morocco"}, 3)
	sink := memory.NewSink()
	h := newTestHarvester(t, source, sink, nil, HarvesterOptions{})

	summary, err := h.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.PartitionsPlanned)
	assert.Equal(t, 2, summary.PartitionsDone)
	assert.Equal(t, 0, summary.PartitionsFailed)
	assert.Equal(t, 6, summary.EntitiesFound)
	assert.Equal(t, 6, summary.EntitiesExpanded)
	assert.Equal(t, 6, summary.RecordsBuilt)
	assert.Equal(t, 6, summary.RecordsSaved)
	assert.Equal(t, 6, summary.Identifiers)
	assert.Equal(t, 1, summary.Batches, "one region and window flush once")
	assert.False(t, summary.Running)
	assert.False(t, summary.EndedAt.IsZero())

	records := sink.Records()
	require.Len(t, records, 6)
	for _, r := range records {
		assert.Equal(t, summary.RunID, r.RunID)
		assert.Equal(t, []string{r.EntityID + "@x.com"}, r.Identifiers)
	}
	// Rediscovered entities keep one record per partition.
	assert.Equal(t, records[0].EntityID, records[3].EntityID)
	assert.NotEqual(t, records[0].Partition, records[3].Partition)

	assert.Equal(t, summary.RunID, h.Status().RunID)
}

func TestHarvester_Run_NoCredentials(t *testing.T) {
	source := harvestFixture([]string{"Morocco"}, 3)
	var pool *auth.Pool
	h, err := NewHarvester(
		pool,
		NewQueryPlanner(domain.GranularityYear),
		NewSearchPaginator(source, 100, 10),
		NewEntityExpander(source, ExpanderOptions{}),
		memory.NewSink(),
		nil,
		HarvesterOptions{Regions: []string{"Morocco"}, Years: []int{2019}},
	)
	require.NoError(t, err)

	summary, err := h.Run(context.Background())

	require.NotNil(t, summary)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorIs(t, err, domain.ErrNoCredentials)
	assert.Empty(t, source.searchRequests())
}

func TestHarvester_Run_DedupeEntities(t *testing.T) {
	source := harvestFixture([]string{"Morocco"}, 3)
	sink := memory.NewSink()
	h := newTestHarvester(t, source, sink, nil, HarvesterOptions{DedupeEntities: true})

	summary, err := h.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 6, summary.EntitiesFound)
	assert.Equal(t, 3, summary.EntitiesDeduped)
	assert.Equal(t, 3, summary.EntitiesExpanded)
	assert.Len(t, sink.Records(), 3)
}

func TestHarvester_Run_FlushPolicies(t *testing.T) {
	tests := []struct {
		policy      domain.FlushPolicy
		wantBatches int
	}{
		{domain.FlushPartition, 8},
		{domain.FlushWindow, 4},
		{domain.FlushRegion, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			regions := []string{"Morocco", "Chile"}
			source := harvestFixture(regions, 2)
			sink := memory.NewSink()
			h := newTestHarvester(t, source, sink, nil, HarvesterOptions{
				Regions: regions,
				Years:   []int{2019, 2020},
				Flush:   tt.policy,
			})

			summary, err := h.Run(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.wantBatches, summary.Batches)
			assert.Equal(t, tt.wantBatches, sink.Batches())
			assert.Equal(t, 16, summary.RecordsSaved)
		})
	}
}

func TestHarvester_Run_PartitionFailureDoesNotAbort(t *testing.T) {
	source := harvestFixture([]string{"Morocco"}, 3)
	healthy := source.search
	source.search = func(req domain.PageRequest) (*domain.SearchPage, error) {
		if req.Partition.Position == 0 {
			return nil, fmt.Errorf("search_users: %w (status 422)", domain.ErrPermanentAPI)
		}
		return healthy(req)
	}
	sink := memory.NewSink()
	h := newTestHarvester(t, source, sink, nil, HarvesterOptions{})

	summary, err := h.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.PartitionsDone)
	assert.Equal(t, 1, summary.PartitionsFailed)
	assert.Len(t, sink.Records(), 3)
}

func TestHarvester_Run_EntityPartialFailure(t *testing.T) {
	source := harvestFixture([]string{"Morocco"}, 2)
	source.withRepo("Morocco-p1-0", "broken")
	source.activityErr["Morocco-p1-0/broken"] = fmt.Errorf("list_commits: %w", domain.ErrPermanentAPI)
	sink := memory.NewSink()
	h := newTestHarvester(t, source, sink, nil, HarvesterOptions{Buckets: mustBuckets(t, "<10")})

	summary, err := h.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.EntitiesFailed)
	records := sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Failures)
	assert.Equal(t, []string{"Morocco-p1-0@x.com"}, records[0].Identifiers)
}

func TestHarvester_Run_SinkFailureDoesNotAbort(t *testing.T) {
	source := harvestFixture([]string{"Morocco"}, 3)
	sink := &failingSink{}
	progress := memory.NewProgressStore()
	h := newTestHarvester(t, source, sink, progress, HarvesterOptions{Flush: domain.FlushPartition})

	summary, err := h.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, sink.calls)
	assert.Equal(t, 2, summary.BatchErrors)
	assert.Equal(t, 6, summary.RecordsFailed)
	assert.Equal(t, 0, summary.RecordsSaved)
	assert.Equal(t, 2, summary.PartitionsDone)

	plan := NewQueryPlanner(domain.GranularityYear).Plan([]string{"Morocco"}, []int{2019}, mustBuckets(t, "<10", "10..50"))
	cp, found, err := progress.Load(context.Background(), PlanID(plan))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, summary.RunID, cp.RunID)
	assert.Equal(t, -1, cp.Position, "failed batches do not advance the checkpoint")
}

func TestHarvester_Run_Resume(t *testing.T) {
	buckets := mustBuckets(t, "<10", "10..50", ">100")
	plan := NewQueryPlanner(domain.GranularityYear).Plan([]string{"Morocco"}, []int{2019}, buckets)
	planID := PlanID(plan)

	progress := memory.NewProgressStore()
	require.NoError(t, progress.Save(context.Background(), planID, domain.Checkpoint{RunID: "run-earlier", Position: 1}))

	source := harvestFixture([]string{"Morocco"}, 2)
	sink := memory.NewSink()
	h := newTestHarvester(t, source, sink, progress, HarvesterOptions{Buckets: buckets, Flush: domain.FlushPartition})

	summary, err := h.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.PartitionsPlanned)
	assert.Equal(t, 2, summary.PartitionsSkipped)
	assert.Equal(t, 1, summary.PartitionsDone)
	assert.Equal(t, "run-earlier", summary.RunID)
	for _, r := range sink.Records() {
		assert.Equal(t, "run-earlier", r.RunID)
	}

	reqs := source.searchRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 2, reqs[0].Partition.Position)

	cp, found, err := progress.Load(context.Background(), planID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.Checkpoint{RunID: "run-earlier", Position: 2}, cp)
}

func TestHarvester_Run_ResumeAfterCancelDoesNotDuplicate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := harvestFixture([]string{"Morocco"}, 3)
	source.onActivity = func(sub domain.SubResource) {
		if sub.Owner == "Morocco-p1-1" {
			cancel()
		}
	}
	sink := memory.NewSink()
	progress := memory.NewProgressStore()

	first, err := newTestHarvester(t, source, sink, progress, HarvesterOptions{Flush: domain.FlushRegion}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, sink.Records(), 2)

	source.onActivity = nil
	second, err := newTestHarvester(t, source, sink, progress, HarvesterOptions{Flush: domain.FlushRegion}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, 4, second.RecordsSaved)
	assert.Equal(t, 2, second.RecordsFailed, "records flushed before the interruption are rejected as duplicates")

	type key struct{ run, entity, partition string }
	counts := make(map[key]int)
	for _, r := range sink.Records() {
		counts[key{r.RunID, r.EntityID, r.Partition}]++
	}
	assert.Len(t, counts, 6)
	for k, n := range counts {
		assert.Equal(t, 1, n, "record %v stored more than once", k)
	}
}

func TestHarvester_Run_FailedPartitionCheckpoint(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantPosition int
	}{
		{"transient failure is crawled again on resume", fmt.Errorf("search_users: %w", domain.ErrTransientNetwork), -1},
		{"rate limit exhaustion is crawled again on resume", fmt.Errorf("search_users: %w: %w", domain.ErrTransientNetwork, domain.ErrRateLimited), -1},
		{"permanent failure is skipped", fmt.Errorf("search_users: %w (status 422)", domain.ErrPermanentAPI), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := harvestFixture([]string{"Morocco"}, 3)
			healthy := source.search
			source.search = func(req domain.PageRequest) (*domain.SearchPage, error) {
				if req.Partition.Position == 0 {
					return nil, tt.err
				}
				return healthy(req)
			}
			sink := memory.NewSink()
			progress := memory.NewProgressStore()
			h := newTestHarvester(t, source, sink, progress, HarvesterOptions{Flush: domain.FlushPartition})

			summary, err := h.Run(context.Background())

			require.NoError(t, err)
			assert.Equal(t, 1, summary.PartitionsFailed)
			assert.Len(t, sink.Records(), 3)

			plan := NewQueryPlanner(domain.GranularityYear).Plan([]string{"Morocco"}, []int{2019}, mustBuckets(t, "<10", "10..50"))
			cp, found, err := progress.Load(context.Background(), PlanID(plan))
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, tt.wantPosition, cp.Position)
		})
	}
}

func TestHarvester_Run_CancellationFlushesBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := harvestFixture([]string{"Morocco"}, 3)
	source.onActivity = func(sub domain.SubResource) {
		if sub.Owner == "Morocco-p1-1" {
			cancel()
		}
	}
	sink := memory.NewSink()
	progress := memory.NewProgressStore()
	h := newTestHarvester(t, source, sink, progress, HarvesterOptions{Flush: domain.FlushRegion})

	summary, err := h.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.False(t, summary.Running)

	// The partial partition is flushed even though no boundary was reached.
	records := sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "Morocco-p1-0", records[0].EntityID)
	assert.Equal(t, "Morocco-p1-1", records[1].EntityID)
	assert.Equal(t, 1, summary.Batches)
	assert.Len(t, source.searchRequests(), 1, "the second partition is never started")

	plan := NewQueryPlanner(domain.GranularityYear).Plan([]string{"Morocco"}, []int{2019}, mustBuckets(t, "<10", "10..50"))
	cp, found, _ := progress.Load(context.Background(), PlanID(plan))
	require.True(t, found)
	assert.Equal(t, summary.RunID, cp.RunID)
	assert.Equal(t, -1, cp.Position, "an interrupted partition is not checkpointed")
}

func TestHarvester_Run_WorkersKeepEntityOrder(t *testing.T) {
	source := harvestFixture([]string{"Morocco"}, 40)
	sink := memory.NewSink()
	h := newTestHarvester(t, source, sink, nil, HarvesterOptions{
		Buckets: mustBuckets(t, "<10"),
		Workers: 8,
	})

	summary, err := h.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 40, summary.RecordsSaved)
	records := sink.Records()
	for i, r := range records {
		assert.Equal(t, fmt.Sprintf("Morocco-p1-%d", i), r.EntityID)
	}
}

func TestNewHarvester_RequiresSink(t *testing.T) {
	source := newFakeSource()
	_, err := NewHarvester(
		nil,
		NewQueryPlanner(domain.GranularityYear),
		NewSearchPaginator(source, 100, 10),
		NewEntityExpander(source, ExpanderOptions{}),
		nil,
		nil,
		HarvesterOptions{},
	)

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
