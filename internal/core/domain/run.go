package domain

import "time"

// RunSummary accumulates the counters of one crawl run.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time

	PartitionsPlanned int
	PartitionsSkipped int

	// PartitionsDone counts every partition crawled, including failed and
	// truncated ones. PartitionsTruncated counts partitions that hit the page
	// cap or reported more matches than pagination can reach.
	PartitionsDone      int
	PartitionsFailed    int
	PartitionsTruncated int

	EntitiesFound    int
	EntitiesExpanded int
	EntitiesDeduped  int
	EntitiesFailed   int

	RecordsBuilt  int
	RecordsSaved  int
	RecordsFailed int
	Identifiers   int

	// Batches is the number of flushes; BatchErrors counts failed flushes.
	Batches     int
	BatchErrors int

	// Running is true until Run returns.
	Running bool
}

// Elapsed returns the run duration so far.
func (s RunSummary) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Checkpoint is the resume state of a plan. RunID names the run that owns
// the plan's records and is reused when the plan resumes. Position is the
// last partition whose records were flushed, or -1 before the first flush.
type Checkpoint struct {
	RunID    string
	Position int
}

// PartitionResult is what the search paginator yields for one partition.
type PartitionResult struct {
	Partition PartitionKey
	Entities  []Entity
	// Pages is the number of pages fetched successfully.
	Pages int
	// TotalCount is the match count reported by the remote source.
	TotalCount int
	// Truncated is set when the page cap stopped pagination or the
	// reported total exceeds what pagination could reach.
	Truncated bool
	// Err is the error that ended pagination early, if any.
	Err error
}
