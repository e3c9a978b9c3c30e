package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// MaxPerPage is the largest page size the search API accepts.
const MaxPerPage = 100

// DefaultFollowerBuckets split each region and window into follower ranges
// small enough to stay under the search result cap.
var DefaultFollowerBuckets = []string{"<10", "10..50", "50..100", ">100"}

// FlushPolicy defines the batch boundary at which buffered records are
// handed to the sink.
type FlushPolicy string

// Available flush policies.
const (
	// FlushPartition flushes after every partition.
	FlushPartition FlushPolicy = "partition"

	// FlushWindow flushes after the last follower bucket of a region and
	// time window pair.
	FlushWindow FlushPolicy = "window"

	// FlushRegion flushes after the last partition of a region.
	FlushRegion FlushPolicy = "region"
)

// IsValid returns true if the flush policy is recognised.
func (p FlushPolicy) IsValid() bool {
	switch p {
	case FlushPartition, FlushWindow, FlushRegion:
		return true
	default:
		return false
	}
}

// StorageDriver selects the sink backend.
type StorageDriver string

// Available storage drivers.
const (
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
	StorageMemory   StorageDriver = "memory"
)

// IsValid returns true if the storage driver is recognised.
func (d StorageDriver) IsValid() bool {
	switch d {
	case StorageSQLite, StoragePostgres, StorageMemory:
		return true
	default:
		return false
	}
}

// StorageSettings configures the sink backend.
type StorageSettings struct {
	// Driver is the backend type.
	Driver StorageDriver

	// DSN is the connection string. For sqlite it is the data directory.
	DSN string
}

// CrawlConfig is the full run configuration.
type CrawlConfig struct {
	// Tokens are the API credentials, in rotation order.
	Tokens []string

	// Regions, Years and FollowerBuckets are the partition axes.
	Regions         []string
	Years           []int
	FollowerBuckets []string

	// Window splits each year into smaller creation-date windows.
	Window Granularity

	// PerPage is the search page size. PageCap bounds pages per partition.
	PerPage int
	PageCap int

	// RepoPageCap bounds repository listing pages per entity.
	RepoPageCap int

	// CommitsPerRepo is the size of the single commit page read per repository.
	CommitsPerRepo int

	// RequestDelay is the fixed delay between attempts of one request.
	RequestDelay time.Duration

	// RequestsPerSecond throttles all requests regardless of parallelism.
	RequestsPerSecond float64

	// MaxAttempts bounds attempts of one request. Zero derives it from the
	// pool size.
	MaxAttempts int

	// Workers is the number of entities expanded concurrently.
	Workers int

	// Flush selects the batch boundary.
	Flush FlushPolicy

	// DedupeEntities skips entities already expanded earlier in the run.
	DedupeEntities bool

	// NoReplyMarkers are the substrings that exclude an identifier.
	NoReplyMarkers []string

	// Storage configures the sink.
	Storage StorageSettings

	// ExportPath, if set, also writes records as newline-delimited JSON.
	ExportPath string

	// MetricsAddr, if set, serves prometheus metrics during the run.
	MetricsAddr string

	// APIBaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
	APIBaseURL string
}

// DefaultCrawlConfig returns the configuration used for unset keys: 100
// results per page, 10 pages, four follower ranges, a fixed delay and three
// attempts per request.
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		Window:            GranularityYear,
		FollowerBuckets:   slices.Clone(DefaultFollowerBuckets),
		PerPage:           MaxPerPage,
		PageCap:           10,
		RepoPageCap:       3,
		CommitsPerRepo:    30,
		RequestDelay:      10 * time.Second,
		RequestsPerSecond: 1.2,
		MaxAttempts:       0,
		Workers:           1,
		Flush:             FlushWindow,
		NoReplyMarkers:    slices.Clone(DefaultNoReplyMarkers),
		Storage: StorageSettings{
			Driver: StorageSQLite,
		},
	}
}

// Validate checks the configuration. Token presence is not checked here:
// an empty pool is reported by the credential pool itself.
func (c CrawlConfig) Validate() error {
	var errs []error

	if len(c.Regions) == 0 {
		errs = append(errs, errors.New("at least one region is required"))
	}
	if len(c.Years) == 0 {
		errs = append(errs, errors.New("at least one year is required"))
	}
	for _, b := range c.FollowerBuckets {
		if _, err := ParseFollowerBucket(b); err != nil {
			errs = append(errs, err)
		}
	}
	if !c.Window.IsValid() {
		errs = append(errs, fmt.Errorf("unknown window %q", c.Window))
	}
	if c.PerPage < 1 || c.PerPage > MaxPerPage {
		errs = append(errs, fmt.Errorf("per_page must be between 1 and %d", MaxPerPage))
	}
	if c.PageCap < 1 {
		errs = append(errs, errors.New("page_cap must be positive"))
	}
	if c.RepoPageCap < 1 {
		errs = append(errs, errors.New("repo_page_cap must be positive"))
	}
	if c.CommitsPerRepo < 1 || c.CommitsPerRepo > MaxPerPage {
		errs = append(errs, fmt.Errorf("commits_per_repo must be between 1 and %d", MaxPerPage))
	}
	if c.RequestDelay < 0 {
		errs = append(errs, errors.New("request_delay must not be negative"))
	}
	if c.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("requests_per_second must be positive"))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, errors.New("max_attempts must not be negative"))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if !c.Flush.IsValid() {
		errs = append(errs, fmt.Errorf("unknown flush policy %q", c.Flush))
	}
	if !c.Storage.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == StoragePostgres && c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required for postgres"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// Buckets parses the follower buckets. An explicitly empty list yields a
// single open bucket so that the plan still covers every region and window.
func (c CrawlConfig) Buckets() ([]FollowerBucket, error) {
	if len(c.FollowerBuckets) == 0 {
		return []FollowerBucket{{Min: Unbounded, Max: Unbounded}}, nil
	}
	out := make([]FollowerBucket, 0, len(c.FollowerBuckets))
	for _, s := range c.FollowerBuckets {
		b, err := ParseFollowerBucket(s)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// AttemptBound returns the attempt limit for one request given the pool
// size: three attempts plus one per additional credential, so that every
// credential is tried once, unless MaxAttempts overrides it.
func (c CrawlConfig) AttemptBound(poolSize int) int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	if poolSize < 1 {
		poolSize = 1
	}
	return 3 + poolSize - 1
}
