package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/devtrawl/internal/adapters/driven/auth"
	"github.com/custodia-labs/devtrawl/internal/adapters/driven/storage/jsonl"
	"github.com/custodia-labs/devtrawl/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/devtrawl/internal/adapters/driven/storage/multi"
	"github.com/custodia-labs/devtrawl/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/devtrawl/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/devtrawl/internal/connectors/github"
	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driving"
	"github.com/custodia-labs/devtrawl/internal/core/services"
	"github.com/custodia-labs/devtrawl/internal/logger"
	"github.com/custodia-labs/devtrawl/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a crawl",
	Long: `Crawls every partition of the configured regions, years and follower
ranges, expands each user found and stores the resulting contact records.

A run that was interrupted resumes after the last stored partition when it
is started again with the same plan. Press Ctrl+C to stop: records gathered
so far are flushed before exit.`,
	RunE: runHarvest,
}

// progressInterval is how often run prints a progress line.
var progressInterval = 5 * time.Second

func init() {
	rootCmd.AddCommand(runCmd)
}

// runtime is a wired harvester plus the resources released after the run.
type runtime struct {
	harvester driving.Harvester
	closers   []func() error
}

// Close releases resources in reverse order of acquisition.
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// buildRuntime wires a harvester from the configuration. Tests replace it.
var buildRuntime = newRuntime

func runHarvest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("closing run resources: %v", err)
		}
	}()

	cmd.Printf("Harvesting %d regions over %d years...\n", len(cfg.Regions), len(cfg.Years))

	summary, err := runWithProgress(ctx, cmd, rt.harvester)
	if summary != nil {
		printSummary(cmd, summary)
	}

	switch {
	case errors.Is(err, context.Canceled):
		cmd.Println("Interrupted. Buffered records were flushed; run again to resume.")
		return nil
	case err != nil:
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

// runWithProgress runs the harvester while printing progress updates.
func runWithProgress(ctx context.Context, cmd *cobra.Command, h driving.Harvester) (*domain.RunSummary, error) {
	type result struct {
		summary *domain.RunSummary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := h.Run(ctx)
		done <- result{s, err}
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	lastDone := -1
	for {
		select {
		case r := <-done:
			if lastDone >= 0 {
				cmd.Println()
			}
			return r.summary, r.err
		case <-ticker.C:
			s := h.Status()
			if !s.Running {
				continue
			}
			finished := s.PartitionsSkipped + s.PartitionsDone
			cmd.Printf("\rPartitions %d/%d, %d users, %d records saved",
				finished, s.PartitionsPlanned, s.EntitiesFound, s.RecordsSaved)
			lastDone = finished
		}
	}
}

func printSummary(cmd *cobra.Command, s *domain.RunSummary) {
	cmd.Println()
	cmd.Printf("Run %s finished in %s\n", s.RunID, s.Elapsed().Round(time.Second))
	cmd.Printf("  Partitions: %d planned, %d skipped, %d done, %d truncated, %d failed\n",
		s.PartitionsPlanned, s.PartitionsSkipped, s.PartitionsDone, s.PartitionsTruncated, s.PartitionsFailed)
	cmd.Printf("  Users:      %d found, %d expanded, %d deduplicated, %d failed\n",
		s.EntitiesFound, s.EntitiesExpanded, s.EntitiesDeduped, s.EntitiesFailed)
	cmd.Printf("  Records:    %d built, %d saved, %d failed (%d addresses)\n",
		s.RecordsBuilt, s.RecordsSaved, s.RecordsFailed, s.Identifiers)
	cmd.Printf("  Batches:    %d (%d failed)\n", s.Batches, s.BatchErrors)
}

// newRuntime wires the credential pool, GitHub connector, services and
// storage for one run.
func newRuntime(ctx context.Context, cfg domain.CrawlConfig) (_ *runtime, err error) {
	res := &runtime{}
	defer func() {
		if err != nil {
			_ = res.Close()
		}
	}()

	pool, err := auth.NewPool(cfg.Tokens)
	if err != nil {
		return nil, err
	}
	logger.Info("credential pool: %d tokens", pool.Size())

	collector, err := startMetrics(cfg.MetricsAddr, res)
	if err != nil {
		return nil, err
	}

	baseURL, err := github.ParseBaseURL(cfg.APIBaseURL)
	if err != nil {
		return nil, err
	}
	var clientOpts []github.ClientsOption
	if baseURL != nil {
		clientOpts = append(clientOpts, github.WithBaseURL(baseURL))
	}

	fetcher := github.NewFetcher(pool, github.NewClients(clientOpts...), github.NewRateLimiter(cfg.RequestsPerSecond), github.FetcherOptions{
		Delay:       cfg.RequestDelay,
		MaxAttempts: cfg.AttemptBound(pool.Size()),
		Metrics:     collector,
	})
	logger.Info("retrying each request up to %d times, %s apart", fetcher.MaxAttempts(), cfg.RequestDelay)
	source := github.NewSource(fetcher)

	sink, progress, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res.closers = append(res.closers, sink.Close)

	buckets, err := cfg.Buckets()
	if err != nil {
		return nil, err
	}

	h, err := services.NewHarvester(
		pool,
		services.NewQueryPlanner(cfg.Window),
		services.NewSearchPaginator(source, cfg.PerPage, cfg.PageCap),
		services.NewEntityExpander(source, services.ExpanderOptions{
			RepoPerPage:    domain.MaxPerPage,
			RepoPageCap:    cfg.RepoPageCap,
			CommitsPerRepo: cfg.CommitsPerRepo,
			NoReplyMarkers: cfg.NoReplyMarkers,
		}),
		sink,
		progress,
		services.HarvesterOptions{
			Regions:        cfg.Regions,
			Years:          cfg.Years,
			Buckets:        buckets,
			Flush:          cfg.Flush,
			Workers:        cfg.Workers,
			DedupeEntities: cfg.DedupeEntities,
			Metrics:        collector,
		},
	)
	if err != nil {
		return nil, err
	}
	res.harvester = h
	return res, nil
}

// openStorage returns the sink and progress store for the configured
// driver. The sink owns the underlying connection.
func openStorage(ctx context.Context, cfg domain.CrawlConfig) (driven.Sink, driven.ProgressStore, error) {
	var (
		sink     driven.Sink
		progress driven.ProgressStore
	)

	switch {
	case cfg.Storage.Driver == domain.StorageMemory:
		sink, progress = memory.NewSink(), memory.NewProgressStore()
	case cfg.Storage.Driver == domain.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		sink, progress = store, store
	default:
		store, err := sqlite.NewStore(cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("storing records in %s", store.Path())
		sink, progress = store, store
	}

	if cfg.ExportPath != "" {
		export, err := jsonl.NewFileSink(cfg.ExportPath)
		if err != nil {
			_ = sink.Close()
			return nil, nil, err
		}
		sink = multi.New(sink, export)
	}
	return sink, progress, nil
}

// startMetrics serves prometheus metrics on addr until the runtime is
// closed. An empty addr disables metrics.
func startMetrics(addr string, rt *runtime) (*metrics.Collector, error) {
	if addr == "" {
		return nil, nil
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server: %v", err)
		}
	}()
	logger.Info("serving metrics on %s/metrics", addr)

	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return collector, nil
}
