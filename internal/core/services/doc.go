// Package services implements the crawl engine behind the driving port.
//
// The QueryPlanner enumerates partitions, the SearchPaginator walks the
// search pages of one partition, the EntityExpander turns an entity into a
// contact record, and the Harvester runs them over a whole plan, flushing
// records to the sink at batch boundaries.
//
// Services depend only on ports; the GitHub connector and the storage
// adapters are wired in by the CLI.
package services
