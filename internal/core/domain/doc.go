// Package domain defines the core business entities for devtrawl.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Credential: one API token and its position in the pool
//   - PartitionKey: one (region, time window, follower bucket) search query
//   - Entity: an account discovered by a search partition
//   - SubResource: a repository owned by an Entity
//   - ContactRecord: the deduplicated identifiers attributed to one Entity
//   - FetchOutcome: the classified result of one logical API request
//   - CrawlConfig: the run configuration
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
