// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for a crawl to run:
//
//   - CredentialPool: the rotating set of API tokens
//   - Source: search, sub-resource listing and activity listing
//   - Sink: durable storage for contact records
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - ProgressStore: resume checkpoints. Without it every run starts at
//     the first partition.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
