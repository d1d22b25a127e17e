// Package engine implements the configuration revision and change-detection
// engine: it resolves resource identities to persistent items, records
// configuration snapshots as revisions, maintains the complete and durable
// content hashes used for deduplication and diffing, and keeps each item's
// audit-issue ledger in sync with the latest snapshot.
//
// The engine is invoked synchronously by external collaborators (watchers,
// API handlers) that may run concurrently against the shared store. All
// concurrency safety comes from the storage layer's transaction semantics;
// the engine holds no in-process coordination state.
package engine
