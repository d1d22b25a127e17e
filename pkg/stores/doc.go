// Package stores provides the SQLite persistence layer for items, revisions,
// audit issues, and the exception ledger.
package stores
