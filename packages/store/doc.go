// Package store persists the records read and written by the hitrun engine.
//
// Store is the contract the runner, scheduler and CLI depend on. Memory keeps
// everything in process and is used by tests and one-off runs; SQL backs the
// same contract with SQLite (github.com/mattn/go-sqlite3) or PostgreSQL
// (github.com/lib/pq). Lookups of missing records return errors wrapping
// ErrNotFound.
package store
