// Package store persists catalogue and order book data to Postgres.
//
// Connect builds the pgx connection pool from configuration. Store wraps
// the pool with upsert semantics for catalogue rows and append-only
// inserts for book snapshots, and satisfies the catalogue poller's Sink.
package store
